package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/message"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// startAttempts is how many fresh launches one start request may make
const startAttempts = 2

func (s *Session) isScreenLocked() bool {
	return s.deps.Lock != nil && s.deps.Lock.IsScreenLocked()
}

// resolveTarget picks the IME to run: an input type override, else the
// configured IME, else the system default. While the screen is locked an
// IME without full security mode falls back to the default.
func (s *Session) resolveTarget() ime.Target {
	s.stateMu.Lock()
	override := s.inputTypeIme
	s.stateMu.Unlock()
	if !override.IsZero() {
		return override
	}

	def := s.deps.Inquirer.GetDefaultIme()
	target := def
	if s.deps.Settings != nil {
		if configured, ok := s.deps.Settings.CurrentIme(s.userID); ok {
			target = configured
		}
	}
	if s.isScreenLocked() && !target.Same(def) &&
		s.deps.Inquirer.GetSecurityMode(s.userID, target.BundleName) != protocol.SecurityModeFull {
		s.logger.Info("screen locked, using default ime", zap.Stringer("configured", target))
		return def
	}
	return target
}

// StartCurrentIme makes sure the resolved IME is running and registered.
// With isStopCurrentIme a running IME is stopped first even if it is the
// one resolved. It blocks the caller for at most two start timeouts plus
// the stop timeouts.
func (s *Session) StartCurrentIme(isStopCurrentIme bool) error {
	return s.startTarget(s.resolveTarget(), isStopCurrentIme)
}

// startTarget brings target up in place of whatever IME runs now
func (s *Session) startTarget(target ime.Target, stopCurrent bool) error {
	if target.IsZero() {
		return errs.Wrap(errs.ErrorImeNotStarted, "no ime configured")
	}

	// Reuse the running IME or get it out of the way
	if data := s.getImeData(ime.TypeIme); data != nil {
		same := data.BundleName == target.BundleName && data.ExtensionName == target.ExtensionName
		if same && !stopCurrent {
			switch data.Apply(ime.EventStartIme) {
			case ime.ActionDoNothing:
				return nil
			case ime.ActionHandleStartingIme:
				if data.WaitReady(s.policy.StartTimeout) == ime.Ready {
					return nil
				}
				data.Apply(ime.EventStartImeTimeout)
				s.abandonStart(data)
			default:
				s.abandonStart(data)
			}
		} else if err := s.stopIme(data); err != nil {
			s.logger.Warn("previous ime did not stop cleanly", zap.String("ime", data.BundleName), zap.Error(err))
		}
	}

	// Launch, one retry after a timeout
	var err error
	for attempt := 1; attempt <= startAttempts; attempt++ {
		if err = s.startOnce(target); err == nil || !errs.Is(err, errs.ErrorImsaImeStartTimeout) {
			return err
		}
		s.logger.Warn("ime start timed out", zap.Stringer("ime", target), zap.Int("attempt", attempt))
	}
	return err
}

// startOnce launches target and waits for its registration
func (s *Session) startOnce(target ime.Target) error {
	data := ime.NewData(ime.TypeIme, target.BundleName, target.ExtensionName, s.clock.Now())
	s.setImeData(data)

	ctx, cancel := context.WithTimeout(context.Background(), s.policy.StartTimeout)
	defer cancel()
	if err := s.deps.Connector.Connect(ctx, s.want(target)); err != nil {
		s.removeImeData(data)
		s.metrics.RecordImeStart("connect_failed")
		return errs.Wrap(errs.ErrorImsaImeConnectFailed, "connect %s: %v", target, err)
	}

	// Wait for OnSetCoreAndAgent
	switch data.WaitReady(s.policy.StartTimeout) {
	case ime.Ready:
	case ime.Died:
		s.removeImeData(data)
		s.metrics.RecordImeStart("died")
		return errs.Wrap(errs.ErrorImeNotStarted, "%s died while starting", target)
	default:
		// A registration racing the timeout wins.
		if data.Apply(ime.EventStartImeTimeout) != ime.ActionDoNothing {
			s.abandonStart(data)
			s.metrics.RecordImeStart("timeout")
			return errs.Wrap(errs.ErrorImsaImeStartTimeout, "%s", target)
		}
	}

	s.metrics.RecordImeStart("ok")
	s.initIme(data, target)
	return nil
}

// initIme hands a freshly registered IME its control channel, security
// mode and subtype.
func (s *Session) initIme(data *ime.Data, target ime.Target) {
	if ctrl := s.deps.ControlChannel; !ctrl.IsZero() {
		_ = s.requestIme(data, ime.RequestNormal, "InitInputControlChannel", func(core protocol.InputMethodCore) error {
			return core.InitInputControlChannel(ctrl)
		})
	}
	mode := s.deps.Inquirer.GetSecurityMode(s.userID, data.BundleName)
	_ = s.requestIme(data, ime.RequestNormal, "OnSecurityChange", func(core protocol.InputMethodCore) error {
		return core.OnSecurityChange(mode)
	})
	if target.SubName != "" {
		s.setSubtype(data, target)
	}
	s.logger.Info("ime ready",
		zap.Stringer("ime", target),
		zap.Int32("pid", data.Connection().Pid),
		zap.Duration("startup", s.clock.Now().Sub(data.StartTime)),
	)
}

// setSubtype forwards target's subtype to data's IME
func (s *Session) setSubtype(data *ime.Data, target ime.Target) {
	sub, err := s.deps.Inquirer.GetSubProperty(s.userID, target.BundleName, target.SubName)
	if err != nil {
		s.logger.Warn("unknown subtype", zap.Stringer("ime", target), zap.String("subtype", target.SubName), zap.Error(err))
		return
	}
	_ = s.requestIme(data, ime.RequestNormal, "SetSubtype", func(core protocol.InputMethodCore) error {
		return core.SetSubtype(sub)
	})
}

// abandonStart kills an IME that never became ready
func (s *Session) abandonStart(data *ime.Data) {
	if err := s.forceStop(data); err != nil {
		s.logger.Warn("force stop failed", zap.String("ime", data.BundleName), zap.Error(err))
	}
	s.removeImeData(data)
}

func (s *Session) targetOf(data *ime.Data) ime.Target {
	return ime.Target{BundleName: data.BundleName, ExtensionName: data.ExtensionName}
}

// forceStop kills data's process and waits for the death if the process
// ever registered.
func (s *Session) forceStop(data *ime.Data) error {
	if err := s.deps.Connector.ForceStop(s.want(s.targetOf(data))); err != nil {
		s.logger.Warn("force stop request failed", zap.String("ime", data.BundleName), zap.Error(err))
	}
	if data.Connection().CoreHandle.IsZero() {
		return nil
	}
	if data.WaitDied(s.policy.StopTimeout) != ime.Died {
		return errs.Wrap(errs.ErrorImsaForceStopImeTimeout, "%s", data.BundleName)
	}
	return nil
}

// stopIme asks data's IME to exit and forces it if it does not
func (s *Session) stopIme(data *ime.Data) error {
	defer s.removeImeData(data)

	// Never registered
	if data.Apply(ime.EventStopIme) != ime.ActionStopReadyIme {
		return s.forceStop(data)
	}

	// Ask it to exit
	err := s.requestIme(data, ime.RequestNormal, "StopInputService", func(core protocol.InputMethodCore) error {
		return core.StopInputService(true)
	})
	if derr := s.deps.Connector.Disconnect(s.want(s.targetOf(data))); derr != nil {
		s.logger.Debug("disconnect failed", zap.String("ime", data.BundleName), zap.Error(derr))
	}
	if err == nil && data.WaitDied(s.policy.StopTimeout) == ime.Died {
		s.logger.Info("ime stopped", zap.String("ime", data.BundleName))
		return nil
	}

	// Still alive
	s.logger.Warn("ime did not exit, forcing", zap.String("ime", data.BundleName))
	return s.forceStop(data)
}

// StopCurrentIme unbinds everything bound to the primary IME and stops it
func (s *Session) StopCurrentIme() error {
	data := s.getImeData(ime.TypeIme)
	if data == nil {
		return nil
	}
	for _, g := range s.allGroups() {
		for _, info := range g.ClientsBoundTo(ime.TypeIme) {
			s.unbindClient(g, info, unbindOptions{notifyClient: true})
		}
	}
	return s.stopIme(data)
}

// OnSetCoreAndAgent completes a start: the IME process registers its core
// and agent. It runs on the caller's goroutine so it can wake a consumer
// blocked in StartCurrentIme.
func (s *Session) OnSetCoreAndAgent(bundleName string, conn ime.Connection) error {
	if conn.Core == nil || conn.CoreHandle.IsZero() || conn.Agent.IsZero() {
		return errs.ErrorNullPointer
	}
	data := s.getImeData(ime.TypeIme)
	if data == nil || data.BundleName != bundleName {
		return errs.Wrap(errs.ErrorNotCurrentIme, "%s is not being started", bundleName)
	}
	if data.Connection().CoreHandle == conn.CoreHandle {
		return nil
	}
	if err := s.watchIme(data, conn.CoreHandle); err != nil {
		return err
	}
	freeze := ime.NewFreezeManager(conn.Pid, s.deps.Processes, s.logger)
	if action := data.SetCoreAndAgent(conn, freeze); action != ime.ActionDoSetCoreAndAgent {
		s.unwatch(conn.CoreHandle)
		return errs.Wrap(errs.ErrorNotCurrentIme, "%s registered while %s", bundleName, data.Status())
	}
	s.logger.Debug("ime registered", zap.String("ime", bundleName), zap.Int32("pid", conn.Pid))
	return nil
}

// watchIme arms a death watch that marks data dead and queues the recovery
func (s *Session) watchIme(data *ime.Data, h ipc.Handle) error {
	if s.deps.Watcher == nil {
		return nil
	}
	role := int32(data.Type)
	return s.deps.Watcher.Watch(h, func(dead ipc.Handle) {
		data.MarkDied()
		s.post(message.New(message.MsgImeDied, message.DeathPayload(s.userID, role, dead)))
	})
}

func (s *Session) unwatch(h ipc.Handle) {
	if s.deps.Watcher != nil {
		s.deps.Watcher.Unwatch(h)
	}
}

// RestartIme starts the primary IME again after a crash and rebinds the
// clients that were using it.
func (s *Session) RestartIme() error {
	if s.getReadyImeData(ime.TypeIme) != nil {
		s.rebindCurrentClients(ime.TypeIme)
		return nil
	}
	if err := s.StartCurrentIme(false); err != nil {
		s.metrics.RecordImeRestart("failed")
		s.logger.Error("ime restart failed", zap.Error(err))
		return err
	}
	s.metrics.RecordImeRestart("succeeded")
	s.rebindCurrentClients(ime.TypeIme)
	return nil
}

// rebindCurrentClients binds every unbound current client served by role
// t to it.
func (s *Session) rebindCurrentClients(t ime.Type) {
	data := s.getReadyImeData(t)
	if data == nil {
		return
	}
	for _, g := range s.allGroups() {
		if s.imeTypeFor(g.DisplayGroupID()) != t {
			continue
		}
		info := g.GetCurrentClient()
		if info == nil || info.IsBound() {
			continue
		}
		if _, err := s.bindClient(g, info, data, false); err != nil {
			s.logger.Warn("rebind failed", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}
}

// OnSwitchIme makes target the running IME. Switching only the subtype of
// the running IME keeps the process; otherwise the old IME is stopped and
// current clients are rebound to the new one.
func (s *Session) OnSwitchIme(target ime.Target) error {
	data := s.getReadyImeData(ime.TypeIme)
	if data == nil || !s.targetOf(data).Same(target) {
		s.detachClients(ime.TypeIme, true)
		if err := s.startTarget(target, data != nil); err != nil {
			return err
		}
		s.rebindCurrentClients(ime.TypeIme)
		if data = s.getReadyImeData(ime.TypeIme); data == nil {
			return errs.ErrorImeNotStarted
		}
	} else if target.SubName != "" {
		s.setSubtype(data, target)
	}

	prop, err := s.deps.Inquirer.GetImeProperty(s.userID, target.BundleName)
	if err != nil {
		s.logger.Warn("switched ime has no property", zap.Stringer("ime", target), zap.Error(err))
		return nil
	}
	var sub protocol.SubProperty
	if target.SubName != "" {
		sub, _ = s.deps.Inquirer.GetSubProperty(s.userID, target.BundleName, target.SubName)
	}
	for _, g := range s.allGroups() {
		g.NotifyImeChangeToClients(prop, sub)
	}
	s.logger.Info("ime switched", zap.Stringer("ime", target), zap.String("subtype", target.SubName))
	return nil
}

// OnSetInputType temporarily replaces the IME with the one serving input
// type t. InputTypeNone restores the configured IME.
func (s *Session) OnSetInputType(t protocol.InputType, target ime.Target) error {
	if t == protocol.InputTypeNone {
		return s.restoreInputType()
	}
	if target.IsZero() {
		return errs.Wrap(errs.ErrorBadParameters, "input type %d without ime", t)
	}
	s.stateMu.Lock()
	s.inputType, s.inputTypeIme = t, target
	s.stateMu.Unlock()

	if err := s.OnSwitchIme(target); err != nil {
		s.clearInputType()
		return err
	}
	data := s.getReadyImeData(ime.TypeIme)
	return s.requestIme(data, ime.RequestNormal, "OnSetInputType", func(core protocol.InputMethodCore) error {
		return core.OnSetInputType(t)
	})
}

func (s *Session) clearInputType() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	had := !s.inputTypeIme.IsZero()
	s.inputType, s.inputTypeIme = protocol.InputTypeNone, ime.Target{}
	return had
}

func (s *Session) restoreInputType() error {
	if !s.clearInputType() {
		return nil
	}
	target := s.resolveTarget()
	if data := s.getReadyImeData(ime.TypeIme); data != nil && s.targetOf(data).Same(target) {
		return s.requestIme(data, ime.RequestNormal, "OnSetInputType", func(core protocol.InputMethodCore) error {
			return core.OnSetInputType(protocol.InputTypeNone)
		})
	}
	return s.OnSwitchIme(target)
}

// OnSecurityChange forwards a security mode change for bundleName to the
// running IME if it is that bundle.
func (s *Session) OnSecurityChange(bundleName string, mode protocol.SecurityMode) error {
	data := s.getReadyImeData(ime.TypeIme)
	if data == nil || data.BundleName != bundleName {
		return nil
	}
	return s.requestIme(data, ime.RequestNormal, "OnSecurityChange", func(core protocol.InputMethodCore) error {
		return core.OnSecurityChange(mode)
	})
}

// OnConnectSystemCmd connects a system command channel to the IME and
// returns the agent serving it.
func (s *Session) OnConnectSystemCmd(channel ipc.Handle) (ipc.Handle, error) {
	if channel.IsZero() {
		return ipc.Handle{}, errs.ErrorNullPointer
	}
	data := s.getReadyImeData(ime.TypeIme)
	if data == nil {
		return ipc.Handle{}, errs.ErrorImeNotStarted
	}
	var agent ipc.Handle
	err := s.requestIme(data, ime.RequestNormal, "OnConnectSystemCmd", func(core protocol.InputMethodCore) error {
		var err error
		agent, err = core.OnConnectSystemCmd(channel)
		return err
	})
	return agent, err
}

// OnScreenUnlock switches back to the configured IME if the lock screen
// forced the default one.
func (s *Session) OnScreenUnlock() error {
	data := s.getImeData(ime.TypeIme)
	if data == nil {
		return nil
	}
	target := s.resolveTarget()
	if s.targetOf(data).Same(target) {
		return nil
	}
	return s.OnSwitchIme(target)
}

// OnPackageRemoved stops the running IME if bundleName was it and starts
// whatever resolves next.
func (s *Session) OnPackageRemoved(bundleName string) error {
	data := s.getImeData(ime.TypeIme)
	if data == nil || data.BundleName != bundleName {
		return nil
	}
	s.logger.Info("running ime uninstalled", zap.String("ime", bundleName))
	s.detachClients(ime.TypeIme, true)
	if err := s.stopIme(data); err != nil {
		s.logger.Warn("removed ime did not stop cleanly", zap.Error(err))
	}
	if err := s.StartCurrentIme(false); err != nil {
		return err
	}
	s.rebindCurrentClients(ime.TypeIme)
	return nil
}

// Close releases every client and stops every IME of the session
func (s *Session) Close() {
	for _, g := range s.allGroups() {
		for _, info := range g.Clients() {
			s.removeClient(g, info, true)
		}
	}
	for _, t := range []ime.Type{ime.TypeProxyIme, ime.TypeProxyAgentIme} {
		if data := s.getImeData(t); data != nil {
			s.unwatch(data.Connection().CoreHandle)
			s.removeImeData(data)
		}
	}
	if data := s.getImeData(ime.TypeIme); data != nil {
		if err := s.stopIme(data); err != nil {
			s.logger.Warn("ime did not stop on close", zap.Error(err))
		}
	}
	s.metrics.SetBoundClients(s.userLabel(), 0)
	s.logger.Info("session closed")
}
