package session

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// OnPrepareInput registers a client without binding it
func (s *Session) OnPrepareInput(info client.Info) error {
	info.Config.InputAttribute.Normalize()
	info.Attribute = info.Config.InputAttribute
	g := s.group(s.displayGroupOf(info.DisplayID), true)
	s.leaveOtherGroups(g, info.ClientHandle)
	return g.AddClientInfo(info, client.AddPrepare)
}

// OnStartInput binds the client to the IME role serving its display group
// and makes it current. A previous current client loses its binding.
func (s *Session) OnStartInput(info client.Info, isBindFromClient bool) (StartInputResult, error) {
	info.Config.InputAttribute.Normalize()
	info.Attribute = info.Config.InputAttribute

	g := s.group(s.displayGroupOf(info.DisplayID), true)
	s.leaveOtherGroups(g, info.ClientHandle)
	if err := g.AddClientInfo(info, client.AddStart); err != nil {
		return StartInputResult{}, err
	}

	t := s.imeTypeFor(g.DisplayGroupID())
	data := s.getReadyImeData(t)
	if data == nil && t == ime.TypeIme {
		if err := s.StartCurrentIme(false); err != nil {
			s.logger.Error("no ime to bind", zap.Int32("pid", info.Pid), zap.Error(err))
			return StartInputResult{}, errs.Wrap(errs.ErrorImeNotStarted, "start input: %v", err)
		}
		data = s.getReadyImeData(t)
	}
	if data == nil {
		return StartInputResult{}, errs.Wrap(errs.ErrorImeNotStarted, "no %s registered", t)
	}

	stored := g.GetClientInfo(info.ClientHandle)
	if stored == nil {
		// The client died while the IME was starting.
		return StartInputResult{}, errs.ErrorClientNotFound
	}
	return s.bindClient(g, stored, data, isBindFromClient)
}

// leaveOtherGroups drops h from every group but g. A client lives in one
// display group at a time.
func (s *Session) leaveOtherGroups(g *client.Group, h ipc.Handle) {
	for _, other := range s.allGroups() {
		if other == g {
			continue
		}
		if info := other.GetClientInfo(h); info != nil {
			s.logger.Info("client moved display group",
				zap.Int32("pid", info.Pid),
				zap.Uint64("from", other.DisplayGroupID()),
				zap.Uint64("to", g.DisplayGroupID()),
			)
			s.removeClient(other, info, false)
		}
	}
}

// bindClient sends StartInput to data's core and records the binding. The
// previous current client of g is only replaced once the IME accepted the
// new one.
func (s *Session) bindClient(g *client.Group, info *client.Info, data *ime.Data, isBindFromClient bool) (StartInputResult, error) {
	conn := data.Connection()
	clientInfo := protocol.InputClientInfo{
		Pid:                   info.Pid,
		Uid:                   info.Uid,
		UserID:                info.UserID,
		DisplayID:             info.DisplayID,
		IsShowKeyboard:        info.IsShowKeyboard,
		RequestKeyboardReason: info.RequestKeyboardReason,
		Channel:               info.ChannelHandle,
		Config:                info.Config,
	}
	// IME first
	err := s.requestIme(data, ime.RequestStartInput, "StartInput", func(core protocol.InputMethodCore) error {
		return core.StartInput(clientInfo, isBindFromClient)
	})
	if err != nil {
		return StartInputResult{}, errs.Wrap(errs.ErrorImeStartInputFailed, "bind pid %d: %v", info.Pid, err)
	}
	s.replaceCurrentClient(g, info.ClientHandle)

	// Record the binding
	id := s.nextSession()
	if err := g.UpdateClientInfo(info.ClientHandle,
		client.UpdateBindType(data.Type),
		client.UpdateSessionID(id),
		client.UpdateState(client.StateActive),
		client.UpdateShowKeyboard(info.IsShowKeyboard),
		client.UpdateNotifyInputStart(true),
	); err != nil {
		return StartInputResult{}, err
	}
	g.SetCurrentClient(info.ClientHandle)
	if g.IsInactiveClient(info.ClientHandle) {
		g.SetInactiveClient(ipc.Handle{})
	}

	// Catch the IME up
	if display := info.Attribute.CallingDisplayID; display != 0 {
		_ = s.requestIme(data, ime.RequestNormal, "OnCallingDisplayIDChanged", func(core protocol.InputMethodCore) error {
			return core.OnCallingDisplayIDChanged(display)
		})
	}
	if cmd := data.TakePendingCommand(); cmd != nil && info.Channel != nil {
		if err := info.Channel.SendPrivateCommand(cmd); err != nil {
			s.logger.Warn("pending private command lost", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}

	imeInfo := protocol.ImeProcessInfo{Pid: conn.Pid, BundleName: data.BundleName}
	// A client that asked for the bind reads the agent from the reply.
	if !isBindFromClient {
		if err := info.Client.OnInputReady(conn.Agent, imeInfo); err != nil {
			s.logger.Warn("input ready not delivered", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}
	g.NotifyInputStartToClients(info.Config.WindowID, info.RequestKeyboardReason)
	s.updateBoundGauge()

	s.logger.Info("client bound",
		zap.Int32("pid", info.Pid),
		zap.Stringer("ime_type", data.Type),
		zap.String("ime", data.BundleName),
		zap.Uint32("session_id", id),
	)
	return StartInputResult{Agent: conn.Agent, Ime: imeInfo, SessionID: id}, nil
}

// replaceCurrentClient hands the current role of g to h. The previous
// holder is unbound and then either removed or parked as inactive.
func (s *Session) replaceCurrentClient(g *client.Group, h ipc.Handle) {
	old := g.GetCurrentClient()
	if old == nil || old.ClientHandle == h {
		return
	}
	s.logger.Info("current client replaced", zap.Int32("old_pid", old.Pid))
	s.unbindClient(g, old, unbindOptions{notifyClient: true})
	if !s.policy.SceneBoard {
		g.RemoveClientInfo(old.ClientHandle, false)
		return
	}
	s.parkInactive(g, old.ClientHandle)
}

// parkInactive marks h inactive, evicting the previous inactive client
func (s *Session) parkInactive(g *client.Group, h ipc.Handle) {
	if prev := g.GetInactiveClient(); prev != nil && prev.ClientHandle != h {
		s.unbindClient(g, prev, unbindOptions{notifyClient: true, isStopInactive: true})
		g.SetInactiveClient(ipc.Handle{})
	}
	_ = g.UpdateClientInfo(h, client.UpdateState(client.StateInactive))
	g.SetInactiveClient(h)
}

type unbindOptions struct {
	// notifyClient sends OnInputStop to the client itself.
	notifyClient bool
	// isStopInactive tells the client it lost an inactive binding.
	isStopInactive bool
	// skipIme leaves the IME alone, for an IME that is already gone.
	skipIme bool
}

// unbindClient ends info's binding. The client stays registered.
func (s *Session) unbindClient(g *client.Group, info *client.Info, opts unbindOptions) {
	if info.IsBound() && !opts.skipIme {
		if data := s.getImeData(info.BindImeType); data != nil && data.Core() != nil {
			channel := info.ChannelHandle
			_ = s.requestIme(data, ime.RequestStopInput, "StopInput", func(core protocol.InputMethodCore) error {
				return core.StopInput(channel)
			})
		}
	}
	if opts.notifyClient {
		if err := info.Client.OnInputStop(opts.isStopInactive); err != nil {
			s.logger.Warn("input stop not delivered", zap.Int32("pid", info.Pid), zap.Error(err))
		}
	}
	_ = g.UpdateClientInfo(info.ClientHandle,
		client.UpdateBindType(ime.TypeNone),
		client.UpdateShowKeyboard(false),
		client.UpdateNotifyInputStart(false),
	)
	if g.IsCurrentClient(info.ClientHandle) {
		g.SetCurrentClient(ipc.Handle{})
		g.NotifyInputStopToClients()
	}
	s.updateBoundGauge()
}

// OnReleaseInput ends the client's session. A non-zero sessionID must match
// the client's latest binding; a stale one is ignored. Releasing an unknown
// client succeeds.
func (s *Session) OnReleaseInput(h ipc.Handle, sessionID uint32) error {
	g, info := s.findClient(h)
	if info == nil {
		return nil
	}
	if sessionID != 0 && info.SessionID != sessionID {
		s.logger.Debug("stale release ignored",
			zap.Int32("pid", info.Pid),
			zap.Uint32("session_id", sessionID),
			zap.Uint32("current_session_id", info.SessionID),
		)
		return nil
	}
	s.removeClient(g, info, true)
	return nil
}

// removeClient unbinds info and forgets it
func (s *Session) removeClient(g *client.Group, info *client.Info, notifyClient bool) {
	if info.IsBound() || g.IsCurrentClient(info.ClientHandle) {
		s.unbindClient(g, info, unbindOptions{notifyClient: notifyClient})
	}
	if g.IsInactiveClient(info.ClientHandle) {
		g.SetInactiveClient(ipc.Handle{})
	}
	g.RemoveClientInfo(info.ClientHandle, false)
	s.logger.Info("client released", zap.Int32("pid", info.Pid))
}

// OnListenEvent changes the notifications a registered client receives
func (s *Session) OnListenEvent(info client.Info) error {
	g := s.group(s.displayGroupOf(info.DisplayID), true)
	return g.AddClientInfo(info, client.AddListen)
}
