package session

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// imeTypeFor returns the role that serves clients of a display group.
// Secondary display groups use the proxy agent when one is registered;
// the main group uses an enabled proxy IME over the primary IME.
func (s *Session) imeTypeFor(displayGroupID uint64) ime.Type {
	if displayGroupID != DefaultDisplayGroup {
		if s.getReadyImeData(ime.TypeProxyAgentIme) != nil {
			return ime.TypeProxyAgentIme
		}
		return ime.TypeIme
	}
	if s.IsProxyImeEnable() {
		return ime.TypeProxyIme
	}
	return ime.TypeIme
}

// IsProxyImeEnable reports whether a proxy IME is registered and says it
// is enabled.
func (s *Session) IsProxyImeEnable() bool {
	data := s.getReadyImeData(ime.TypeProxyIme)
	if data == nil {
		return false
	}
	var enabled bool
	err := s.requestIme(data, ime.RequestNormal, "IsEnable", func(core protocol.InputMethodCore) error {
		var err error
		enabled, err = core.IsEnable()
		return err
	})
	return err == nil && enabled
}

// OnRegisterProxyIme installs a self-registering IME in role t, replacing
// a previous registration. Current clients the new role should serve are
// moved to it.
func (s *Session) OnRegisterProxyIme(t ime.Type, bundleName string, conn ime.Connection) error {
	if t != ime.TypeProxyIme && t != ime.TypeProxyAgentIme {
		return errs.Wrap(errs.ErrorBadParameters, "cannot register as %s", t)
	}
	if conn.Core == nil || conn.CoreHandle.IsZero() || conn.Agent.IsZero() {
		return errs.ErrorNullPointer
	}
	if old := s.getImeData(t); old != nil {
		if old.Connection().CoreHandle == conn.CoreHandle {
			return nil
		}
		s.detachClients(t, true)
		s.unwatch(old.Connection().CoreHandle)
		s.removeImeData(old)
	}

	freeze := ime.NewFreezeManager(conn.Pid, s.deps.Processes, s.logger)
	data := ime.NewReadyData(t, bundleName, conn, freeze, s.clock.Now())
	if err := s.watchIme(data, conn.CoreHandle); err != nil {
		return err
	}
	s.setImeData(data)
	s.logger.Info("proxy ime registered",
		zap.Stringer("ime_type", t),
		zap.String("ime", bundleName),
		zap.Int32("pid", conn.Pid),
	)

	for _, g := range s.allGroups() {
		if s.imeTypeFor(g.DisplayGroupID()) != t {
			continue
		}
		if cur := g.GetCurrentClient(); cur != nil && cur.IsBound() && cur.BindImeType != t {
			s.detachClient(g, cur, true)
		}
	}
	s.updateBoundGauge()
	s.rebindCurrentClients(t)
	return nil
}

// OnUnregisterProxyIme removes the registration of role t made with
// coreHandle. Its clients fall back to the primary IME.
func (s *Session) OnUnregisterProxyIme(t ime.Type, coreHandle ipc.Handle) error {
	data := s.getImeData(t)
	if data == nil || data.Connection().CoreHandle != coreHandle {
		return errs.Wrap(errs.ErrorNotCurrentIme, "%s not registered by caller", t)
	}
	s.detachClients(t, true)
	s.unwatch(coreHandle)
	s.removeImeData(data)
	s.logger.Info("proxy ime unregistered", zap.Stringer("ime_type", t), zap.String("ime", data.BundleName))
	s.rebindCurrentClients(ime.TypeIme)
	return nil
}
