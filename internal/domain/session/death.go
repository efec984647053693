package session

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/message"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
)

// onClientDeath runs on an IPC goroutine; the cleanup happens on the
// consumer.
func (s *Session) onClientDeath(h ipc.Handle) {
	s.post(message.New(message.MsgClientDied, message.DeathPayload(s.userID, 0, h)))
}

// OnClientDied forgets a dead client, unbinding it first and restoring any
// input type override it had caused.
func (s *Session) OnClientDied(h ipc.Handle) {
	g, info := s.findClient(h)
	if info == nil {
		return
	}
	s.metrics.IncClientDeaths()
	s.logger.Info("client died", zap.Int32("pid", info.Pid), zap.Bool("bound", info.IsBound()))

	wasCurrent := g.IsCurrentClient(h)
	if info.IsBound() || wasCurrent {
		s.unbindClient(g, info, unbindOptions{})
	}
	if g.IsInactiveClient(h) {
		g.SetInactiveClient(ipc.Handle{})
	}
	g.RemoveClientInfo(h, true)

	if wasCurrent {
		if err := s.restoreInputType(); err != nil {
			s.logger.Warn("input type not restored", zap.Error(err))
		}
	}
}

// OnImeDied recovers from the death of the IME of role t registered as h.
// Clients bound to it are told input stopped but keep their roles; a dead
// primary IME is restarted within the restart budget while the user is in
// the foreground.
func (s *Session) OnImeDied(h ipc.Handle, t ime.Type) {
	data := s.getImeData(t)
	if data == nil || data.Connection().CoreHandle != h {
		s.logger.Debug("stale ime death ignored", zap.Stringer("ime_type", t), zap.String("handle", h.String()))
		return
	}
	data.MarkDied()
	s.removeImeData(data)
	s.metrics.RecordImeDeath(t.String())
	s.logger.Warn("ime died",
		zap.Stringer("ime_type", t),
		zap.String("ime", data.BundleName),
		zap.Int32("pid", data.Connection().Pid),
	)

	s.detachClients(t, false)

	if t != ime.TypeIme {
		s.rebindCurrentClients(ime.TypeIme)
		return
	}
	// The connection went with the process.
	_ = s.deps.Connector.Disconnect(s.want(s.targetOf(data)))

	if s.deps.Accounts != nil && s.deps.Accounts.ForegroundUserID() != s.userID {
		s.logger.Info("background user, ime not restarted")
		return
	}
	if !s.budget.Allow() {
		s.metrics.RecordImeRestart("denied")
		s.logger.Error("ime restart budget exhausted", zap.String("ime", data.BundleName))
		return
	}
	s.metrics.RecordImeRestart("scheduled")
	s.post(message.New(message.MsgRestartIme, message.UserPayload(s.userID)))
}

// detachClients drops every binding to role t while leaving the clients'
// roles in place so they can be rebound.
func (s *Session) detachClients(t ime.Type, imeAlive bool) {
	for _, g := range s.allGroups() {
		for _, info := range g.ClientsBoundTo(t) {
			s.detachClient(g, info, imeAlive)
		}
	}
	s.updateBoundGauge()
}

func (s *Session) detachClient(g *client.Group, info *client.Info, imeAlive bool) {
	if imeAlive {
		if data := s.getReadyImeData(info.BindImeType); data != nil {
			channel := info.ChannelHandle
			_ = s.requestIme(data, ime.RequestStopInput, "StopInput", func(core protocol.InputMethodCore) error {
				return core.StopInput(channel)
			})
		}
	}
	if err := info.Client.OnInputStop(false); err != nil {
		s.logger.Warn("input stop not delivered", zap.Int32("pid", info.Pid), zap.Error(err))
	}
	_ = g.UpdateClientInfo(info.ClientHandle,
		client.UpdateBindType(ime.TypeNone),
		client.UpdateNotifyInputStart(false),
	)
	if g.IsCurrentClient(info.ClientHandle) {
		g.NotifyInputStopToClients()
	}
}
