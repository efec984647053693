package session

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
)

func isOwner(info *client.Info, pid, uid int32) bool {
	return info.Pid == pid && info.Uid == uid
}

// OnFocused handles a window of pid gaining focus on displayID. Outside
// scene-board mode a current client that lost focus without being told is
// released.
func (s *Session) OnFocused(displayID uint64, pid, uid int32) {
	g := s.group(s.displayGroupOf(displayID), false)
	if g == nil {
		return
	}
	cur := g.GetCurrentClient()
	if cur == nil || isOwner(cur, pid, uid) || s.policy.SceneBoard {
		return
	}
	s.logger.Info("focus moved off current client", zap.Int32("pid", cur.Pid), zap.Int32("focused_pid", pid))
	s.removeClient(g, cur, true)
}

// OnUnfocused handles a window of pid losing focus. The current client is
// released, or in scene-board mode parked as inactive with its binding.
func (s *Session) OnUnfocused(displayID uint64, pid, uid int32) {
	g := s.group(s.displayGroupOf(displayID), false)
	if g == nil {
		return
	}
	cur := g.GetCurrentClient()
	if cur == nil || !isOwner(cur, pid, uid) {
		return
	}
	if !s.policy.SceneBoard {
		s.removeClient(g, cur, true)
		return
	}
	s.deactivateClient(g, cur)
}

// deactivateClient parks the current client: it keeps its binding, the IME
// is told the client went inactive and the client is told to deactivate.
func (s *Session) deactivateClient(g *client.Group, info *client.Info) {
	if prev := g.GetInactiveClient(); prev != nil && prev.ClientHandle != info.ClientHandle {
		s.unbindClient(g, prev, unbindOptions{notifyClient: true, isStopInactive: true})
	}
	g.SetCurrentClient(ipc.Handle{})
	_ = g.UpdateClientInfo(info.ClientHandle, client.UpdateState(client.StateInactive))
	g.SetInactiveClient(info.ClientHandle)

	if data := s.getReadyImeData(info.BindImeType); data != nil && info.IsBound() {
		channel := info.ChannelHandle
		_ = s.requestIme(data, ime.RequestNormal, "OnClientInactive", func(core protocol.InputMethodCore) error {
			return core.OnClientInactive(channel)
		})
	}
	if err := info.Client.DeactivateClient(); err != nil {
		s.logger.Warn("deactivate not delivered", zap.Int32("pid", info.Pid), zap.Error(err))
	}
	g.NotifyInputStopToClients()
	s.logger.Info("client parked", zap.Int32("pid", info.Pid))
}
