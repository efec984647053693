package session

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
	"github.com/GriffinCanCode/imf/internal/shared/strutil"
)

// focusedClient returns h's entry if h is the current client of its group
func (s *Session) focusedClient(h ipc.Handle) (*client.Group, *client.Info, error) {
	g, info := s.findClient(h)
	if info == nil {
		return nil, nil, errs.ErrorClientNotFound
	}
	if !g.IsCurrentClient(h) {
		return nil, nil, errs.ErrorClientNotFocused
	}
	return g, info, nil
}

func (s *Session) boundData(info *client.Info) (*ime.Data, error) {
	if !info.IsBound() {
		return nil, errs.ErrorClientNotBound
	}
	data := s.getReadyImeData(info.BindImeType)
	if data == nil {
		return nil, errs.ErrorImeNotStarted
	}
	return data, nil
}

func (s *Session) showKeyboard(g *client.Group, info *client.Info) error {
	data, err := s.boundData(info)
	if err != nil {
		return err
	}
	if err := s.requestIme(data, ime.RequestShow, "ShowKeyboard", protocol.InputMethodCore.ShowKeyboard); err != nil {
		return errs.Wrap(errs.ErrorKbdShowFailed, "show for pid %d: %v", info.Pid, err)
	}
	return g.UpdateClientInfo(info.ClientHandle, client.UpdateShowKeyboard(true))
}

func (s *Session) hideKeyboard(g *client.Group, info *client.Info) error {
	data, err := s.boundData(info)
	if err != nil {
		return err
	}
	if err := s.requestIme(data, ime.RequestHide, "HideKeyboard", protocol.InputMethodCore.HideKeyboard); err != nil {
		return errs.Wrap(errs.ErrorKbdHideFailed, "hide for pid %d: %v", info.Pid, err)
	}
	return g.UpdateClientInfo(info.ClientHandle, client.UpdateShowKeyboard(false))
}

// OnShowInput shows the keyboard for the current client h
func (s *Session) OnShowInput(h ipc.Handle) error {
	g, info, err := s.focusedClient(h)
	if err != nil {
		return err
	}
	return s.showKeyboard(g, info)
}

// OnHideInput hides the keyboard of the current client h
func (s *Session) OnHideInput(h ipc.Handle) error {
	g, info, err := s.focusedClient(h)
	if err != nil {
		return err
	}
	return s.hideKeyboard(g, info)
}

func (s *Session) currentOf(displayID uint64) (*client.Group, *client.Info, error) {
	g := s.group(s.displayGroupOf(displayID), false)
	if g == nil {
		return nil, nil, errs.ErrorClientNotFocused
	}
	info := g.GetCurrentClient()
	if info == nil {
		return nil, nil, errs.ErrorClientNotFocused
	}
	return g, info, nil
}

// OnRequestShowInput shows the keyboard for whichever client is current on
// displayID. It backs the system-level show request.
func (s *Session) OnRequestShowInput(displayID uint64) error {
	g, info, err := s.currentOf(displayID)
	if err != nil {
		return err
	}
	return s.showKeyboard(g, info)
}

// OnRequestHideInput hides the keyboard on displayID.
func (s *Session) OnRequestHideInput(displayID uint64) error {
	g, info, err := s.currentOf(displayID)
	if err != nil {
		return err
	}
	return s.hideKeyboard(g, info)
}

// OnHideKeyboardSelf records that the IME of role t hid its own panel
func (s *Session) OnHideKeyboardSelf(t ime.Type) error {
	for _, g := range s.allGroups() {
		info := g.GetCurrentClient()
		if info == nil || info.BindImeType != t {
			continue
		}
		_ = g.UpdateClientInfo(info.ClientHandle, client.UpdateShowKeyboard(false))
		g.NotifyPanelStatusChange(protocol.InputWindowHide, nil)
		return nil
	}
	return errs.ErrorClientNotFound
}

// OnPanelStatusChange fans a panel change reported by the IME of role t
// out to listeners of the groups it serves.
func (s *Session) OnPanelStatusChange(t ime.Type, status protocol.InputWindowStatus, windows []protocol.ImeWindowInfo) {
	for _, g := range s.allGroups() {
		info := g.GetCurrentClient()
		if info == nil || info.BindImeType != t {
			continue
		}
		if status != protocol.InputWindowNone {
			_ = g.UpdateClientInfo(info.ClientHandle, client.UpdateShowKeyboard(status == protocol.InputWindowShow))
		}
		g.NotifyPanelStatusChange(status, windows)
	}
}

// IsPanelShown asks the primary IME whether panel is visible
func (s *Session) IsPanelShown(panel protocol.PanelInfo) (bool, error) {
	data := s.getReadyImeData(ime.TypeIme)
	if data == nil {
		return false, errs.ErrorImeNotStarted
	}
	var shown bool
	err := s.requestIme(data, ime.RequestNormal, "IsPanelShown", func(core protocol.InputMethodCore) error {
		var err error
		shown, err = core.IsPanelShown(panel)
		return err
	})
	return shown, err
}

func (s *Session) currentChannel() (*client.Info, error) {
	_, info, err := s.currentOf(0)
	if err != nil {
		return nil, err
	}
	if info.Channel == nil {
		return nil, errs.ErrorClientNullPointer
	}
	return info, nil
}

// OnSelectByRange forwards a system selection request to the current
// client's editor.
func (s *Session) OnSelectByRange(start, end int32) error {
	if start < 0 || end < 0 {
		return errs.Wrap(errs.ErrorBadParameters, "range %d..%d", start, end)
	}
	info, err := s.currentChannel()
	if err != nil {
		return err
	}
	return info.Channel.SelectByRange(start, end)
}

// OnSelectByMovement forwards a cursor movement to the current client
func (s *Session) OnSelectByMovement(direction, cursorMoveSkip int32) error {
	info, err := s.currentChannel()
	if err != nil {
		return err
	}
	return info.Channel.SelectByMovement(direction, cursorMoveSkip)
}

// OnSendPrivateCommand delivers an IME private command to the current
// client. With no bound client the command waits on the IME's data for
// the next bind.
func (s *Session) OnSendPrivateCommand(t ime.Type, cmd protocol.PrivateCommand) error {
	if len(cmd) == 0 || len(cmd) > protocol.MaxPrivateCommandEntries {
		return errs.Wrap(errs.ErrorBadParameters, "private command with %d entries", len(cmd))
	}
	if ce := s.logger.Check(zap.DebugLevel, "private command"); ce != nil {
		keys := make([]string, 0, len(cmd))
		for k := range cmd {
			keys = append(keys, strutil.ToHex(k))
		}
		ce.Write(zap.Strings("keys", keys))
	}

	info, err := s.currentChannel()
	if err != nil || info.BindImeType != t {
		data := s.getImeData(t)
		if data == nil {
			return errs.ErrorImeNotStarted
		}
		data.SetPendingCommand(cmd)
		return nil
	}
	return info.Channel.SendPrivateCommand(cmd)
}
