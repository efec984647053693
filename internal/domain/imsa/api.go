package imsa

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/domain/client"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/session"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// Caller is the process identity the transport attached to a request
type Caller struct {
	Pid int32
	Uid int32
}

// InputRequest is what an editor sends to attach: its callback objects
// and editing context.
type InputRequest struct {
	Client                ipc.Handle
	Channel               ipc.Handle
	DisplayID             uint64
	Config                protocol.TextTotalConfig
	EventFlag             client.EventFlag
	IsShowKeyboard        bool
	RequestKeyboardReason int32
}

// ImeRegistration is what an IME process sends when it comes up
type ImeRegistration struct {
	BundleName string
	Core       ipc.Handle
	Agent      ipc.Handle
}

// userOf maps the caller to its OS user
func (s *Service) userOf(c Caller) int32 {
	return s.deps.Accounts.UserIDFromUID(c.Uid)
}

// owned checks that caller registered h
func (s *Service) owned(c Caller, h ipc.Handle) error {
	if h.IsZero() {
		return errs.ErrorNullPointer
	}
	pid, _, ok := s.deps.Registry.Owner(h)
	if !ok || !s.deps.Registry.IsAlive(h) {
		return errs.Wrap(errs.ErrorRemoteDead, "handle %s", h)
	}
	if pid != c.Pid {
		return errs.Wrap(errs.ErrorStatusPermissionDenied, "handle %s not owned by pid %d", h, c.Pid)
	}
	return nil
}

// call runs fn against the caller's session on the consumer goroutine
func (s *Service) call(ctx context.Context, userID int32, fn func(*session.Session) error) error {
	if !s.started.Load() {
		return errs.ErrorServiceStartFailed
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.Config.CallTimeout)
	defer cancel()

	var err error
	if cerr := s.pump.Call(ctx, func() {
		sess := s.session(userID)
		if sess == nil {
			err = errs.Wrap(errs.ErrorUserNotFound, "user %d", userID)
			return
		}
		err = fn(sess)
	}); cerr != nil {
		return cerr
	}
	return err
}

func (s *Service) clientInfo(c Caller, req InputRequest) (client.Info, error) {
	if err := s.owned(c, req.Client); err != nil {
		return client.Info{}, err
	}
	if err := s.owned(c, req.Channel); err != nil {
		return client.Info{}, err
	}
	return client.Info{
		Pid:                   c.Pid,
		Uid:                   c.Uid,
		UserID:                s.userOf(c),
		DisplayID:             req.DisplayID,
		Client:                protocol.NewClientProxy(s.deps.Registry.Remote(req.Client)),
		ClientHandle:          req.Client,
		Channel:               protocol.NewChannelProxy(s.deps.Registry.Remote(req.Channel)),
		ChannelHandle:         req.Channel,
		Config:                req.Config,
		EventFlag:             req.EventFlag,
		IsShowKeyboard:        req.IsShowKeyboard,
		RequestKeyboardReason: req.RequestKeyboardReason,
	}, nil
}

// PrepareInput attaches an editor without binding it
func (s *Service) PrepareInput(ctx context.Context, c Caller, req InputRequest) error {
	info, err := s.clientInfo(c, req)
	if err != nil {
		return err
	}
	return s.call(ctx, info.UserID, func(sess *session.Session) error {
		return sess.OnPrepareInput(info)
	})
}

// StartInput binds an editor to the IME serving its display
func (s *Service) StartInput(ctx context.Context, c Caller, req InputRequest, isBindFromClient bool) (session.StartInputResult, error) {
	info, err := s.clientInfo(c, req)
	if err != nil {
		return session.StartInputResult{}, err
	}
	var res session.StartInputResult
	err = s.call(ctx, info.UserID, func(sess *session.Session) error {
		var err error
		res, err = sess.OnStartInput(info, isBindFromClient)
		return err
	})
	return res, err
}

// UpdateListenEventFlag changes which broadcasts an attached editor gets
func (s *Service) UpdateListenEventFlag(ctx context.Context, c Caller, req InputRequest) error {
	info, err := s.clientInfo(c, req)
	if err != nil {
		return err
	}
	return s.call(ctx, info.UserID, func(sess *session.Session) error {
		return sess.OnListenEvent(info)
	})
}

// ReleaseInput detaches an editor. sessionID 0 releases whatever binding
// the editor has.
func (s *Service) ReleaseInput(ctx context.Context, c Caller, clientHandle ipc.Handle, sessionID uint32) error {
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		return sess.OnReleaseInput(clientHandle, sessionID)
	})
}

// ShowInput shows the keyboard for the caller's focused editor
func (s *Service) ShowInput(ctx context.Context, c Caller, clientHandle ipc.Handle) error {
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		return sess.OnShowInput(clientHandle)
	})
}

// HideInput hides the keyboard of the caller's focused editor
func (s *Service) HideInput(ctx context.Context, c Caller, clientHandle ipc.Handle) error {
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		return sess.OnHideInput(clientHandle)
	})
}

// RequestShowInput shows the keyboard for whatever editor is current on
// displayID.
func (s *Service) RequestShowInput(ctx context.Context, c Caller, displayID uint64) error {
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		return sess.OnRequestShowInput(displayID)
	})
}

// RequestHideInput hides the keyboard on displayID.
func (s *Service) RequestHideInput(ctx context.Context, c Caller, displayID uint64) error {
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		return sess.OnRequestHideInput(displayID)
	})
}

// ShowCurrentInput shows the keyboard on the main display
func (s *Service) ShowCurrentInput(ctx context.Context, c Caller) error {
	return s.RequestShowInput(ctx, c, 0)
}

// HideCurrentInput hides the keyboard on the main display
func (s *Service) HideCurrentInput(ctx context.Context, c Caller) error {
	return s.RequestHideInput(ctx, c, 0)
}

// SwitchInputMethod makes bundleName, optionally with subtype subName, the
// caller's configured and running IME.
func (s *Service) SwitchInputMethod(ctx context.Context, c Caller, bundleName, subName string) error {
	userID := s.userOf(c)
	target, err := s.deps.Inquirer.Target(userID, bundleName, subName)
	if err != nil {
		return err
	}
	err = s.call(ctx, userID, func(sess *session.Session) error {
		if err := sess.OnSwitchIme(target); err != nil {
			return err
		}
		s.setApplied(userID, target)
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.deps.Settings.SetCurrentIme(userID, target); err != nil {
		s.logger.Warn("switched ime not persisted", zap.Stringer("ime", target), zap.Error(err))
	}
	return nil
}

// GetCurrentInputMethod describes the caller's running IME.
func (s *Service) GetCurrentInputMethod(c Caller) (protocol.Property, error) {
	userID := s.userOf(c)
	sess := s.session(userID)
	if sess == nil {
		return protocol.Property{}, errs.Wrap(errs.ErrorUserNotFound, "user %d", userID)
	}
	t, ok := sess.CurrentIme()
	if !ok {
		return protocol.Property{}, errs.ErrorImeNotStarted
	}
	return s.deps.Inquirer.GetImeProperty(userID, t.BundleName)
}

// ListInputMethods lists the IMEs installed for the caller's user
func (s *Service) ListInputMethods(c Caller) []protocol.Property {
	return s.deps.Inquirer.ListInputMethods(s.userOf(c))
}

// IsPanelShown asks the running IME whether panel is visible
func (s *Service) IsPanelShown(c Caller, panel protocol.PanelInfo) (bool, error) {
	userID := s.userOf(c)
	sess := s.session(userID)
	if sess == nil {
		return false, errs.Wrap(errs.ErrorUserNotFound, "user %d", userID)
	}
	return sess.IsPanelShown(panel)
}

// SetCoreAndAgent registers a started IME process. It runs on the
// caller's goroutine: the consumer may be waiting for exactly this call.
func (s *Service) SetCoreAndAgent(c Caller, reg ImeRegistration) error {
	conn, err := s.connection(c, reg)
	if err != nil {
		return err
	}
	userID := s.userOf(c)
	sess := s.session(userID)
	if sess == nil {
		return errs.Wrap(errs.ErrorUserNotFound, "user %d", userID)
	}
	return sess.OnSetCoreAndAgent(reg.BundleName, conn)
}

func (s *Service) connection(c Caller, reg ImeRegistration) (ime.Connection, error) {
	if err := s.owned(c, reg.Core); err != nil {
		return ime.Connection{}, err
	}
	if err := s.owned(c, reg.Agent); err != nil {
		return ime.Connection{}, err
	}
	return ime.Connection{
		Core:       protocol.NewCoreProxy(s.deps.Registry.Remote(reg.Core)),
		CoreHandle: reg.Core,
		Agent:      reg.Agent,
		Pid:        c.Pid,
		Uid:        c.Uid,
	}, nil
}

// RegisterProxyIme installs the caller as proxy IME or proxy agent. Only
// uids listed in the system configuration may do so.
func (s *Service) RegisterProxyIme(ctx context.Context, c Caller, t ime.Type, reg ImeRegistration) error {
	if !s.deps.System.IsProxyImeUID(c.Uid) {
		return errs.Wrap(errs.ErrorStatusPermissionDenied, "uid %d may not register a proxy ime", c.Uid)
	}
	conn, err := s.connection(c, reg)
	if err != nil {
		return err
	}
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		return sess.OnRegisterProxyIme(t, reg.BundleName, conn)
	})
}

// UnregisterProxyIme removes the caller's proxy registration
func (s *Service) UnregisterProxyIme(ctx context.Context, c Caller, t ime.Type, core ipc.Handle) error {
	if !s.deps.System.IsProxyImeUID(c.Uid) {
		return errs.Wrap(errs.ErrorStatusPermissionDenied, "uid %d may not unregister a proxy ime", c.Uid)
	}
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		return sess.OnUnregisterProxyIme(t, core)
	})
}

// imeRole finds the IME role of the calling process
func imeRole(sess *session.Session, c Caller) (ime.Type, error) {
	t, ok := sess.RoleOfPid(c.Pid)
	if !ok {
		return ime.TypeNone, errs.Wrap(errs.ErrorNotCurrentIme, "pid %d", c.Pid)
	}
	return t, nil
}

// SendPrivateCommand passes a command from the calling IME to its editor
func (s *Service) SendPrivateCommand(ctx context.Context, c Caller, cmd protocol.PrivateCommand) error {
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		t, err := imeRole(sess, c)
		if err != nil {
			return err
		}
		return sess.OnSendPrivateCommand(t, cmd)
	})
}

// PanelStatusChange reports a panel change of the calling IME.
func (s *Service) PanelStatusChange(ctx context.Context, c Caller, status protocol.InputWindowStatus, windows []protocol.ImeWindowInfo) error {
	return s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		t, err := imeRole(sess, c)
		if err != nil {
			return err
		}
		sess.OnPanelStatusChange(t, status, windows)
		return nil
	})
}

// ConnectSystemCmd connects a system command channel to the running IME
// and returns its agent.
func (s *Service) ConnectSystemCmd(ctx context.Context, c Caller, channel ipc.Handle) (ipc.Handle, error) {
	if err := s.owned(c, channel); err != nil {
		return ipc.Handle{}, err
	}
	var agent ipc.Handle
	err := s.call(ctx, s.userOf(c), func(sess *session.Session) error {
		var err error
		agent, err = sess.OnConnectSystemCmd(channel)
		return err
	})
	return agent, err
}

var inputTypeNames = map[protocol.InputType]string{
	protocol.InputTypeCameraInput:   "camera",
	protocol.InputTypeSecurityInput: "security",
	protocol.InputTypeVoiceInput:    "voice",
}

// SetInputType switches the caller's user to the IME configured for t.
// InputTypeNone goes back to the configured IME.
func (s *Service) SetInputType(ctx context.Context, c Caller, t protocol.InputType) error {
	userID := s.userOf(c)
	var target ime.Target
	if t != protocol.InputTypeNone {
		name, ok := inputTypeNames[t]
		if !ok {
			return errs.Wrap(errs.ErrorBadParameters, "input type %d", t)
		}
		raw, ok := s.deps.System.InputTypeIme(name)
		if !ok {
			return errs.Wrap(errs.ErrorBadParameters, "no ime serves %s input", name)
		}
		var err error
		if target, err = ime.ParseTarget(raw); err != nil {
			return err
		}
	}
	return s.call(ctx, userID, func(sess *session.Session) error {
		return sess.OnSetInputType(t, target)
	})
}

// NotifySecurityChange tells userID's IME that bundleName now runs in mode
func (s *Service) NotifySecurityChange(ctx context.Context, userID int32, bundleName string, mode protocol.SecurityMode) error {
	return s.call(ctx, userID, func(sess *session.Session) error {
		return sess.OnSecurityChange(bundleName, mode)
	})
}

// OnFocused reports a window of pid/uid gaining focus on displayID.
func (s *Service) OnFocused(ctx context.Context, displayID uint64, pid, uid int32) error {
	return s.call(ctx, s.userOf(Caller{Pid: pid, Uid: uid}), func(sess *session.Session) error {
		sess.OnFocused(displayID, pid, uid)
		return nil
	})
}

// OnUnfocused reports a window of pid/uid losing focus on displayID.
func (s *Service) OnUnfocused(ctx context.Context, displayID uint64, pid, uid int32) error {
	return s.call(ctx, s.userOf(Caller{Pid: pid, Uid: uid}), func(sess *session.Session) error {
		sess.OnUnfocused(displayID, pid, uid)
		return nil
	})
}

// DumpUser snapshots the session of userID.
func (s *Service) DumpUser(userID int32) (session.Dump, error) {
	sess := s.session(userID)
	if sess == nil {
		return session.Dump{}, errs.Wrap(errs.ErrorUserNotFound, "user %d", userID)
	}
	return sess.Dump(), nil
}
