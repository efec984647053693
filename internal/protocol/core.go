package protocol

import (
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// CoreDescriptor is the interface token of the IME core stub.
const CoreDescriptor = "imf.IInputMethodCore"

// CoreCode is the opcode of an InputMethodCore call. Zero is never valid.
type CoreCode uint32

const (
	CoreInitInputControlChannel CoreCode = iota + 1
	CoreStartInput
	CoreStopInput
	CoreShowKeyboard
	CoreHideKeyboard
	CoreStopInputService
	CoreSetSubtype
	CoreIsEnable
	CoreIsPanelShown
	CoreOnSecurityChange
	CoreOnConnectSystemCmd
	CoreOnClientInactive
	CoreOnSetInputType
	CoreOnCallingDisplayIDChanged
)

// InputMethodCore is the control surface an IME process exposes to the
// service.
type InputMethodCore interface {
	InitInputControlChannel(control ipc.Handle) error
	StartInput(info InputClientInfo, isBindFromClient bool) error
	StopInput(channel ipc.Handle) error
	ShowKeyboard() error
	HideKeyboard() error
	StopInputService(isTerminateIme bool) error
	SetSubtype(sub SubProperty) error
	IsEnable() (bool, error)
	IsPanelShown(info PanelInfo) (bool, error)
	OnSecurityChange(mode SecurityMode) error
	OnConnectSystemCmd(channel ipc.Handle) (ipc.Handle, error)
	OnClientInactive(channel ipc.Handle) error
	OnSetInputType(t InputType) error
	OnCallingDisplayIDChanged(displayID uint64) error
}

// CoreProxy calls an IME core over IPC.
type CoreProxy struct {
	remote ipc.Remote
}

// NewCoreProxy binds a proxy to remote.
func NewCoreProxy(remote ipc.Remote) *CoreProxy {
	return &CoreProxy{remote: remote}
}

// Handle returns the handle the proxy talks to.
func (p *CoreProxy) Handle() ipc.Handle { return p.remote.Handle() }

func (p *CoreProxy) call(code CoreCode, write func(*ipc.Parcel) error) (*ipc.Parcel, error) {
	return transact(p.remote, CoreDescriptor, uint32(code), write, ipc.Option{})
}

func (p *CoreProxy) InitInputControlChannel(control ipc.Handle) error {
	_, err := p.call(CoreInitInputControlChannel, args(handleArg(control)))
	return err
}

func (p *CoreProxy) StartInput(info InputClientInfo, isBindFromClient bool) error {
	_, err := p.call(CoreStartInput, args(&info, boolArg(isBindFromClient)))
	return err
}

func (p *CoreProxy) StopInput(channel ipc.Handle) error {
	_, err := p.call(CoreStopInput, args(handleArg(channel)))
	return err
}

func (p *CoreProxy) ShowKeyboard() error {
	_, err := p.call(CoreShowKeyboard, nil)
	return err
}

func (p *CoreProxy) HideKeyboard() error {
	_, err := p.call(CoreHideKeyboard, nil)
	return err
}

func (p *CoreProxy) StopInputService(isTerminateIme bool) error {
	_, err := p.call(CoreStopInputService, args(boolArg(isTerminateIme)))
	return err
}

func (p *CoreProxy) SetSubtype(sub SubProperty) error {
	_, err := p.call(CoreSetSubtype, args(&sub))
	return err
}

func (p *CoreProxy) IsEnable() (bool, error) {
	reply, err := p.call(CoreIsEnable, nil)
	if err != nil {
		return false, err
	}
	return reply.ReadBool()
}

func (p *CoreProxy) IsPanelShown(info PanelInfo) (bool, error) {
	reply, err := p.call(CoreIsPanelShown, args(&info))
	if err != nil {
		return false, err
	}
	return reply.ReadBool()
}

func (p *CoreProxy) OnSecurityChange(mode SecurityMode) error {
	_, err := p.call(CoreOnSecurityChange, args(int32Arg(mode)))
	return err
}

func (p *CoreProxy) OnConnectSystemCmd(channel ipc.Handle) (ipc.Handle, error) {
	reply, err := p.call(CoreOnConnectSystemCmd, args(handleArg(channel)))
	if err != nil {
		return ipc.Handle{}, err
	}
	return reply.ReadHandle()
}

func (p *CoreProxy) OnClientInactive(channel ipc.Handle) error {
	_, err := p.call(CoreOnClientInactive, args(handleArg(channel)))
	return err
}

func (p *CoreProxy) OnSetInputType(t InputType) error {
	_, err := p.call(CoreOnSetInputType, args(int32Arg(t)))
	return err
}

func (p *CoreProxy) OnCallingDisplayIDChanged(displayID uint64) error {
	_, err := p.call(CoreOnCallingDisplayIDChanged, args(uint64Arg(displayID)))
	return err
}

// CoreStub dispatches inbound core calls to an implementation. All
// arguments are read before the implementation runs, so a malformed call
// has no side effects.
type CoreStub struct {
	impl InputMethodCore
}

// NewCoreStub wraps impl.
func NewCoreStub(impl InputMethodCore) *CoreStub {
	return &CoreStub{impl: impl}
}

func (s *CoreStub) Descriptor() string { return CoreDescriptor }

func (s *CoreStub) OnRemoteRequest(code uint32, data, reply *ipc.Parcel, _ ipc.Option) error {
	if err := ipc.CheckInterfaceToken(data, CoreDescriptor); err != nil {
		return err
	}
	switch CoreCode(code) {
	case CoreInitInputControlChannel:
		h, err := data.ReadHandle()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.InitInputControlChannel(h))
	case CoreStartInput:
		var info InputClientInfo
		if err := info.Unmarshal(data); err != nil {
			return err
		}
		fromClient, err := data.ReadBool()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.StartInput(info, fromClient))
	case CoreStopInput:
		h, err := data.ReadHandle()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.StopInput(h))
	case CoreShowKeyboard:
		return writeStatus(reply, s.impl.ShowKeyboard())
	case CoreHideKeyboard:
		return writeStatus(reply, s.impl.HideKeyboard())
	case CoreStopInputService:
		terminate, err := data.ReadBool()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.StopInputService(terminate))
	case CoreSetSubtype:
		var sub SubProperty
		if err := sub.Unmarshal(data); err != nil {
			return err
		}
		return writeStatus(reply, s.impl.SetSubtype(sub))
	case CoreIsEnable:
		enabled, err := s.impl.IsEnable()
		return writeResult(reply, err, args(boolArg(enabled)))
	case CoreIsPanelShown:
		var info PanelInfo
		if err := info.Unmarshal(data); err != nil {
			return err
		}
		shown, err := s.impl.IsPanelShown(info)
		return writeResult(reply, err, args(boolArg(shown)))
	case CoreOnSecurityChange:
		mode, err := data.ReadInt32()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.OnSecurityChange(SecurityMode(mode)))
	case CoreOnConnectSystemCmd:
		h, err := data.ReadHandle()
		if err != nil {
			return err
		}
		agent, err := s.impl.OnConnectSystemCmd(h)
		return writeResult(reply, err, args(handleArg(agent)))
	case CoreOnClientInactive:
		h, err := data.ReadHandle()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.OnClientInactive(h))
	case CoreOnSetInputType:
		t, err := data.ReadInt32()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.OnSetInputType(InputType(t)))
	case CoreOnCallingDisplayIDChanged:
		id, err := data.ReadUint64()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.OnCallingDisplayIDChanged(id))
	default:
		return errs.Wrap(errs.ErrorStatusUnknownTransaction, "core opcode %d", code)
	}
}
