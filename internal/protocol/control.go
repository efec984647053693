package protocol

import (
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// ControlDescriptor is the interface token of the control channel stub.
const ControlDescriptor = "imf.IInputControlChannel"

// ControlCode is the opcode of an InputControlChannel call.
type ControlCode uint32

const (
	ControlHideKeyboardSelf ControlCode = iota + 1
	ControlSwitchInputMethod
)

// InputControlChannel lets a running IME drive the service. The service
// hands one to every IME through InitInputControlChannel.
type InputControlChannel interface {
	HideKeyboardSelf() error
	SwitchInputMethod(bundleName, subName string) error
}

type ControlProxy struct {
	remote ipc.Remote
}

func NewControlProxy(remote ipc.Remote) *ControlProxy {
	return &ControlProxy{remote: remote}
}

func (p *ControlProxy) HideKeyboardSelf() error {
	_, err := transact(p.remote, ControlDescriptor, uint32(ControlHideKeyboardSelf), nil, ipc.Option{})
	return err
}

func (p *ControlProxy) SwitchInputMethod(bundleName, subName string) error {
	_, err := transact(p.remote, ControlDescriptor, uint32(ControlSwitchInputMethod),
		args(stringArg(bundleName), stringArg(subName)), ipc.Option{})
	return err
}

type ControlStub struct {
	impl InputControlChannel
}

func NewControlStub(impl InputControlChannel) *ControlStub {
	return &ControlStub{impl: impl}
}

func (s *ControlStub) Descriptor() string { return ControlDescriptor }

func (s *ControlStub) OnRemoteRequest(code uint32, data, reply *ipc.Parcel, _ ipc.Option) error {
	if err := ipc.CheckInterfaceToken(data, ControlDescriptor); err != nil {
		return err
	}
	switch ControlCode(code) {
	case ControlHideKeyboardSelf:
		return writeStatus(reply, s.impl.HideKeyboardSelf())
	case ControlSwitchInputMethod:
		bundle, err := data.ReadString()
		if err != nil {
			return err
		}
		sub, err := data.ReadString()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.SwitchInputMethod(bundle, sub))
	default:
		return errs.Wrap(errs.ErrorStatusUnknownTransaction, "control opcode %d", code)
	}
}
