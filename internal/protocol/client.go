package protocol

import (
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// ClientDescriptor is the interface token of the client stub.
const ClientDescriptor = "imf.IInputClient"

// ClientCode is the opcode of an InputClient call.
type ClientCode uint32

const (
	ClientOnInputReady ClientCode = iota + 1
	ClientOnInputStop
	ClientOnInputStopAsync
	ClientOnSwitchInput
	ClientOnPanelStatusChange
	ClientNotifyInputStart
	ClientNotifyInputStop
	ClientDeactivateClient
)

// ImeProcessInfo identifies the IME a client was bound to.
type ImeProcessInfo struct {
	Pid        int32
	BundleName string
}

// InputClient is the callback surface of an attached text editor.
type InputClient interface {
	OnInputReady(agent ipc.Handle, ime ImeProcessInfo) error
	OnInputStop(isStopInactiveClient bool) error
	OnInputStopAsync(isStopInactiveClient bool) error
	OnSwitchInput(prop Property, sub SubProperty) error
	OnPanelStatusChange(status InputWindowStatus, windows []ImeWindowInfo) error
	NotifyInputStart(callingWindowID uint32, requestKeyboardReason int32) error
	NotifyInputStop() error
	DeactivateClient() error
}

// ClientProxy calls a client over IPC.
type ClientProxy struct {
	remote ipc.Remote
}

func NewClientProxy(remote ipc.Remote) *ClientProxy {
	return &ClientProxy{remote: remote}
}

func (p *ClientProxy) Handle() ipc.Handle { return p.remote.Handle() }

func (p *ClientProxy) call(code ClientCode, write func(*ipc.Parcel) error, async bool) error {
	_, err := transact(p.remote, ClientDescriptor, uint32(code), write, ipc.Option{Async: async})
	return err
}

func (p *ClientProxy) OnInputReady(agent ipc.Handle, ime ImeProcessInfo) error {
	return p.call(ClientOnInputReady, args(handleArg(agent), int32Arg(ime.Pid), stringArg(ime.BundleName)), false)
}

func (p *ClientProxy) OnInputStop(isStopInactiveClient bool) error {
	return p.call(ClientOnInputStop, args(boolArg(isStopInactiveClient)), false)
}

func (p *ClientProxy) OnInputStopAsync(isStopInactiveClient bool) error {
	return p.call(ClientOnInputStopAsync, args(boolArg(isStopInactiveClient)), true)
}

func (p *ClientProxy) OnSwitchInput(prop Property, sub SubProperty) error {
	return p.call(ClientOnSwitchInput, args(&prop, &sub), false)
}

func (p *ClientProxy) OnPanelStatusChange(status InputWindowStatus, windows []ImeWindowInfo) error {
	return p.call(ClientOnPanelStatusChange, func(data *ipc.Parcel) error {
		data.WriteInt32(int32(status))
		data.WriteUint32(uint32(len(windows)))
		for i := range windows {
			if err := windows[i].Marshal(data); err != nil {
				return err
			}
		}
		return data.Err()
	}, false)
}

func (p *ClientProxy) NotifyInputStart(callingWindowID uint32, requestKeyboardReason int32) error {
	return p.call(ClientNotifyInputStart, args(uint32Arg(callingWindowID), int32Arg(requestKeyboardReason)), false)
}

func (p *ClientProxy) NotifyInputStop() error {
	return p.call(ClientNotifyInputStop, nil, false)
}

func (p *ClientProxy) DeactivateClient() error {
	return p.call(ClientDeactivateClient, nil, true)
}

// maxPanelWindows bounds the window list of a panel status change.
const maxPanelWindows = 16

// ClientStub dispatches inbound client calls to an implementation.
type ClientStub struct {
	impl InputClient
}

func NewClientStub(impl InputClient) *ClientStub {
	return &ClientStub{impl: impl}
}

func (s *ClientStub) Descriptor() string { return ClientDescriptor }

func (s *ClientStub) OnRemoteRequest(code uint32, data, reply *ipc.Parcel, _ ipc.Option) error {
	if err := ipc.CheckInterfaceToken(data, ClientDescriptor); err != nil {
		return err
	}
	switch ClientCode(code) {
	case ClientOnInputReady:
		agent, err := data.ReadHandle()
		if err != nil {
			return err
		}
		pid, err := data.ReadInt32()
		if err != nil {
			return err
		}
		bundle, err := data.ReadString()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.OnInputReady(agent, ImeProcessInfo{Pid: pid, BundleName: bundle}))
	case ClientOnInputStop, ClientOnInputStopAsync:
		inactive, err := data.ReadBool()
		if err != nil {
			return err
		}
		if ClientCode(code) == ClientOnInputStopAsync {
			return writeStatus(reply, s.impl.OnInputStopAsync(inactive))
		}
		return writeStatus(reply, s.impl.OnInputStop(inactive))
	case ClientOnSwitchInput:
		var prop Property
		var sub SubProperty
		if err := prop.Unmarshal(data); err != nil {
			return err
		}
		if err := sub.Unmarshal(data); err != nil {
			return err
		}
		return writeStatus(reply, s.impl.OnSwitchInput(prop, sub))
	case ClientOnPanelStatusChange:
		status, err := data.ReadInt32()
		if err != nil {
			return err
		}
		n, err := data.ReadUint32()
		if err != nil {
			return err
		}
		if n > maxPanelWindows {
			return errs.Wrap(errs.ErrorExParcelable, "%d panel windows", n)
		}
		windows := make([]ImeWindowInfo, n)
		for i := range windows {
			if err := windows[i].Unmarshal(data); err != nil {
				return err
			}
		}
		return writeStatus(reply, s.impl.OnPanelStatusChange(InputWindowStatus(status), windows))
	case ClientNotifyInputStart:
		windowID, err := data.ReadUint32()
		if err != nil {
			return err
		}
		reason, err := data.ReadInt32()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.NotifyInputStart(windowID, reason))
	case ClientNotifyInputStop:
		return writeStatus(reply, s.impl.NotifyInputStop())
	case ClientDeactivateClient:
		return writeStatus(reply, s.impl.DeactivateClient())
	default:
		return errs.Wrap(errs.ErrorStatusUnknownTransaction, "client opcode %d", code)
	}
}
