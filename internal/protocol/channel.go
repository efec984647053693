package protocol

import (
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// ChannelDescriptor is the interface token of the data channel stub.
const ChannelDescriptor = "imf.IInputDataChannel"

// ChannelCode is the opcode of an InputDataChannel call.
type ChannelCode uint32

const (
	ChannelInsertText ChannelCode = iota + 1
	ChannelDeleteForward
	ChannelDeleteBackward
	ChannelGetTextBeforeCursor
	ChannelGetTextAfterCursor
	ChannelGetTextIndexAtCursor
	ChannelGetTextConfig
	ChannelSendKeyboardStatus
	ChannelSendFunctionKey
	ChannelMoveCursor
	ChannelSelectByRange
	ChannelSelectByMovement
	ChannelHandleExtendAction
	ChannelNotifyPanelStatusInfo
	ChannelNotifyKeyboardHeight
	ChannelSendPrivateCommand
)

// InputDataChannel is the text editing surface a client exposes to the IME.
// SendKeyboardStatus and NotifyKeyboardHeight are one-way.
type InputDataChannel interface {
	InsertText(text string) error
	DeleteForward(length int32) error
	DeleteBackward(length int32) error
	GetTextBeforeCursor(number int32) (string, error)
	GetTextAfterCursor(number int32) (string, error)
	GetTextIndexAtCursor() (int32, error)
	GetTextConfig() (TextTotalConfig, error)
	SendKeyboardStatus(status KeyboardStatus) error
	SendFunctionKey(key FunctionKey) error
	MoveCursor(direction int32) error
	SelectByRange(start, end int32) error
	SelectByMovement(direction, cursorMoveSkip int32) error
	HandleExtendAction(action int32) error
	NotifyPanelStatusInfo(info PanelStatusInfo) error
	NotifyKeyboardHeight(height uint32) error
	SendPrivateCommand(cmd PrivateCommand) error
}

// ChannelProxy calls a client data channel over IPC.
type ChannelProxy struct {
	remote ipc.Remote
}

func NewChannelProxy(remote ipc.Remote) *ChannelProxy {
	return &ChannelProxy{remote: remote}
}

func (p *ChannelProxy) Handle() ipc.Handle { return p.remote.Handle() }

func (p *ChannelProxy) call(code ChannelCode, write func(*ipc.Parcel) error) (*ipc.Parcel, error) {
	return transact(p.remote, ChannelDescriptor, uint32(code), write, ipc.Option{})
}

func (p *ChannelProxy) oneWay(code ChannelCode, write func(*ipc.Parcel) error) error {
	_, err := transact(p.remote, ChannelDescriptor, uint32(code), write, ipc.Option{Async: true})
	return err
}

func (p *ChannelProxy) InsertText(text string) error {
	_, err := p.call(ChannelInsertText, args(stringArg(text)))
	return err
}

func (p *ChannelProxy) DeleteForward(length int32) error {
	_, err := p.call(ChannelDeleteForward, args(int32Arg(length)))
	return err
}

func (p *ChannelProxy) DeleteBackward(length int32) error {
	_, err := p.call(ChannelDeleteBackward, args(int32Arg(length)))
	return err
}

func (p *ChannelProxy) GetTextBeforeCursor(number int32) (string, error) {
	reply, err := p.call(ChannelGetTextBeforeCursor, args(int32Arg(number)))
	if err != nil {
		return "", err
	}
	return reply.ReadString()
}

func (p *ChannelProxy) GetTextAfterCursor(number int32) (string, error) {
	reply, err := p.call(ChannelGetTextAfterCursor, args(int32Arg(number)))
	if err != nil {
		return "", err
	}
	return reply.ReadString()
}

func (p *ChannelProxy) GetTextIndexAtCursor() (int32, error) {
	reply, err := p.call(ChannelGetTextIndexAtCursor, nil)
	if err != nil {
		return 0, err
	}
	return reply.ReadInt32()
}

func (p *ChannelProxy) GetTextConfig() (TextTotalConfig, error) {
	var cfg TextTotalConfig
	reply, err := p.call(ChannelGetTextConfig, nil)
	if err != nil {
		return cfg, err
	}
	err = cfg.Unmarshal(reply)
	return cfg, err
}

func (p *ChannelProxy) SendKeyboardStatus(status KeyboardStatus) error {
	return p.oneWay(ChannelSendKeyboardStatus, args(int32Arg(status)))
}

func (p *ChannelProxy) SendFunctionKey(key FunctionKey) error {
	_, err := p.call(ChannelSendFunctionKey, args(int32Arg(key.EnterKeyType)))
	return err
}

func (p *ChannelProxy) MoveCursor(direction int32) error {
	_, err := p.call(ChannelMoveCursor, args(int32Arg(direction)))
	return err
}

func (p *ChannelProxy) SelectByRange(start, end int32) error {
	_, err := p.call(ChannelSelectByRange, args(int32Arg(start), int32Arg(end)))
	return err
}

func (p *ChannelProxy) SelectByMovement(direction, cursorMoveSkip int32) error {
	_, err := p.call(ChannelSelectByMovement, args(int32Arg(direction), int32Arg(cursorMoveSkip)))
	return err
}

func (p *ChannelProxy) HandleExtendAction(action int32) error {
	_, err := p.call(ChannelHandleExtendAction, args(int32Arg(action)))
	return err
}

func (p *ChannelProxy) NotifyPanelStatusInfo(info PanelStatusInfo) error {
	_, err := p.call(ChannelNotifyPanelStatusInfo, args(&info))
	return err
}

func (p *ChannelProxy) NotifyKeyboardHeight(height uint32) error {
	return p.oneWay(ChannelNotifyKeyboardHeight, args(uint32Arg(height)))
}

func (p *ChannelProxy) SendPrivateCommand(cmd PrivateCommand) error {
	_, err := p.call(ChannelSendPrivateCommand, args(cmd))
	return err
}

// ChannelStub dispatches inbound data channel calls to an implementation.
type ChannelStub struct {
	impl InputDataChannel
}

func NewChannelStub(impl InputDataChannel) *ChannelStub {
	return &ChannelStub{impl: impl}
}

func (s *ChannelStub) Descriptor() string { return ChannelDescriptor }

func (s *ChannelStub) OnRemoteRequest(code uint32, data, reply *ipc.Parcel, _ ipc.Option) error {
	if err := ipc.CheckInterfaceToken(data, ChannelDescriptor); err != nil {
		return err
	}
	switch ChannelCode(code) {
	case ChannelInsertText:
		text, err := data.ReadString()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.InsertText(text))
	case ChannelDeleteForward, ChannelDeleteBackward, ChannelGetTextBeforeCursor,
		ChannelGetTextAfterCursor, ChannelMoveCursor, ChannelHandleExtendAction,
		ChannelSendFunctionKey, ChannelSendKeyboardStatus:
		v, err := data.ReadInt32()
		if err != nil {
			return err
		}
		return s.dispatchInt32(ChannelCode(code), v, reply)
	case ChannelGetTextIndexAtCursor:
		idx, err := s.impl.GetTextIndexAtCursor()
		return writeResult(reply, err, args(int32Arg(idx)))
	case ChannelGetTextConfig:
		cfg, err := s.impl.GetTextConfig()
		return writeResult(reply, err, args(&cfg))
	case ChannelSelectByRange, ChannelSelectByMovement:
		a, err := data.ReadInt32()
		if err != nil {
			return err
		}
		b, err := data.ReadInt32()
		if err != nil {
			return err
		}
		if ChannelCode(code) == ChannelSelectByRange {
			return writeStatus(reply, s.impl.SelectByRange(a, b))
		}
		return writeStatus(reply, s.impl.SelectByMovement(a, b))
	case ChannelNotifyPanelStatusInfo:
		var info PanelStatusInfo
		if err := info.Unmarshal(data); err != nil {
			return err
		}
		return writeStatus(reply, s.impl.NotifyPanelStatusInfo(info))
	case ChannelNotifyKeyboardHeight:
		h, err := data.ReadUint32()
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.NotifyKeyboardHeight(h))
	case ChannelSendPrivateCommand:
		cmd, err := UnmarshalPrivateCommand(data)
		if err != nil {
			return err
		}
		return writeStatus(reply, s.impl.SendPrivateCommand(cmd))
	default:
		return errs.Wrap(errs.ErrorStatusUnknownTransaction, "channel opcode %d", code)
	}
}

func (s *ChannelStub) dispatchInt32(code ChannelCode, v int32, reply *ipc.Parcel) error {
	switch code {
	case ChannelDeleteForward:
		return writeStatus(reply, s.impl.DeleteForward(v))
	case ChannelDeleteBackward:
		return writeStatus(reply, s.impl.DeleteBackward(v))
	case ChannelGetTextBeforeCursor:
		text, err := s.impl.GetTextBeforeCursor(v)
		return writeResult(reply, err, args(stringArg(text)))
	case ChannelGetTextAfterCursor:
		text, err := s.impl.GetTextAfterCursor(v)
		return writeResult(reply, err, args(stringArg(text)))
	case ChannelMoveCursor:
		return writeStatus(reply, s.impl.MoveCursor(v))
	case ChannelHandleExtendAction:
		return writeStatus(reply, s.impl.HandleExtendAction(v))
	case ChannelSendFunctionKey:
		return writeStatus(reply, s.impl.SendFunctionKey(FunctionKey{EnterKeyType: v}))
	default:
		return writeStatus(reply, s.impl.SendKeyboardStatus(KeyboardStatus(v)))
	}
}
