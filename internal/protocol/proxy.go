package protocol

import (
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// marshaler is implemented by every value type carried on the wire.
type marshaler interface {
	Marshal(p *ipc.Parcel) error
}

// transact writes the descriptor and arguments, performs the call and, for
// synchronous calls, consumes the leading status code of the reply.
func transact(remote ipc.Remote, descriptor string, code uint32, write func(*ipc.Parcel) error, opt ipc.Option) (*ipc.Parcel, error) {
	if remote == nil {
		return nil, errs.ErrorNullPointer
	}
	data := ipc.NewParcel()
	data.WriteInterfaceToken(descriptor)
	if write != nil {
		if err := write(data); err != nil {
			return nil, err
		}
	}
	if err := data.Err(); err != nil {
		return nil, err
	}

	reply := ipc.NewParcel()
	if err := remote.Transact(code, data, reply, opt); err != nil {
		return nil, err
	}
	if opt.Async {
		return nil, nil
	}
	status, err := reply.ReadInt32()
	if err != nil {
		return nil, err
	}
	if err := errs.FromWire(status); err != nil {
		return nil, err
	}
	return reply, nil
}

func writeStatus(reply *ipc.Parcel, err error) error {
	reply.WriteInt32(int32(errs.From(err)))
	return reply.Err()
}

// writeResult writes the status and, only on success, the result fields.
func writeResult(reply *ipc.Parcel, err error, write func(*ipc.Parcel) error) error {
	if err != nil {
		return writeStatus(reply, err)
	}
	reply.WriteInt32(0)
	if err := write(reply); err != nil {
		return err
	}
	return reply.Err()
}

func args(values ...marshaler) func(*ipc.Parcel) error {
	return func(p *ipc.Parcel) error {
		for _, v := range values {
			if err := v.Marshal(p); err != nil {
				return err
			}
		}
		return nil
	}
}

// handleArg adapts a handle to the marshaler interface.
type handleArg ipc.Handle

func (h handleArg) Marshal(p *ipc.Parcel) error {
	p.WriteHandle(ipc.Handle(h))
	return p.Err()
}

type int32Arg int32

func (v int32Arg) Marshal(p *ipc.Parcel) error {
	p.WriteInt32(int32(v))
	return p.Err()
}

type uint32Arg uint32

func (v uint32Arg) Marshal(p *ipc.Parcel) error {
	p.WriteUint32(uint32(v))
	return p.Err()
}

type uint64Arg uint64

func (v uint64Arg) Marshal(p *ipc.Parcel) error {
	p.WriteUint64(uint64(v))
	return p.Err()
}

type boolArg bool

func (v boolArg) Marshal(p *ipc.Parcel) error {
	p.WriteBool(bool(v))
	return p.Err()
}

type stringArg string

func (v stringArg) Marshal(p *ipc.Parcel) error {
	p.WriteString(string(v))
	return p.Err()
}
