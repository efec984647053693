package ipc

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/GriffinCanCode/imf/internal/shared/errs"
	"github.com/GriffinCanCode/imf/internal/shared/id"
)

// MaxParcelSize bounds the payload of a single transaction.
const MaxParcelSize = 1 << 20

// Field kinds double as protowire field numbers so a reader detects a type
// mismatch at the exact field where the sender and receiver disagree.
const (
	kindToken protowire.Number = iota + 1
	kindInt32
	kindUint32
	kindInt64
	kindUint64
	kindBool
	kindString
	kindBytes
	kindHandle
	kindFloat64
)

// Parcel is an ordered sequence of typed fields. Writers append, readers
// consume in the same order. Writes past MaxParcelSize set a sticky error
// reported by Err.
type Parcel struct {
	buf []byte
	off int
	err error
}

// NewParcel returns an empty parcel.
func NewParcel() *Parcel {
	return &Parcel{}
}

// ParcelFrom returns a parcel reading from a copy of b.
func ParcelFrom(b []byte) *Parcel {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Parcel{buf: cp}
}

// Bytes returns the encoded fields.
func (p *Parcel) Bytes() []byte {
	return p.buf
}

// Len returns the encoded size in bytes.
func (p *Parcel) Len() int {
	return len(p.buf)
}

// Remaining reports the unread size in bytes.
func (p *Parcel) Remaining() int {
	return len(p.buf) - p.off
}

// Err returns the first write error, if any.
func (p *Parcel) Err() error {
	return p.err
}

// Rewind moves the read offset back to the first field.
func (p *Parcel) Rewind() {
	p.off = 0
}

// reset replaces the content of p with a copy of b.
func (p *Parcel) reset(b []byte) {
	p.buf = append(p.buf[:0], b...)
	p.off = 0
	p.err = nil
}

func (p *Parcel) grow(b []byte) {
	if p.err != nil {
		return
	}
	if len(b) > MaxParcelSize {
		p.err = errs.Wrap(errs.ErrorExParcelable, "parcel exceeds %d bytes", MaxParcelSize)
		return
	}
	p.buf = b
}

func (p *Parcel) appendVarint(kind protowire.Number, v uint64) {
	b := protowire.AppendTag(p.buf, kind, protowire.VarintType)
	p.grow(protowire.AppendVarint(b, v))
}

func (p *Parcel) appendBytes(kind protowire.Number, v []byte) {
	b := protowire.AppendTag(p.buf, kind, protowire.BytesType)
	p.grow(protowire.AppendBytes(b, v))
}

// WriteInterfaceToken writes the interface descriptor checked by stubs.
func (p *Parcel) WriteInterfaceToken(descriptor string) {
	p.appendBytes(kindToken, []byte(descriptor))
}

// WriteInt32 appends an int32 field.
func (p *Parcel) WriteInt32(v int32) {
	p.appendVarint(kindInt32, protowire.EncodeZigZag(int64(v)))
}

// WriteUint32 appends a uint32 field.
func (p *Parcel) WriteUint32(v uint32) {
	p.appendVarint(kindUint32, uint64(v))
}

// WriteInt64 appends an int64 field.
func (p *Parcel) WriteInt64(v int64) {
	p.appendVarint(kindInt64, protowire.EncodeZigZag(v))
}

// WriteUint64 appends a uint64 field.
func (p *Parcel) WriteUint64(v uint64) {
	p.appendVarint(kindUint64, v)
}

// WriteBool appends a bool field.
func (p *Parcel) WriteBool(v bool) {
	p.appendVarint(kindBool, protowire.EncodeBool(v))
}

// WriteString appends a string field.
func (p *Parcel) WriteString(v string) {
	p.appendBytes(kindString, []byte(v))
}

// WriteBytes appends a byte slice field.
func (p *Parcel) WriteBytes(v []byte) {
	p.appendBytes(kindBytes, v)
}

// WriteHandle appends a remote object handle. The zero handle is allowed and
// reads back as the zero handle.
func (p *Parcel) WriteHandle(h Handle) {
	p.appendBytes(kindHandle, []byte(h.id))
}

// WriteFloat64 appends a float64 field.
func (p *Parcel) WriteFloat64(v float64) {
	b := protowire.AppendTag(p.buf, kindFloat64, protowire.Fixed64Type)
	p.grow(protowire.AppendFixed64(b, math.Float64bits(v)))
}

func (p *Parcel) consumeTag(kind protowire.Number, typ protowire.Type) error {
	if p.off >= len(p.buf) {
		return errs.Wrap(errs.ErrorExParcelable, "read past end of parcel")
	}
	num, t, n := protowire.ConsumeTag(p.buf[p.off:])
	if n < 0 {
		return errs.Wrap(errs.ErrorExParcelable, "malformed tag: %v", protowire.ParseError(n))
	}
	if num != kind || t != typ {
		return errs.Wrap(errs.ErrorExParcelable, "field kind mismatch: want %d got %d", kind, num)
	}
	p.off += n
	return nil
}

func (p *Parcel) readVarint(kind protowire.Number) (uint64, error) {
	if err := p.consumeTag(kind, protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(p.buf[p.off:])
	if n < 0 {
		return 0, errs.Wrap(errs.ErrorExParcelable, "malformed varint: %v", protowire.ParseError(n))
	}
	p.off += n
	return v, nil
}

func (p *Parcel) readBytes(kind protowire.Number) ([]byte, error) {
	if err := p.consumeTag(kind, protowire.BytesType); err != nil {
		return nil, err
	}
	v, n := protowire.ConsumeBytes(p.buf[p.off:])
	if n < 0 {
		return nil, errs.Wrap(errs.ErrorExParcelable, "malformed bytes: %v", protowire.ParseError(n))
	}
	p.off += n
	return v, nil
}

// ReadInterfaceToken reads the interface descriptor.
func (p *Parcel) ReadInterfaceToken() (string, error) {
	b, err := p.readBytes(kindToken)
	return string(b), err
}

// ReadInt32 reads an int32 field.
func (p *Parcel) ReadInt32() (int32, error) {
	v, err := p.readVarint(kindInt32)
	if err != nil {
		return 0, err
	}
	d := protowire.DecodeZigZag(v)
	if d < math.MinInt32 || d > math.MaxInt32 {
		return 0, errs.Wrap(errs.ErrorExParcelable, "int32 out of range")
	}
	return int32(d), nil
}

// ReadUint32 reads a uint32 field.
func (p *Parcel) ReadUint32() (uint32, error) {
	v, err := p.readVarint(kindUint32)
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, errs.Wrap(errs.ErrorExParcelable, "uint32 out of range")
	}
	return uint32(v), nil
}

// ReadInt64 reads an int64 field.
func (p *Parcel) ReadInt64() (int64, error) {
	v, err := p.readVarint(kindInt64)
	if err != nil {
		return 0, err
	}
	return protowire.DecodeZigZag(v), nil
}

// ReadUint64 reads a uint64 field.
func (p *Parcel) ReadUint64() (uint64, error) {
	return p.readVarint(kindUint64)
}

// ReadBool reads a bool field.
func (p *Parcel) ReadBool() (bool, error) {
	v, err := p.readVarint(kindBool)
	if err != nil {
		return false, err
	}
	return protowire.DecodeBool(v), nil
}

// ReadString reads a string field.
func (p *Parcel) ReadString() (string, error) {
	b, err := p.readBytes(kindString)
	return string(b), err
}

// ReadBytes reads a byte slice field. The result is a copy.
func (p *Parcel) ReadBytes() ([]byte, error) {
	b, err := p.readBytes(kindBytes)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

// ReadHandle reads a remote object handle.
func (p *Parcel) ReadHandle() (Handle, error) {
	b, err := p.readBytes(kindHandle)
	if err != nil {
		return Handle{}, err
	}
	return Handle{id: id.HandleID(b)}, nil
}

// ReadFloat64 reads a float64 field.
func (p *Parcel) ReadFloat64() (float64, error) {
	if err := p.consumeTag(kindFloat64, protowire.Fixed64Type); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed64(p.buf[p.off:])
	if n < 0 {
		return 0, errs.Wrap(errs.ErrorExParcelable, "malformed fixed64: %v", protowire.ParseError(n))
	}
	p.off += n
	return math.Float64frombits(v), nil
}
