package ipc

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

const echoDescriptor = "test.IEcho"

type echoStub struct {
	calls atomic.Int32
}

func (s *echoStub) Descriptor() string { return echoDescriptor }

func (s *echoStub) OnRemoteRequest(code uint32, data, reply *Parcel, opt Option) error {
	if err := CheckInterfaceToken(data, echoDescriptor); err != nil {
		return err
	}
	s.calls.Add(1)
	switch code {
	case 1:
		msg, err := data.ReadString()
		if err != nil {
			return err
		}
		reply.WriteInt32(0)
		reply.WriteString(msg)
		return nil
	case 2:
		panic("boom")
	default:
		return errs.ErrorStatusUnknownTransaction
	}
}

func TestParcelFieldOrder(t *testing.T) {
	p := NewParcel()
	p.WriteInterfaceToken("x")
	p.WriteInt32(-7)
	p.WriteUint32(7)
	p.WriteInt64(-1 << 40)
	p.WriteUint64(1 << 60)
	p.WriteBool(true)
	p.WriteString("héllo")
	p.WriteBytes([]byte{1, 2, 3})
	p.WriteFloat64(1.5)
	require.NoError(t, p.Err())

	r := ParcelFrom(p.Bytes())
	token, err := r.ReadInterfaceToken()
	require.NoError(t, err)
	assert.Equal(t, "x", token)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), u32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1<<40), i64)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<60), u64)

	b, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	raw, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)

	f, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	assert.Zero(t, r.Remaining())
}

func TestParcelReadErrors(t *testing.T) {
	p := NewParcel()
	p.WriteString("not an int")

	r := ParcelFrom(p.Bytes())
	_, err := r.ReadInt32()
	assert.True(t, errs.Is(err, errs.ErrorExParcelable))

	empty := NewParcel()
	_, err = empty.ReadBool()
	assert.True(t, errs.Is(err, errs.ErrorExParcelable))
}

func TestParcelSizeLimit(t *testing.T) {
	p := NewParcel()
	p.WriteBytes(make([]byte, MaxParcelSize+1))
	assert.True(t, errs.Is(p.Err(), errs.ErrorExParcelable))
}

func TestRegistryTransact(t *testing.T) {
	reg := NewRegistry(nil)
	stub := &echoStub{}
	h := reg.Register(stub, 100, 20010000)

	data := NewParcel()
	data.WriteInterfaceToken(echoDescriptor)
	data.WriteString("ping")
	reply := NewParcel()

	require.NoError(t, reg.Transact(h, 1, data, reply, Option{}))
	status, err := reply.ReadInt32()
	require.NoError(t, err)
	assert.Zero(t, status)
	msg, err := reply.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ping", msg)

	pid, uid, ok := reg.Owner(h)
	assert.True(t, ok)
	assert.Equal(t, int32(100), pid)
	assert.Equal(t, int32(20010000), uid)
}

func TestRegistryRejectsForeignDescriptor(t *testing.T) {
	reg := NewRegistry(nil)
	stub := &echoStub{}
	h := reg.Register(stub, 1, 1)

	data := NewParcel()
	data.WriteInterfaceToken("someone.else")
	data.WriteString("ping")

	err := reg.Transact(h, 1, data, NewParcel(), Option{})
	assert.True(t, errs.Is(err, errs.ErrorStatusUnknownTransaction))
	assert.Zero(t, stub.calls.Load())
}

func TestRegistryRecoversStubPanic(t *testing.T) {
	reg := NewRegistry(nil)
	h := reg.Register(&echoStub{}, 1, 1)

	data := NewParcel()
	data.WriteInterfaceToken(echoDescriptor)
	err := reg.Transact(h, 2, data, NewParcel(), Option{})
	assert.True(t, errs.Is(err, errs.ErrorNullPointer))
}

func TestRegistryAsync(t *testing.T) {
	reg := NewRegistry(nil)
	stub := &echoStub{}
	h := reg.Register(stub, 1, 1)

	data := NewParcel()
	data.WriteInterfaceToken(echoDescriptor)
	data.WriteString("fire")
	require.NoError(t, reg.Transact(h, 1, data, nil, Option{Async: true}))

	assert.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDeathWatcher(t *testing.T) {
	reg := NewRegistry(nil)
	h := reg.Register(&echoStub{}, 1, 1)
	w := NewDeathWatcher(reg)

	var fired atomic.Int32
	require.NoError(t, w.Watch(h, func(Handle) { fired.Add(1) }))
	assert.True(t, w.Watching(h))

	reg.Kill(h)
	reg.Kill(h)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.False(t, reg.IsAlive(h))

	err := reg.Transact(h, 1, NewParcel(), NewParcel(), Option{})
	assert.True(t, errs.Is(err, errs.ErrorRemoteDead))
}

func TestDeathWatcherOnDeadHandle(t *testing.T) {
	reg := NewRegistry(nil)
	h := reg.Register(&echoStub{}, 1, 1)
	reg.Kill(h)

	w := NewDeathWatcher(reg)
	err := w.Watch(h, func(Handle) {})
	assert.True(t, errs.Is(err, errs.ErrorDeathWatchFailed))
}

func TestDeathWatcherUnwatch(t *testing.T) {
	reg := NewRegistry(nil)
	h := reg.Register(&echoStub{}, 1, 1)
	w := NewDeathWatcher(reg)

	var fired atomic.Int32
	require.NoError(t, w.Watch(h, func(Handle) { fired.Add(1) }))
	w.Unwatch(h)
	reg.Kill(h)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestDeathWatcherDropsReplacedCallback(t *testing.T) {
	reg := NewRegistry(nil)
	h := reg.Register(&echoStub{}, 1, 1)
	w := NewDeathWatcher(reg)

	var first, second atomic.Int32
	require.NoError(t, w.Watch(h, func(Handle) { first.Add(1) }))
	stale := w.watches[h].id
	require.NoError(t, w.Watch(h, func(Handle) { second.Add(1) }))

	// The first watch's callback was already in flight when it was replaced.
	w.fire(h, stale, func(Handle) { first.Add(1) })
	assert.True(t, w.Watching(h), "a stale callback leaves the new watch armed")

	reg.Kill(h)
	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, first.Load())
	assert.False(t, w.Watching(h))
}
