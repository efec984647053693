package ipc

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/shared/errs"
	"github.com/GriffinCanCode/imf/internal/shared/id"
)

// Handle is an opaque, comparable reference to a remote object. Holding a
// handle says nothing about whether the peer is still alive.
type Handle struct {
	id id.HandleID
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool { return h.id == "" }

// String returns the handle identity for logs.
func (h Handle) String() string {
	if h.id == "" {
		return "<nil>"
	}
	return string(h.id)
}

// Option carries per-transaction flags.
type Option struct {
	// Async marks a one-way call: no reply is produced and the caller does
	// not wait for the stub.
	Async bool
}

// Stub is the receiving side of a remote object.
type Stub interface {
	Descriptor() string
	OnRemoteRequest(code uint32, data, reply *Parcel, opt Option) error
}

// Remote is the sending side bound to one handle.
type Remote interface {
	Handle() Handle
	Transact(code uint32, data, reply *Parcel, opt Option) error
}

type object struct {
	stub       Stub
	pid        int32
	uid        int32
	dead       bool
	recipients map[uint64]func(Handle)
}

// Registry is the in-process object broker. Every registered stub gets a
// handle; transactions copy parcels across the boundary so neither side can
// observe the other's buffers.
type Registry struct {
	logger *zap.Logger

	mu      sync.RWMutex
	objects map[Handle]*object
	nextRec uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:  logger.Named("ipc"),
		objects: make(map[Handle]*object),
	}
}

// Register publishes stub as a remote object owned by the process pid/uid.
func (r *Registry) Register(stub Stub, pid, uid int32) Handle {
	h := Handle{id: id.NewHandleID()}

	r.mu.Lock()
	r.objects[h] = &object{
		stub:       stub,
		pid:        pid,
		uid:        uid,
		recipients: make(map[uint64]func(Handle)),
	}
	r.mu.Unlock()

	r.logger.Debug("object registered",
		zap.String("handle", h.String()),
		zap.String("descriptor", stub.Descriptor()),
		zap.Int32("pid", pid),
	)
	return h
}

// Remote returns the sending side for h.
func (r *Registry) Remote(h Handle) Remote {
	return &remote{registry: r, handle: h}
}

// IsAlive reports whether the owner of h is still running.
func (r *Registry) IsAlive(h Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[h]
	return ok && !obj.dead
}

// Owner returns the pid and uid that registered h.
func (r *Registry) Owner(h Handle) (pid, uid int32, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[h]
	if !ok {
		return 0, 0, false
	}
	return obj.pid, obj.uid, true
}

// Transact delivers a call to the stub behind h.
func (r *Registry) Transact(h Handle, code uint32, data, reply *Parcel, opt Option) error {
	r.mu.RLock()
	obj, ok := r.objects[h]
	dead := ok && obj.dead
	r.mu.RUnlock()

	if !ok || dead {
		return errs.Wrap(errs.ErrorRemoteDead, "transact %d on %s", code, h)
	}
	if data == nil {
		data = NewParcel()
	}
	if err := data.Err(); err != nil {
		return err
	}
	in := ParcelFrom(data.Bytes())

	if opt.Async {
		go func() {
			if err := r.dispatch(obj.stub, code, in, NewParcel(), opt); err != nil {
				r.logger.Warn("async transaction failed",
					zap.String("handle", h.String()),
					zap.Uint32("code", code),
					zap.Error(err),
				)
			}
		}()
		return nil
	}

	out := NewParcel()
	if err := r.dispatch(obj.stub, code, in, out, opt); err != nil {
		return err
	}
	if err := out.Err(); err != nil {
		return err
	}
	if reply != nil {
		reply.reset(out.Bytes())
	}
	return nil
}

func (r *Registry) dispatch(stub Stub, code uint32, data, reply *Parcel, opt Option) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("stub panicked",
				zap.String("descriptor", stub.Descriptor()),
				zap.Uint32("code", code),
				zap.String("panic", fmt.Sprint(rec)),
			)
			err = errs.Wrap(errs.ErrorNullPointer, "stub %s code %d panicked", stub.Descriptor(), code)
		}
	}()
	return stub.OnRemoteRequest(code, data, reply, opt)
}

// AddDeathRecipient registers fn to run once when h dies. It fails if h is
// unknown or already dead.
func (r *Registry) AddDeathRecipient(h Handle, fn func(Handle)) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[h]
	if !ok || obj.dead {
		return 0, errs.Wrap(errs.ErrorDeathWatchFailed, "handle %s is not alive", h)
	}
	r.nextRec++
	obj.recipients[r.nextRec] = fn
	return r.nextRec, nil
}

// RemoveDeathRecipient drops a recipient. A recipient already running is not
// interrupted.
func (r *Registry) RemoveDeathRecipient(h Handle, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if obj, ok := r.objects[h]; ok {
		delete(obj.recipients, token)
	}
}

// Kill marks the owner of h as dead and notifies its death recipients, each
// exactly once and on its own goroutine. Killing a dead handle is a no-op.
func (r *Registry) Kill(h Handle) {
	r.mu.Lock()
	obj, ok := r.objects[h]
	if !ok || obj.dead {
		r.mu.Unlock()
		return
	}
	obj.dead = true
	recipients := make([]func(Handle), 0, len(obj.recipients))
	for _, fn := range obj.recipients {
		recipients = append(recipients, fn)
	}
	obj.recipients = nil
	r.mu.Unlock()

	r.logger.Info("remote object died", zap.String("handle", h.String()), zap.Int32("pid", obj.pid))
	for _, fn := range recipients {
		go fn(h)
	}
}

// KillProcess kills every handle owned by pid.
func (r *Registry) KillProcess(pid int32) {
	r.mu.RLock()
	var handles []Handle
	for h, obj := range r.objects {
		if obj.pid == pid && !obj.dead {
			handles = append(handles, h)
		}
	}
	r.mu.RUnlock()

	for _, h := range handles {
		r.Kill(h)
	}
}

// Unregister removes a dead or retired object.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	delete(r.objects, h)
	r.mu.Unlock()
}

type remote struct {
	registry *Registry
	handle   Handle
}

func (r *remote) Handle() Handle { return r.handle }

func (r *remote) Transact(code uint32, data, reply *Parcel, opt Option) error {
	return r.registry.Transact(r.handle, code, data, reply, opt)
}

// CheckInterfaceToken consumes the descriptor written by a proxy and rejects
// foreign callers.
func CheckInterfaceToken(data *Parcel, descriptor string) error {
	token, err := data.ReadInterfaceToken()
	if err != nil || token != descriptor {
		return errs.Wrap(errs.ErrorStatusUnknownTransaction, "descriptor mismatch: want %q got %q", descriptor, token)
	}
	return nil
}
