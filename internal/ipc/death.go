package ipc

import (
	"sync"
)

// DeathWatcher arms death notifications on peer handles. A callback runs at
// most once, on an arbitrary goroutine, after the peer terminates. Callbacks
// must only hand work to the message queue.
type DeathWatcher struct {
	registry *Registry

	mu      sync.Mutex
	seq     uint64
	watches map[Handle]watch
}

type watch struct {
	id    uint64
	token uint64
}

// NewDeathWatcher creates a watcher over registry.
func NewDeathWatcher(registry *Registry) *DeathWatcher {
	return &DeathWatcher{
		registry: registry,
		watches:  make(map[Handle]watch),
	}
}

// Watch arms cb for h. Watching an already-dead handle returns
// ErrorDeathWatchFailed. Watching the same handle twice replaces the first
// callback.
func (w *DeathWatcher) Watch(h Handle, cb func(Handle)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.watches[h]; ok {
		w.registry.RemoveDeathRecipient(h, old.token)
		delete(w.watches, h)
	}

	w.seq++
	id := w.seq
	token, err := w.registry.AddDeathRecipient(h, func(dead Handle) {
		w.fire(dead, id, cb)
	})
	if err != nil {
		return err
	}
	w.watches[h] = watch{id: id, token: token}
	return nil
}

// fire runs cb unless the watch id armed was replaced or removed meanwhile.
func (w *DeathWatcher) fire(dead Handle, id uint64, cb func(Handle)) {
	w.mu.Lock()
	if cur, ok := w.watches[dead]; !ok || cur.id != id {
		w.mu.Unlock()
		return
	}
	delete(w.watches, dead)
	w.mu.Unlock()
	cb(dead)
}

// Unwatch removes the callback for h. A callback already past its check
// still completes.
func (w *DeathWatcher) Unwatch(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.watches[h]; ok {
		w.registry.RemoveDeathRecipient(h, old.token)
		delete(w.watches, h)
	}
}

// Watching reports whether a callback is armed for h.
func (w *DeathWatcher) Watching(h Handle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[h]
	return ok
}
