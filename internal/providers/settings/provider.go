package settings

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by Get for a key that was never set
var ErrNotFound = errors.New("setting not found")

// Setting is one stored value
type Setting struct {
	Key       string    `json:"key" toml:"key"`
	Value     string    `json:"value" toml:"value"`
	UpdatedAt time.Time `json:"updated_at" toml:"updated_at"`
}

// Store is a flat key/value settings database with change notification
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	// Subscribe calls fn with the new value whenever key changes. The
	// returned func cancels the subscription.
	Subscribe(key string, fn func(key, value string)) (cancel func())
}

type subscriber struct {
	id  uint64
	key string
	fn  func(key, value string)
}

// hub fans changes out to subscribers. Callbacks run without the hub's
// lock held so they may call back into the store.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
}

func (h *hub) subscribe(key string, fn func(key, value string)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber{id: id, key: key, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

func (h *hub) notify(key, value string) {
	h.mu.Lock()
	var fns []func(string, string)
	for _, s := range h.subs {
		if s.key == key {
			fns = append(fns, s.fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(key, value)
	}
}

// MemoryStore keeps settings in memory. It is used in tests and when no
// settings file is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]Setting
	hub    hub
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]Setting)}
}

func (m *MemoryStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return s.Value, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	old, existed := m.values[key]
	m.values[key] = Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	m.mu.Unlock()

	if !existed || old.Value != value {
		m.hub.notify(key, value)
	}
	return nil
}

func (m *MemoryStore) Subscribe(key string, fn func(key, value string)) func() {
	return m.hub.subscribe(key, fn)
}

// List returns every setting sorted by key
func (m *MemoryStore) List() []Setting {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedSettings(m.values)
}

func sortedSettings(values map[string]Setting) []Setting {
	out := make([]Setting, 0, len(values))
	for _, s := range values {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
