// Package account tracks which OS users exist and which one is in front.
package account

import (
	"sort"
	"sync"
	"sync/atomic"
)

// PerUserRange is the uid span of one OS user: uid / PerUserRange is the
// user id.
const PerUserRange = 200000

// UserIDFromUID returns the OS user that owns uid
func UserIDFromUID(uid int32) int32 {
	return uid / PerUserRange
}

// Static is an account service whose state is driven by the caller: the
// entry point at boot and the user events it receives afterwards.
type Static struct {
	foreground atomic.Int32
	ready      atomic.Bool

	mu     sync.RWMutex
	active map[int32]struct{}
}

// NewStatic creates a service with foreground as the only active user
func NewStatic(foreground int32) *Static {
	s := &Static{active: map[int32]struct{}{foreground: {}}}
	s.foreground.Store(foreground)
	s.ready.Store(true)
	return s
}

// ForegroundUserID returns the user in front
func (s *Static) ForegroundUserID() int32 { return s.foreground.Load() }

// SwitchTo brings userID to the front, activating it
func (s *Static) SwitchTo(userID int32) {
	s.Activate(userID)
	s.foreground.Store(userID)
}

// Activate marks userID as started
func (s *Static) Activate(userID int32) {
	s.mu.Lock()
	s.active[userID] = struct{}{}
	s.mu.Unlock()
}

// Deactivate marks userID as stopped
func (s *Static) Deactivate(userID int32) {
	s.mu.Lock()
	delete(s.active, userID)
	s.mu.Unlock()
}

// ActiveUserIDs returns the started users in ascending order
func (s *Static) ActiveUserIDs() []int32 {
	s.mu.RLock()
	out := make([]int32, 0, len(s.active))
	for id := range s.active {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsActive reports whether userID is started
func (s *Static) IsActive(userID int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[userID]
	return ok
}

// IsReady reports whether the account service answers queries yet
func (s *Static) IsReady() bool { return s.ready.Load() }

// SetReady flips readiness; boot code clears it until accounts are loaded
func (s *Static) SetReady(ready bool) { s.ready.Store(ready) }

// UserIDFromUID returns the OS user that owns uid
func (s *Static) UserIDFromUID(uid int32) int32 { return UserIDFromUID(uid) }
