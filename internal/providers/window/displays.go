// Package window maps displays to the display groups that share an input
// method session.
package window

import "sync"

// StaticDisplays is a fixed display to group table. Displays it does not
// know belong to group 0, the main display group.
type StaticDisplays struct {
	mu     sync.RWMutex
	groups map[uint64]uint64
}

// NewStaticDisplays copies groups
func NewStaticDisplays(groups map[uint64]uint64) *StaticDisplays {
	d := &StaticDisplays{groups: make(map[uint64]uint64, len(groups))}
	for display, group := range groups {
		d.groups[display] = group
	}
	return d
}

// DisplayGroupOf returns the group of displayID.
func (d *StaticDisplays) DisplayGroupOf(displayID uint64) uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.groups[displayID]
}

// Assign moves displayID into group
func (d *StaticDisplays) Assign(displayID, group uint64) {
	d.mu.Lock()
	d.groups[displayID] = group
	d.mu.Unlock()
}
