package ime

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
)

// Result is the outcome of a bounded wait.
type Result int32

const (
	Ready Result = iota + 1
	TimedOut
	Died
)

func (r Result) String() string {
	switch r {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Died:
		return "died"
	default:
		return "unknown"
	}
}

// Connection is what an IME process hands over when it registers.
type Connection struct {
	Core       protocol.InputMethodCore
	CoreHandle ipc.Handle
	Agent      ipc.Handle
	Pid        int32
	Uid        int32
}

// Data is one IME connection of a session. Identity fields are fixed at
// creation; the connection, status and pending command change under the
// data's own lock.
type Data struct {
	Type          Type
	BundleName    string
	ExtensionName string
	StartTime     time.Time

	mu      sync.Mutex
	status  Status
	conn    Connection
	freeze  *FreezeManager
	pending protocol.PrivateCommand

	readyOnce sync.Once
	ready     chan struct{}
	diedOnce  sync.Once
	died      chan struct{}
}

// NewData creates a connection that is starting: the connect request is out
// and the core has not registered yet.
func NewData(t Type, bundleName, extensionName string, now time.Time) *Data {
	return &Data{
		Type:          t,
		BundleName:    bundleName,
		ExtensionName: extensionName,
		StartTime:     now,
		status:        StatusStarting,
		ready:         make(chan struct{}),
		died:          make(chan struct{}),
	}
}

// NewReadyData creates a connection for an IME that registered itself
// without being started by the session.
func NewReadyData(t Type, bundleName string, conn Connection, freeze *FreezeManager, now time.Time) *Data {
	d := NewData(t, bundleName, "", now)
	d.status = StatusReady
	d.conn = conn
	d.freeze = freeze
	d.MarkReady()
	return d
}

// Apply runs event through the transition table and stores the new status.
func (d *Data) Apply(event Event) Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	next, action, _ := Transition(d.status, event)
	d.status = next
	return action
}

// SetCoreAndAgent records the IME's handles if the data is waiting for
// them and wakes the start waiter. It returns the action taken.
func (d *Data) SetCoreAndAgent(conn Connection, freeze *FreezeManager) Action {
	d.mu.Lock()
	next, action, _ := Transition(d.status, EventSetCoreAndAgent)
	d.status = next
	if action == ActionDoSetCoreAndAgent {
		d.conn = conn
		d.freeze = freeze
	}
	d.mu.Unlock()

	if action == ActionDoSetCoreAndAgent {
		d.MarkReady()
	}
	return action
}

// Status returns the current lifecycle state.
func (d *Data) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Connection returns the registered handles. It is zero until the IME
// registers.
func (d *Data) Connection() Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

// Core returns the core proxy or nil.
func (d *Data) Core() protocol.InputMethodCore {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Core
}

// Freeze returns the freeze gate or nil.
func (d *Data) Freeze() *FreezeManager {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freeze
}

// SetPendingCommand stores a private command for the next bind.
func (d *Data) SetPendingCommand(cmd protocol.PrivateCommand) {
	d.mu.Lock()
	d.pending = cmd
	d.mu.Unlock()
}

// TakePendingCommand returns and clears the stored private command.
func (d *Data) TakePendingCommand() protocol.PrivateCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd := d.pending
	d.pending = nil
	return cmd
}

// MarkReady releases WaitReady. Safe to call more than once.
func (d *Data) MarkReady() {
	d.readyOnce.Do(func() { close(d.ready) })
}

// MarkDied releases WaitDied and WaitReady. Safe to call more than once and
// from any goroutine; it does not change the status.
func (d *Data) MarkDied() {
	d.diedOnce.Do(func() { close(d.died) })
}

// IsDead reports whether MarkDied was called.
func (d *Data) IsDead() bool {
	select {
	case <-d.died:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the IME registers, dies or timeout elapses.
func (d *Data) WaitReady(timeout time.Duration) Result {
	select {
	case <-d.ready:
		return Ready
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.ready:
		return Ready
	case <-d.died:
		return Died
	case <-timer.C:
		return TimedOut
	}
}

// WaitDied blocks until the IME process dies or timeout elapses.
func (d *Data) WaitDied(timeout time.Duration) Result {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.died:
		return Died
	case <-timer.C:
		return TimedOut
	}
}

// Info is a read-only view of a connection for dumps.
type Info struct {
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	BundleName    string    `json:"bundle_name"`
	ExtensionName string    `json:"extension_name,omitempty"`
	Pid           int32     `json:"pid"`
	StartTime     time.Time `json:"start_time"`
	Frozen        bool      `json:"frozen"`
	InUse         bool      `json:"in_use"`
	HasPending    bool      `json:"has_pending_command"`
}

// Info snapshots the connection.
func (d *Data) Info() Info {
	d.mu.Lock()
	info := Info{
		Type:          d.Type.String(),
		Status:        d.status.String(),
		BundleName:    d.BundleName,
		ExtensionName: d.ExtensionName,
		Pid:           d.conn.Pid,
		StartTime:     d.StartTime,
		HasPending:    len(d.pending) > 0,
	}
	freeze := d.freeze
	d.mu.Unlock()

	if freeze != nil {
		info.Frozen = freeze.IsFrozen()
		info.InUse = freeze.InUse()
	}
	return info
}
