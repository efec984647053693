package ime

import (
	"sync"

	"go.uber.org/zap"
)

// RequestType classifies an outbound call for the freeze gate.
type RequestType int32

const (
	RequestNormal RequestType = iota
	RequestStartInput
	RequestStopInput
	RequestShow
	RequestHide
)

// ProcessController freezes and thaws IME processes.
type ProcessController interface {
	SetFrozen(pid int32, frozen bool) error
}

// FreezeManager keeps an idle IME process frozen and thaws it before calls
// that need it. A process is in use between a successful start input (or
// show) and the next stop input.
type FreezeManager struct {
	pid    int32
	ctrl   ProcessController
	logger *zap.Logger

	mu     sync.Mutex
	inUse  bool
	frozen bool
}

// NewFreezeManager creates a gate for pid. ctrl may be nil, in which case
// state is tracked but no process is ever frozen.
func NewFreezeManager(pid int32, ctrl ProcessController, logger *zap.Logger) *FreezeManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FreezeManager{
		pid:    pid,
		ctrl:   ctrl,
		logger: logger.With(zap.Int32("ime_pid", pid)),
	}
}

// IsIpcNeeded reports whether a call of type t must reach the process.
// Hiding an IME nobody is using is pointless.
func (f *FreezeManager) IsIpcNeeded(t RequestType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !(t == RequestHide && !f.inUse)
}

// BeforeIpc thaws the process when the call needs it.
func (f *FreezeManager) BeforeIpc(t RequestType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t == RequestStartInput {
		f.inUse = true
	}
	if f.inUse || t == RequestShow {
		f.control(false)
	}
}

// AfterIpc records the outcome and refreezes an idle process.
func (f *FreezeManager) AfterIpc(t RequestType, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch t {
	case RequestStartInput:
		f.inUse = success
	case RequestShow:
		f.inUse = f.inUse || success
	case RequestStopInput:
		f.inUse = false
	}
	if !f.inUse {
		f.control(true)
	}
}

// IsFrozen reports the last state requested from the controller.
func (f *FreezeManager) IsFrozen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frozen
}

// InUse reports whether a client is bound to the process.
func (f *FreezeManager) InUse() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inUse
}

func (f *FreezeManager) control(freeze bool) {
	if f.frozen == freeze {
		return
	}
	f.frozen = freeze
	if f.ctrl == nil {
		return
	}
	if err := f.ctrl.SetFrozen(f.pid, freeze); err != nil {
		f.logger.Warn("failed to change freeze state", zap.Bool("freeze", freeze), zap.Error(err))
	}
}
