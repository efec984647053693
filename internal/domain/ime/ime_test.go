package ime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/imf/internal/protocol"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		status Status
		event  Event
		next   Status
		action Action
	}{
		{StatusReady, EventStartIme, StatusReady, ActionDoNothing},
		{StatusStarting, EventStartIme, StatusStarting, ActionHandleStartingIme},
		{StatusExiting, EventStartIme, StatusExiting, ActionStartAfterForceStop},
		{StatusReady, EventStartImeTimeout, StatusReady, ActionDoNothing},
		{StatusStarting, EventStartImeTimeout, StatusExiting, ActionStartAfterForceStop},
		{StatusExiting, EventStartImeTimeout, StatusExiting, ActionStartAfterForceStop},
		{StatusReady, EventStopIme, StatusExiting, ActionStopReadyIme},
		{StatusStarting, EventStopIme, StatusExiting, ActionForceStopIme},
		{StatusExiting, EventStopIme, StatusExiting, ActionStopExitingIme},
		{StatusReady, EventSetCoreAndAgent, StatusReady, ActionDoNothing},
		{StatusStarting, EventSetCoreAndAgent, StatusReady, ActionDoSetCoreAndAgent},
		{StatusExiting, EventSetCoreAndAgent, StatusExiting, ActionDoNothing},
	}

	for _, tt := range tests {
		t.Run(tt.status.String()+"/"+tt.event.String(), func(t *testing.T) {
			next, action, ok := Transition(tt.status, tt.event)
			assert.True(t, ok)
			assert.Equal(t, tt.next, next)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestTransitionUnknownPair(t *testing.T) {
	next, action, ok := Transition(Status(0), EventStartIme)
	assert.False(t, ok)
	assert.Equal(t, Status(0), next)
	assert.Equal(t, ActionConvertFailed, action)
}

func TestDataStartSequence(t *testing.T) {
	d := NewData(TypeIme, "com.example.kbd", "KbdAbility", time.Now())
	assert.Equal(t, StatusStarting, d.Status())
	assert.Equal(t, ActionHandleStartingIme, d.Apply(EventStartIme), "second start while starting")

	go func() {
		time.Sleep(5 * time.Millisecond)
		d.SetCoreAndAgent(Connection{Pid: 42}, nil)
	}()
	assert.Equal(t, Ready, d.WaitReady(time.Second))
	assert.Equal(t, StatusReady, d.Status())
	assert.Equal(t, int32(42), d.Connection().Pid)

	assert.Equal(t, ActionDoNothing, d.SetCoreAndAgent(Connection{Pid: 7}, nil))
	assert.Equal(t, int32(42), d.Connection().Pid, "a late registration does not replace the live one")
}

func TestDataWaitReadyTimesOut(t *testing.T) {
	d := NewData(TypeIme, "b", "e", time.Now())
	assert.Equal(t, TimedOut, d.WaitReady(10*time.Millisecond))
	assert.Equal(t, ActionStartAfterForceStop, d.Apply(EventStartImeTimeout))
	assert.Equal(t, StatusExiting, d.Status())
}

func TestDataDeathWakesWaiters(t *testing.T) {
	d := NewData(TypeIme, "b", "e", time.Now())

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(2)
	go func() { defer wg.Done(); results[0] = d.WaitReady(time.Second) }()
	go func() { defer wg.Done(); results[1] = d.WaitDied(time.Second) }()

	time.Sleep(5 * time.Millisecond)
	d.MarkDied()
	d.MarkDied()
	wg.Wait()

	assert.Equal(t, []Result{Died, Died}, results)
	assert.True(t, d.IsDead())
}

func TestDataPendingCommand(t *testing.T) {
	d := NewReadyData(TypeProxyIme, "proxy", Connection{Pid: 9}, nil, time.Now())
	assert.Equal(t, Ready, d.WaitReady(0))

	cmd := protocol.PrivateCommand{"k": {Kind: protocol.PrivateBool, Bool: true}}
	d.SetPendingCommand(cmd)
	assert.True(t, d.Info().HasPending)
	assert.Equal(t, cmd, d.TakePendingCommand())
	assert.Nil(t, d.TakePendingCommand())
}

type recordingController struct {
	mu    sync.Mutex
	calls []bool
}

func (c *recordingController) SetFrozen(_ int32, frozen bool) error {
	c.mu.Lock()
	c.calls = append(c.calls, frozen)
	c.mu.Unlock()
	return nil
}

func TestFreezeManager(t *testing.T) {
	ctrl := &recordingController{}
	f := NewFreezeManager(42, ctrl, nil)

	assert.False(t, f.IsIpcNeeded(RequestHide), "hide of an idle ime is skipped")
	assert.True(t, f.IsIpcNeeded(RequestNormal))

	f.BeforeIpc(RequestStartInput)
	f.AfterIpc(RequestStartInput, true)
	assert.True(t, f.InUse())
	assert.False(t, f.IsFrozen())
	assert.True(t, f.IsIpcNeeded(RequestHide))

	f.BeforeIpc(RequestStopInput)
	f.AfterIpc(RequestStopInput, true)
	assert.False(t, f.InUse())
	assert.True(t, f.IsFrozen())

	f.BeforeIpc(RequestShow)
	assert.False(t, f.IsFrozen(), "show thaws")
	f.AfterIpc(RequestShow, false)
	assert.True(t, f.IsFrozen(), "failed show refreezes")

	require.Equal(t, []bool{true, false, true}, ctrl.calls)
}

func TestFreezeManagerFailedStart(t *testing.T) {
	f := NewFreezeManager(1, nil, nil)
	f.BeforeIpc(RequestStartInput)
	f.AfterIpc(RequestStartInput, false)
	assert.False(t, f.InUse())
	assert.True(t, f.IsFrozen())
}
