package ime

import "fmt"

// Type is the role an IME connection plays in a session.
type Type int32

const (
	TypeNone Type = iota
	TypeIme
	TypeProxyIme
	TypeProxyAgentIme
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeIme:
		return "ime"
	case TypeProxyIme:
		return "proxy_ime"
	case TypeProxyAgentIme:
		return "proxy_agent_ime"
	default:
		return fmt.Sprintf("type(%d)", int32(t))
	}
}

// Status is the lifecycle state of an IME connection.
type Status int32

const (
	StatusStarting Status = iota + 1
	StatusReady
	StatusExiting
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusReady:
		return "ready"
	case StatusExiting:
		return "exiting"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Event drives a status transition.
type Event int32

const (
	EventStartIme Event = iota + 1
	EventStartImeTimeout
	EventStopIme
	EventSetCoreAndAgent
)

func (e Event) String() string {
	switch e {
	case EventStartIme:
		return "start_ime"
	case EventStartImeTimeout:
		return "start_ime_timeout"
	case EventStopIme:
		return "stop_ime"
	case EventSetCoreAndAgent:
		return "set_core_and_agent"
	default:
		return fmt.Sprintf("event(%d)", int32(e))
	}
}

// Action is what the session must do after a transition.
type Action int32

const (
	ActionDoNothing Action = iota + 1
	ActionHandleStartingIme
	ActionForceStopIme
	ActionStopReadyIme
	ActionStartAfterForceStop
	ActionStopExitingIme
	ActionDoSetCoreAndAgent
	// ActionNullData means there is no connection for the role.
	ActionNullData
	// ActionConvertFailed means the table has no entry for the pair.
	ActionConvertFailed
)

func (a Action) String() string {
	switch a {
	case ActionDoNothing:
		return "do_nothing"
	case ActionHandleStartingIme:
		return "handle_starting_ime"
	case ActionForceStopIme:
		return "force_stop_ime"
	case ActionStopReadyIme:
		return "stop_ready_ime"
	case ActionStartAfterForceStop:
		return "start_after_force_stop"
	case ActionStopExitingIme:
		return "stop_exiting_ime"
	case ActionDoSetCoreAndAgent:
		return "do_set_core_and_agent"
	case ActionNullData:
		return "null_data"
	case ActionConvertFailed:
		return "convert_failed"
	default:
		return fmt.Sprintf("action(%d)", int32(a))
	}
}

type transitionKey struct {
	status Status
	event  Event
}

type transition struct {
	next   Status
	action Action
}

var transitions = map[transitionKey]transition{
	{StatusReady, EventStartIme}:            {StatusReady, ActionDoNothing},
	{StatusStarting, EventStartIme}:         {StatusStarting, ActionHandleStartingIme},
	{StatusExiting, EventStartIme}:          {StatusExiting, ActionStartAfterForceStop},
	{StatusReady, EventStartImeTimeout}:     {StatusReady, ActionDoNothing},
	{StatusStarting, EventStartImeTimeout}:  {StatusExiting, ActionStartAfterForceStop},
	{StatusExiting, EventStartImeTimeout}:   {StatusExiting, ActionStartAfterForceStop},
	{StatusReady, EventStopIme}:             {StatusExiting, ActionStopReadyIme},
	{StatusStarting, EventStopIme}:          {StatusExiting, ActionForceStopIme},
	{StatusExiting, EventStopIme}:           {StatusExiting, ActionStopExitingIme},
	{StatusReady, EventSetCoreAndAgent}:     {StatusReady, ActionDoNothing},
	{StatusStarting, EventSetCoreAndAgent}:  {StatusReady, ActionDoSetCoreAndAgent},
	{StatusExiting, EventSetCoreAndAgent}:   {StatusExiting, ActionDoNothing},
}

// Transition looks up (status, event). ok is false when the pair has no
// entry; the status is then unchanged and the action is
// ActionConvertFailed.
func Transition(status Status, event Event) (Status, Action, bool) {
	t, ok := transitions[transitionKey{status, event}]
	if !ok {
		return status, ActionConvertFailed, false
	}
	return t.next, t.action, true
}
