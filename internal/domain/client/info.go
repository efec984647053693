package client

import (
	"strings"

	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/protocol"
)

// EventFlag is the set of notifications a client listens for
type EventFlag uint32

const (
	EventShow EventFlag = 1 << iota
	EventHide
	EventChange
	EventInputStart
	EventInputStop
)

// EventAll subscribes to every notification
const EventAll = EventShow | EventHide | EventChange | EventInputStart | EventInputStop

func (f EventFlag) Has(bit EventFlag) bool { return f&bit != 0 }

func (f EventFlag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, e := range []struct {
		bit  EventFlag
		name string
	}{
		{EventShow, "show"},
		{EventHide, "hide"},
		{EventChange, "change"},
		{EventInputStart, "input_start"},
		{EventInputStop, "input_stop"},
	} {
		if f.Has(e.bit) {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}

// State is whether a client is active or parked after losing focus
type State int32

const (
	StateActive State = iota
	StateInactive
)

func (s State) String() string {
	if s == StateInactive {
		return "inactive"
	}
	return "active"
}

// Info is one attached client. A Group hands out copies; only the group
// mutates its own entry.
type Info struct {
	Pid       int32
	Uid       int32
	UserID    int32
	DisplayID uint64

	Client        protocol.InputClient
	ClientHandle  ipc.Handle
	Channel       protocol.InputDataChannel
	ChannelHandle ipc.Handle

	Attribute protocol.InputAttribute
	Config    protocol.TextTotalConfig

	BindImeType           ime.Type
	IsShowKeyboard        bool
	EventFlag             EventFlag
	State                 State
	SessionID             uint32
	IsNotifyInputStart    bool
	RequestKeyboardReason int32
}

// IsBound reports whether the client is bound to an IME role
func (i *Info) IsBound() bool { return i.BindImeType != ime.TypeNone }

func (i *Info) clone() *Info {
	c := *i
	return &c
}

// AddEvent says why a client is being added
type AddEvent int32

const (
	// AddPrepare and AddStart refresh the editing context.
	AddPrepare AddEvent = iota
	AddStart
	// AddListen only changes the event subscription.
	AddListen
)

// Update mutates one attribute of a stored client
type Update func(*Info)

func UpdateShowKeyboard(show bool) Update {
	return func(i *Info) { i.IsShowKeyboard = show }
}

func UpdateBindType(t ime.Type) Update {
	return func(i *Info) { i.BindImeType = t }
}

func UpdateState(s State) Update {
	return func(i *Info) { i.State = s }
}

func UpdateEventFlag(f EventFlag) Update {
	return func(i *Info) { i.EventFlag = f }
}

func UpdateSessionID(id uint32) Update {
	return func(i *Info) { i.SessionID = id }
}

func UpdateConfig(cfg protocol.TextTotalConfig) Update {
	return func(i *Info) {
		i.Config = cfg
		i.Attribute = cfg.InputAttribute
	}
}

func UpdateNotifyInputStart(notified bool) Update {
	return func(i *Info) { i.IsNotifyInputStart = notified }
}

// Summary is a read-only view of a client for dumps
type Summary struct {
	Pid            int32  `json:"pid"`
	Uid            int32  `json:"uid"`
	DisplayID      uint64 `json:"display_id"`
	Bundle         string `json:"bundle"`
	BindImeType    string `json:"bind_ime_type"`
	IsShowKeyboard bool   `json:"is_show_keyboard"`
	EventFlag      string `json:"event_flag"`
	State          string `json:"state"`
	SessionID      uint32 `json:"session_id"`
	WindowID       uint32 `json:"window_id"`
}

func (i *Info) summary() Summary {
	return Summary{
		Pid:            i.Pid,
		Uid:            i.Uid,
		DisplayID:      i.DisplayID,
		Bundle:         i.Attribute.BundleName,
		BindImeType:    i.BindImeType.String(),
		IsShowKeyboard: i.IsShowKeyboard,
		EventFlag:      i.EventFlag.String(),
		State:          i.State.String(),
		SessionID:      i.SessionID,
		WindowID:       i.Config.WindowID,
	}
}
