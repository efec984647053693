package message

import (
	"fmt"

	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/shared/id"
)

// ID identifies the kind of work a message carries. The payload shape is
// fixed per ID.
type ID int32

const (
	MsgUserStart ID = iota + 1
	MsgUserStop
	MsgUserRemoved
	MsgPackageAdded
	MsgPackageChanged
	MsgPackageRemoved
	MsgBundleScanFinished
	MsgBootCompleted
	MsgScreenUnlock
	MsgSelectByRange
	MsgSelectByMovement
	MsgHideKeyboardSelf
	MsgQuitWorkerThread
	MsgClientDied
	MsgImeDied
	MsgRestartIme
	MsgSettingsChanged
	MsgCall
)

var idNames = map[ID]string{
	MsgUserStart:          "USER_START",
	MsgUserStop:           "USER_STOP",
	MsgUserRemoved:        "USER_REMOVED",
	MsgPackageAdded:       "PACKAGE_ADDED",
	MsgPackageChanged:     "PACKAGE_CHANGED",
	MsgPackageRemoved:     "PACKAGE_REMOVED",
	MsgBundleScanFinished: "BUNDLE_SCAN_FINISHED",
	MsgBootCompleted:      "BOOT_COMPLETED",
	MsgScreenUnlock:       "SCREEN_UNLOCK",
	MsgSelectByRange:      "SELECT_BY_RANGE",
	MsgSelectByMovement:   "SELECT_BY_MOVEMENT",
	MsgHideKeyboardSelf:   "HIDE_KEYBOARD_SELF",
	MsgQuitWorkerThread:   "QUIT_WORKER_THREAD",
	MsgClientDied:         "CLIENT_DIED",
	MsgImeDied:            "IME_DIED",
	MsgRestartIme:         "RESTART_IME",
	MsgSettingsChanged:    "SETTINGS_CHANGED",
	MsgCall:               "CALL",
}

func (m ID) String() string {
	if name, ok := idNames[m]; ok {
		return name
	}
	return fmt.Sprintf("MSG_%d", int32(m))
}

// Message is one unit of cross-goroutine work. A message is owned by
// whoever holds it last: Push hands it to the queue and Pop hands it to the
// consumer. Nobody touches a message after handing it on.
type Message struct {
	ID      ID
	Payload *ipc.Parcel
	TraceID id.TraceID

	call *call
}

// New creates a message. payload may be nil for ids that carry nothing.
func New(msgID ID, payload *ipc.Parcel) *Message {
	return &Message{
		ID:      msgID,
		Payload: payload,
		TraceID: id.NewTraceID(),
	}
}
