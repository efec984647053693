// Package errs defines the structured error codes returned across the
// framework's IPC boundary.
//
// Every remote-facing entry point converts internal failures to one of the
// Code constants below; a nil error means success.
package errs

import (
	"errors"
	"fmt"
)

// Code is a structured error code. It implements error so it can be returned
// and wrapped like any other error value.
type Code int32

const (
	ErrorNullPointer Code = iota + 1
	ErrorBadParameters
	ErrorClientNotFound
	ErrorClientNotFocused
	ErrorClientNullPointer
	ErrorClientNotBound
	ErrorImeNotStarted
	ErrorImeStartInputFailed
	ErrorImeNotReady
	ErrorNotCurrentIme
	ErrorKbdShowFailed
	ErrorKbdHideFailed
	ErrorImsaImeStartTimeout
	ErrorImsaForceStopImeTimeout
	ErrorImsaImeConnectFailed
	ErrorImsaImeDisconnectFailed
	ErrorUserNotFound
	ErrorRemoteDead
	ErrorDeathWatchFailed
	ErrorQueueFull
	ErrorQueueClosed
	ErrorServiceStartFailed
	ErrorOperateSystemService
	ErrorStatusPermissionDenied
)

const (
	// ErrorExParcelable is reported when a parcel field cannot be read or written.
	ErrorExParcelable Code = 1000 + iota
	// ErrorStatusUnknownTransaction is reported for foreign descriptors and unknown opcodes.
	ErrorStatusUnknownTransaction
	// ErrorTimeout is reported when a queued call does not complete in time.
	ErrorTimeout
)

var names = map[Code]string{
	ErrorNullPointer:              "ERROR_NULL_POINTER",
	ErrorBadParameters:            "ERROR_BAD_PARAMETERS",
	ErrorClientNotFound:           "ERROR_CLIENT_NOT_FOUND",
	ErrorClientNotFocused:         "ERROR_CLIENT_NOT_FOCUSED",
	ErrorClientNullPointer:        "ERROR_CLIENT_NULL_POINTER",
	ErrorClientNotBound:           "ERROR_CLIENT_NOT_BOUND",
	ErrorImeNotStarted:            "ERROR_IME_NOT_STARTED",
	ErrorImeStartInputFailed:      "ERROR_IME_START_INPUT_FAILED",
	ErrorImeNotReady:              "ERROR_IME_NOT_READY",
	ErrorNotCurrentIme:            "ERROR_NOT_CURRENT_IME",
	ErrorKbdShowFailed:            "ERROR_KBD_SHOW_FAILED",
	ErrorKbdHideFailed:            "ERROR_KBD_HIDE_FAILED",
	ErrorImsaImeStartTimeout:      "ERROR_IMSA_IME_START_TIMEOUT",
	ErrorImsaForceStopImeTimeout:  "ERROR_IMSA_FORCE_STOP_IME_TIMEOUT",
	ErrorImsaImeConnectFailed:     "ERROR_IMSA_IME_CONNECT_FAILED",
	ErrorImsaImeDisconnectFailed:  "ERROR_IMSA_IME_DISCONNECT_FAILED",
	ErrorUserNotFound:             "ERROR_USER_NOT_FOUND",
	ErrorRemoteDead:               "ERROR_REMOTE_DEAD",
	ErrorDeathWatchFailed:         "ERROR_DEATH_WATCH_FAILED",
	ErrorQueueFull:                "ERROR_QUEUE_FULL",
	ErrorQueueClosed:              "ERROR_QUEUE_CLOSED",
	ErrorServiceStartFailed:       "ERROR_SERVICE_START_FAILED",
	ErrorOperateSystemService:     "ERROR_OPERATE_SYSTEM_SERVICE",
	ErrorStatusPermissionDenied:   "ERROR_STATUS_PERMISSION_DENIED",
	ErrorExParcelable:             "ERROR_EX_PARCELABLE",
	ErrorStatusUnknownTransaction: "ERROR_STATUS_UNKNOWN_TRANSACTION",
	ErrorTimeout:                  "ERROR_TIMEOUT",
}

// Error returns the symbolic name of the code.
func (c Code) Error() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", int32(c))
}

// Is reports whether err carries the code c anywhere in its chain.
func Is(err error, c Code) bool {
	var code Code
	if errors.As(err, &code) {
		return code == c
	}
	return false
}

// From converts err to a Code. nil maps to 0; errors without a code map to
// ErrorNullPointer, the generic failure code.
func From(err error) Code {
	if err == nil {
		return 0
	}
	var code Code
	if errors.As(err, &code) {
		return code
	}
	return ErrorNullPointer
}

// FromWire turns a status code read from a reply parcel back into an error.
func FromWire(code int32) error {
	if code == 0 {
		return nil
	}
	return Code(code)
}

// Wrap annotates a code with context while keeping it matchable with Is.
func Wrap(c Code, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), c)
}
