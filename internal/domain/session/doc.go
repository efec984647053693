// Package session holds the input method state of one OS user.
//
// A Session owns the client groups of every display group the user edits on
// and the IME connections of each role (primary IME, proxy IME, proxy agent).
// It decides which client is current, binds it to the right IME, and
// recovers when either side dies.
//
// Threading:
//   - Every operation that mutates bindings runs on the service's consumer
//     goroutine, so operations never interleave.
//   - OnSetCoreAndAgent runs on the registering IME's goroutine because the
//     consumer may be blocked in StartCurrentIme waiting for it.
//   - Death callbacks only enqueue MsgClientDied or MsgImeDied.
//
// IME lifecycle:
//
//	STARTING --register--> READY --stop--> EXITING
//	    |                                    ^
//	    +------------start timeout-----------+
//
// A crashed primary IME is restarted at most RestartMax times per
// RestartWindow while its user is in the foreground.
package session
