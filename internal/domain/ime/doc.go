// Package ime models IME connections and their lifecycle.
//
// A Data moves through starting, ready and exiting according to a fixed
// (status, event) table. The session applies events and acts on the
// returned Action:
//
//	data := ime.NewData(ime.TypeIme, bundle, ext, clk.Now())
//	// connect ...
//	switch data.WaitReady(startTimeout) {
//	case ime.Ready:
//	case ime.TimedOut:
//		if data.Apply(ime.EventStartImeTimeout) == ime.ActionStartAfterForceStop {
//			// force stop, then one fresh attempt
//		}
//	}
//
// Outbound calls to an IME go through its FreezeManager so an idle,
// frozen process is not woken for a hide.
package ime
