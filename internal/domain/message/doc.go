// Package message decouples IPC goroutines from the service's business
// logic.
//
// Any goroutine may Push; exactly one goroutine runs Handler.Run and
// executes every mutating operation in the order the pushes returned.
// Death callbacks and system events become messages with a fixed payload
// per ID; API calls that must return a value use Handler.Call.
//
// Example Usage:
//
//	queue := message.NewQueue(cfg.Session.QueueCapacity, logger, metrics)
//	pump := message.NewHandler(queue, logger, metrics)
//	pump.Register(message.MsgUserStart, svc.onUserStart)
//	go pump.Run()
//
//	_ = queue.Push(message.New(message.MsgUserStart, message.UserPayload(100)))
//
//	var res session.StartInputResult
//	var startErr error
//	err := pump.Call(ctx, func() { res, startErr = sess.OnStartInput(info, false) })
package message
