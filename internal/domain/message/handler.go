package message

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// HandlerFunc processes one message on the consumer goroutine.
type HandlerFunc func(msg *Message)

const (
	callPending int32 = iota
	callRunning
	callAbandoned
)

type call struct {
	fn    func()
	state atomic.Int32
	done  chan struct{}
}

// Handler is the single consumer of a queue. Everything it runs is
// serialized, which is what lets session state be mutated without lock
// ordering between operations.
type Handler struct {
	queue   *Queue
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	handlers map[ID]HandlerFunc

	running atomic.Bool
	done    chan struct{}
}

// NewHandler creates a pump over queue.
func NewHandler(queue *Queue, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewNop()
	}
	return &Handler{
		queue:    queue,
		logger:   logger.Named("pump"),
		metrics:  metrics,
		handlers: make(map[ID]HandlerFunc),
		done:     make(chan struct{}),
	}
}

// Register installs fn for msgID, replacing any previous handler.
func (h *Handler) Register(msgID ID, fn HandlerFunc) {
	h.mu.Lock()
	h.handlers[msgID] = fn
	h.mu.Unlock()
}

// Run consumes messages until MsgQuitWorkerThread is popped or the queue is
// closed and drained. It must be called from exactly one goroutine.
func (h *Handler) Run() {
	if !h.running.CompareAndSwap(false, true) {
		h.logger.Error("pump already running")
		return
	}
	defer close(h.done)

	h.logger.Info("pump started")
	for {
		msg, ok := h.queue.Pop()
		if !ok {
			h.logger.Info("pump stopped, queue closed")
			return
		}
		if msg.ID == MsgQuitWorkerThread {
			h.logger.Info("pump stopped", zap.String("trace_id", string(msg.TraceID)))
			h.abandonPending()
			return
		}
		h.dispatch(msg)
	}
}

// Quit asks the pump to stop after the messages already queued.
func (h *Handler) Quit() error {
	return h.queue.Push(New(MsgQuitWorkerThread, nil))
}

// Done is closed when Run returns.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Call runs fn on the consumer goroutine and waits for it. If ctx ends
// before fn starts, fn never runs and ErrorTimeout is returned; once fn has
// started, Call waits for it to finish. Call must not be used from the
// consumer goroutine itself.
func (h *Handler) Call(ctx context.Context, fn func()) error {
	c := &call{fn: fn, done: make(chan struct{})}
	msg := New(MsgCall, nil)
	msg.call = c
	if err := h.queue.Push(msg); err != nil {
		return err
	}

	select {
	case <-c.done:
		return nil
	case <-h.done:
		if c.state.CompareAndSwap(callPending, callAbandoned) {
			return errs.ErrorQueueClosed
		}
		<-c.done
		return nil
	case <-ctx.Done():
		if c.state.CompareAndSwap(callPending, callAbandoned) {
			return errs.Wrap(errs.ErrorTimeout, "call not started: %v", ctx.Err())
		}
		<-c.done
		return nil
	}
}

func (h *Handler) dispatch(msg *Message) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("message handler panicked",
				zap.Stringer("id", msg.ID),
				zap.String("trace_id", string(msg.TraceID)),
				zap.String("panic", fmt.Sprint(rec)),
				zap.Stack("stack"),
			)
			h.metrics.RecordDrop(msg.ID.String(), "panic")
			return
		}
		h.metrics.RecordProcessed(msg.ID.String(), h.queue.Len(), time.Since(start))
	}()

	if msg.call != nil {
		h.runCall(msg.call)
		return
	}

	h.mu.RLock()
	fn, ok := h.handlers[msg.ID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Warn("no handler for message", zap.Stringer("id", msg.ID))
		h.metrics.RecordDrop(msg.ID.String(), "unhandled")
		return
	}

	h.logger.Debug("handling message",
		zap.Stringer("id", msg.ID),
		zap.String("trace_id", string(msg.TraceID)),
	)
	fn(msg)
}

func (h *Handler) runCall(c *call) {
	if !c.state.CompareAndSwap(callPending, callRunning) {
		return
	}
	defer close(c.done)
	c.fn()
}

// abandonPending releases callers still waiting on queued calls.
func (h *Handler) abandonPending() {
	h.queue.Close()
	for {
		msg, ok := h.queue.Pop()
		if !ok {
			return
		}
		if msg.call != nil {
			msg.call.state.CompareAndSwap(callPending, callAbandoned)
		}
		h.metrics.RecordDrop(msg.ID.String(), "quit")
	}
}
