package message

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// DefaultCapacity bounds a queue created with a non-positive capacity.
const DefaultCapacity = 4096

// Queue is a FIFO of messages with a blocking Pop. Push never blocks.
type Queue struct {
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Message
	head   int
	closed bool
}

// NewQueue creates a queue holding at most capacity pending messages.
func NewQueue(capacity int, logger *zap.Logger, metrics *monitoring.Metrics) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewNop()
	}
	q := &Queue{
		logger:   logger.Named("queue"),
		metrics:  metrics,
		capacity: capacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends msg and wakes the consumer. A full or closed queue drops the
// message, logs it and reports an error the producer may surface as a code.
func (q *Queue) Push(msg *Message) error {
	if msg == nil {
		q.logger.Error("nil message pushed")
		return errs.ErrorNullPointer
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("message dropped, queue closed", zap.Stringer("id", msg.ID))
		q.metrics.RecordDrop(msg.ID.String(), "closed")
		return errs.ErrorQueueClosed
	}
	depth := len(q.items) - q.head
	if depth >= q.capacity {
		q.mu.Unlock()
		q.logger.Error("message dropped, queue full",
			zap.Stringer("id", msg.ID),
			zap.Int("capacity", q.capacity),
		)
		q.metrics.RecordDrop(msg.ID.String(), "full")
		return errs.ErrorQueueFull
	}
	q.items = append(q.items, msg)
	depth++
	q.cond.Signal()
	q.mu.Unlock()

	q.metrics.RecordPush(msg.ID.String(), depth)
	return nil
}

// Pop blocks until a message is available and returns it. It returns false
// once the queue is closed and drained.
func (q *Queue) Pop() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return nil, false
	}

	msg := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > len(q.items)/2 && q.head > 64 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return msg, true
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close rejects further pushes. Pending messages remain poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
