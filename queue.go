package flowdag

import (
	"context"
	"sync"

	"github.com/flowdag/flowdag/datatype"
	"github.com/prometheus/client_golang/prometheus"
)

// Queue defaults, applied by NewInput when the config leaves them zero.
const (
	DefaultQueueSize = 8
)

// MessageQueue is a bounded, thread-safe FIFO buffer carrying messages across
// one link. Concurrent producers (one per connected Output) and a single
// consumer contend on it.
//
// A blocking queue stalls producers while full; a non-blocking queue drops
// its oldest entry to make room, so a producer is never held up by a slow
// consumer.
type MessageQueue struct {
	mu       sync.Mutex
	buf      []datatype.Message
	capacity int
	blocking bool
	closed   bool

	// Signal channels, closed and replaced on every broadcast. Waiters grab
	// the current channel under the lock and select on it outside.
	dataSig  chan struct{}
	spaceSig chan struct{}

	// Optional instrumentation, attached when the owning node is placed on
	// a pipeline with metrics enabled.
	depth   prometheus.Gauge
	dropped prometheus.Counter
}

// NewMessageQueue creates a queue holding at most capacity messages.
// A non-positive capacity falls back to DefaultQueueSize.
func NewMessageQueue(capacity int, blocking bool) *MessageQueue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &MessageQueue{
		capacity: capacity,
		blocking: blocking,
		dataSig:  make(chan struct{}),
		spaceSig: make(chan struct{}),
	}
}

func (q *MessageQueue) instrument(depth prometheus.Gauge, dropped prometheus.Counter) {
	q.mu.Lock()
	q.depth = depth
	q.dropped = dropped
	q.mu.Unlock()
}

// Cap returns the maximum number of queued messages.
func (q *MessageQueue) Cap() int { return q.capacity }

// Blocking reports whether a full queue stalls producers rather than
// overwriting the oldest entry.
func (q *MessageQueue) Blocking() bool { return q.blocking }

// Len returns the number of currently queued messages.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Has reports whether at least one message is queued.
func (q *MessageQueue) Has() bool { return q.Len() > 0 }

// Closed reports whether Close has been called.
func (q *MessageQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close wakes all blocked producers and consumers. Messages already queued
// remain retrievable; once drained, Get returns ErrQueueClosed. Close is
// idempotent.
func (q *MessageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signalData()
	q.signalSpace()
}

// signalData must be called with q.mu held.
func (q *MessageQueue) signalData() {
	close(q.dataSig)
	q.dataSig = make(chan struct{})
}

// signalSpace must be called with q.mu held.
func (q *MessageQueue) signalSpace() {
	close(q.spaceSig)
	q.spaceSig = make(chan struct{})
}

// push must be called with q.mu held and space available.
func (q *MessageQueue) push(msg datatype.Message) {
	q.buf = append(q.buf, msg)
	if q.depth != nil {
		q.depth.Set(float64(len(q.buf)))
	}
	q.signalData()
}

// pop must be called with q.mu held and the buffer non-empty.
func (q *MessageQueue) pop() datatype.Message {
	msg := q.buf[0]
	q.buf = q.buf[1:]
	if q.depth != nil {
		q.depth.Set(float64(len(q.buf)))
	}
	q.signalSpace()
	return msg
}

// dropOldest must be called with q.mu held and the buffer non-empty.
func (q *MessageQueue) dropOldest() {
	q.buf = q.buf[1:]
	if q.depth != nil {
		q.depth.Set(float64(len(q.buf)))
	}
	if q.dropped != nil {
		q.dropped.Inc()
	}
}

// Send inserts msg, applying the queue's policy: a blocking queue waits for
// space (cancellable through ctx), a non-blocking queue drops its oldest
// entry when full. Returns ErrQueueClosed if the queue is or becomes closed.
func (q *MessageQueue) Send(ctx context.Context, msg datatype.Message) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if len(q.buf) < q.capacity {
			q.push(msg)
			q.mu.Unlock()
			return nil
		}
		if !q.blocking {
			q.dropOldest()
			q.push(msg)
			q.mu.Unlock()
			return nil
		}
		wait := q.spaceSig
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// TrySend inserts msg without ever waiting. On a full blocking queue it
// reports false and leaves the queue untouched; on a full non-blocking queue
// it drops the oldest entry and succeeds.
func (q *MessageQueue) TrySend(msg datatype.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(q.buf) >= q.capacity {
		if q.blocking {
			return false
		}
		q.dropOldest()
	}
	q.push(msg)
	return true
}

// TryGet removes and returns the front message, or reports false if the
// queue is empty.
func (q *MessageQueue) TryGet() (datatype.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil, false
	}
	return q.pop(), true
}

// Front returns the front message without removing it.
func (q *MessageQueue) Front() (datatype.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil, false
	}
	return q.buf[0], true
}

// Get blocks until a message is available, the context is done, or the queue
// is closed and drained.
func (q *MessageQueue) Get(ctx context.Context) (datatype.Message, error) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			msg := q.pop()
			q.mu.Unlock()
			return msg, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wait := q.dataSig
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// TryGetAll drains and returns all currently queued messages without
// waiting. The result is nil when the queue is empty.
func (q *MessageQueue) TryGetAll() []datatype.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	if q.depth != nil {
		q.depth.Set(0)
	}
	q.signalSpace()
	return out
}

// GetAll blocks until at least one message is queued, then drains and
// returns everything.
func (q *MessageQueue) GetAll(ctx context.Context) ([]datatype.Message, error) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			out := q.buf
			q.buf = nil
			if q.depth != nil {
				q.depth.Set(0)
			}
			q.signalSpace()
			q.mu.Unlock()
			return out, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		wait := q.dataSig
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// FrontAs returns the front message if it is of type T, without removing it.
func FrontAs[T datatype.Message](q *MessageQueue) (T, bool) {
	var zero T
	msg, ok := q.Front()
	if !ok {
		return zero, false
	}
	t, ok := msg.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// HasAs reports whether the queue is non-empty and its front message is of
// type T.
func HasAs[T datatype.Message](q *MessageQueue) bool {
	_, ok := FrontAs[T](q)
	return ok
}

// TryGetAs removes and returns the front message if it is of type T. A front
// message of another type is left in place and false is reported.
func TryGetAs[T datatype.Message](q *MessageQueue) (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return zero, false
	}
	t, ok := q.buf[0].(T)
	if !ok {
		return zero, false
	}
	q.pop()
	return t, true
}

// GetAs blocks like Get, then returns the front message if it is of type T.
// A front message of another type is left queued and ErrWrongKind returned.
func GetAs[T datatype.Message](ctx context.Context, q *MessageQueue) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			t, ok := q.buf[0].(T)
			if !ok {
				q.mu.Unlock()
				return zero, ErrWrongKind
			}
			q.pop()
			q.mu.Unlock()
			return t, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrQueueClosed
		}
		wait := q.dataSig
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}
