package websocket

import "sync"

// writeQueue is the per-connection outgoing FIFO: Messages are enqueued
// only while Open (or by the engine itself, for the close frame, while
// Closing), and at most one transport write is ever outstanding. Each
// Connection has a single dedicated writer goroutine draining the queue in
// a loop; the mutex only protects the slice and byte counter against
// concurrent Send callers.
type writeQueue struct {
	mu       sync.Mutex
	pending  []Message
	buffered int // cumulative payload bytes of queued-but-unwritten messages
	wake     chan struct{}
	closed   bool
}

func newWriteQueue() *writeQueue {
	return &writeQueue{wake: make(chan struct{}, 1)}
}

// push enqueues msg and wakes the writer goroutine if it's idle. A push
// after stop is a silent no-op: the connection is tearing down and nothing
// would ever drain it.
func (q *writeQueue) push(msg Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, msg)
	q.buffered += len(msg.Payload)

	// The send stays under the mutex so it can never race a concurrent
	// stop() closing the channel.
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// drain removes the consecutive run of queued Messages as one batch, for a
// single vectored write. A Terminal message always ends its batch, since
// nothing enqueued after the transport shuts down could ever be written.
func (q *writeQueue) drain() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	for i, m := range batch {
		if m.Terminal {
			batch = batch[:i+1]
			break
		}
	}
	q.pending = q.pending[len(batch):]

	n := 0
	for _, m := range batch {
		n += len(m.Payload)
	}
	q.buffered -= n
	return batch
}

// bufferedAmount returns the cumulative payload byte count of messages
// enqueued but not yet handed to the transport — the value
// [Connection.BufferedAmount] exposes so applications can throttle their
// producers (the engine itself imposes no flow control on sends).
func (q *writeQueue) bufferedAmount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buffered
}

// stop marks the queue closed and closes the wake channel, which both
// rejects any further push and lets the writer goroutine's range loop
// terminate once it drains the final batch. Idempotent.
func (q *writeQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.pending = nil
	q.buffered = 0
	close(q.wake)
}
