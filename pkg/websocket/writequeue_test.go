package websocket

import "testing"

func TestWriteQueueFIFO(t *testing.T) {
	q := newWriteQueue()
	q.push(Message{Payload: []byte("a"), Prepared: true})
	q.push(Message{Payload: []byte("b"), Prepared: true})
	q.push(Message{Payload: []byte("c"), Prepared: true})

	batch := q.drain()
	if len(batch) != 3 {
		t.Fatalf("drain() returned %d messages, want 3", len(batch))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(batch[i].Payload) != want {
			t.Errorf("batch[%d] = %q, want %q", i, batch[i].Payload, want)
		}
	}
	if q.drain() != nil {
		t.Error("drain() on an empty queue should return nil")
	}
}

func TestWriteQueueTerminalEndsBatch(t *testing.T) {
	q := newWriteQueue()
	q.push(Message{Payload: []byte("a"), Prepared: true})
	q.push(Message{Payload: []byte("b"), Prepared: true, Terminal: true})
	q.push(Message{Payload: []byte("c"), Prepared: true})

	batch := q.drain()
	if len(batch) != 2 || !batch[1].Terminal {
		t.Fatalf("drain() = %d messages (terminal=%v), want 2 ending terminal", len(batch), batch[len(batch)-1].Terminal)
	}

	rest := q.drain()
	if len(rest) != 1 || string(rest[0].Payload) != "c" {
		t.Errorf("second drain() = %+v, want the trailing message", rest)
	}
}

func TestWriteQueueBufferedAmount(t *testing.T) {
	q := newWriteQueue()
	if q.bufferedAmount() != 0 {
		t.Error("new queue should report 0 buffered bytes")
	}
	q.push(Message{Payload: make([]byte, 10), Prepared: true})
	q.push(Message{Payload: make([]byte, 5), Prepared: true})
	if got := q.bufferedAmount(); got != 15 {
		t.Errorf("bufferedAmount() = %d, want 15", got)
	}
	q.drain()
	if got := q.bufferedAmount(); got != 0 {
		t.Errorf("bufferedAmount() after drain = %d, want 0", got)
	}
}

func TestWriteQueueStop(t *testing.T) {
	q := newWriteQueue()
	q.push(Message{Payload: []byte("a"), Prepared: true})
	q.stop()

	if q.drain() != nil {
		t.Error("drain() after stop should return nil")
	}
	q.push(Message{Payload: []byte("b"), Prepared: true})
	if q.bufferedAmount() != 0 {
		t.Error("push after stop should be a no-op")
	}
	q.stop() // idempotent

	// The wake channel is closed, so a ranging writer goroutine drains any
	// buffered token and exits rather than blocking forever.
	for range q.wake {
	}
}
