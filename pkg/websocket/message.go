package websocket

import "sync"

// Message is the data carrier passed between a [Processor] and user code:
// either a freshly-reassembled incoming data message, or an outgoing one
// once PrepareDataFrame/PreparePingFrame/... has made it wire-ready.
//
// Messages are created through the connection's [MessageManager]; a Message
// handed to a user callback (or written out) is recycled back to its
// manager afterwards, unless the manager is the default allocate-every-time
// strategy, whose Recycle is a no-op.
type Message struct {
	Opcode Opcode
	// Header holds the prepared wire-format frame header; empty until
	// Prepared is true.
	Header []byte
	// Payload is the application payload: already masked/compressed once
	// Prepared is true, raw bytes otherwise.
	Payload []byte
	// Prepared is true once Header/Payload are wire-ready (masked and
	// framed); false for an incoming Message headed to a user handler.
	Prepared bool
	// Terminal is true if, once this message finishes writing, the
	// transport should be shut down (used for the final close frame).
	Terminal bool
}

// Bytes returns the message's wire bytes (Header followed by Payload). Valid
// only once Prepared is true.
func (m Message) Bytes() []byte {
	if len(m.Header) == 0 {
		return m.Payload
	}
	b := make([]byte, 0, len(m.Header)+len(m.Payload))
	b = append(b, m.Header...)
	b = append(b, m.Payload...)
	return b
}

// MessageManager is a per-connection allocation strategy for [Message]
// payload buffers. The engine requests every incoming and outgoing Message
// through it and hands each one back via Recycle once the user callback
// returns or the transport write completes, so a pooling implementation can
// reuse buffers across messages. Implementations must be safe for use by
// the connection's reader and writer goroutines concurrently.
type MessageManager interface {
	// NewMessage returns a Message with the given opcode and an empty
	// payload buffer of at least the given capacity.
	NewMessage(op Opcode, capacity int) Message
	// Recycle returns a Message's buffers to the manager. The caller must
	// not touch the Message afterwards.
	Recycle(msg Message)
}

// allocMessages allocates a fresh buffer for every message and never reuses
// anything, leaving reclamation to the garbage collector. Always safe, even
// if a handler retains a Message past its callback.
type allocMessages struct{}

// NewAllocMessages returns the default [MessageManager]: a fresh allocation
// per message, no recycling.
func NewAllocMessages() MessageManager { return allocMessages{} }

func (allocMessages) NewMessage(op Opcode, capacity int) Message {
	return Message{Opcode: op, Payload: make([]byte, 0, capacity)}
}

func (allocMessages) Recycle(Message) {}

// pooledMessages reuses payload buffers across messages via a [sync.Pool].
// Opt-in: a handler that retains a Message past its callback will observe
// the payload being overwritten by a later message.
type pooledMessages struct {
	bufs sync.Pool
}

// NewPooledMessages returns a [MessageManager] that recycles payload
// buffers, for high-throughput connections where per-message allocation
// shows up in profiles.
func NewPooledMessages() MessageManager {
	return &pooledMessages{}
}

func (m *pooledMessages) NewMessage(op Opcode, capacity int) Message {
	buf, ok := m.bufs.Get().([]byte)
	if !ok || cap(buf) < capacity {
		buf = make([]byte, 0, capacity)
	}
	return Message{Opcode: op, Payload: buf[:0]}
}

func (m *pooledMessages) Recycle(msg Message) {
	if cap(msg.Payload) > 0 {
		m.bufs.Put(msg.Payload[:0])
	}
}
