package websocket

import (
	"io"
	"net"
)

// Transport abstracts the byte-stream a [Connection] drives; concrete
// network I/O (sockets, TLS) stays behind it. A Transport is always driven
// by exactly one Connection: one goroutine reads from it (the handshake,
// then the read loop), and writes never overlap (the handshake goroutine
// writes the handshake, after which only the write queue's drain loop
// writes), so implementations need no internal synchronization beyond
// what io.ReadWriteCloser implies.
//
// Timers (open-handshake, close-handshake, pong) are not part of this
// interface: [time.AfterFunc] already provides a one-shot cancellable
// timer, so the connection uses it directly.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	// IsSecure reports whether the transport is running over TLS.
	IsSecure() bool
	// RemoteAddr returns a human-readable peer address, for logging.
	RemoteAddr() string
}

// netTransport adapts a [net.Conn] to [Transport]: the concrete transport
// both the client dial path and the server's listener accept path use.
type netTransport struct {
	net.Conn
	secure bool
}

func (t netTransport) IsSecure() bool     { return t.secure }
func (t netTransport) RemoteAddr() string { return t.Conn.RemoteAddr().String() }

// NewTransport wraps an established [net.Conn] (already past any TLS
// handshake) as a [Transport]. secure should report whether conn is a TLS
// connection.
func NewTransport(conn net.Conn, secure bool) Transport {
	return netTransport{Conn: conn, secure: secure}
}
