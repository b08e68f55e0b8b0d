package websocket

import "github.com/lithammer/shortuuid/v4"

// Handle is an opaque, weak identity token for a connection: safe to copy
// and compare, and safe to hold inside a handler's captures, but it must be
// resolved back through an [Endpoint] to reach the connection itself. This
// keeps handler code from ever holding a strong reference to a *Connection, which
// is what lets the endpoint be the sole owner of connection lifetime.
type Handle string

// newHandle generates a fresh connection identity. lithammer/shortuuid gives
// a compact, URL-safe token.
func newHandle() Handle {
	return Handle(shortuuid.New())
}

func (h Handle) String() string { return string(h) }
