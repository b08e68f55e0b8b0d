package websocket

import (
	"sync"

	"github.com/mmaltais/wsengine/pkg/wslog"
	"github.com/mmaltais/wsengine/pkg/wsuri"
)

// Endpoint is the connection factory: it holds the shared [Config] and
// default [Handlers], creates server- and client-side [Connection] values
// pre-wired with those defaults, and tracks every live connection so a
// [Handle] can be resolved back to its connection for the duration of a
// handler call. The endpoint is the sole owner of connection lifetime;
// handlers only ever see Handles.
type Endpoint struct {
	cfg      Config
	handlers Handlers

	mu    sync.Mutex
	conns map[Handle]*Connection
}

// NewEndpoint builds an Endpoint with the given configuration (zero-value
// fields resolve to their documented defaults) and default handlers, which
// every connection inherits unless a per-Accept/per-Dial override replaces
// individual slots.
func NewEndpoint(cfg Config, defaults Handlers) *Endpoint {
	return &Endpoint{
		cfg:      cfg.withDefaults(),
		handlers: defaults,
		conns:    make(map[Handle]*Connection),
	}
}

// Config returns the endpoint's resolved configuration.
func (ep *Endpoint) Config() Config { return ep.cfg }

// Get resolves a weak [Handle] to its live [Connection]. It fails with a
// BadConnection error once the connection has terminated; a resolved
// reference is only guaranteed valid for the duration of the handler call
// that resolved it.
func (ep *Endpoint) Get(h Handle) (*Connection, *Error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	c, ok := ep.conns[h]
	if !ok {
		return nil, errBadConnection("no live connection for handle " + h.String())
	}
	return c, nil
}

// Len reports the number of live tracked connections.
func (ep *Endpoint) Len() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return len(ep.conns)
}

func (ep *Endpoint) track(c *Connection) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.conns[c.handle] = c
}

// remove drops a terminated connection from the tracking set; called from
// Connection.terminate after the close/fail handler has been dispatched.
func (ep *Endpoint) remove(h Handle) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	delete(ep.conns, h)
}

// Accept wires an inbound transport (an accepted TCP/TLS connection, or a
// test pipe) as a server-side connection and starts its handshake. Handler
// slots left nil in overrides fall back to the endpoint defaults.
func (ep *Endpoint) Accept(t Transport, overrides Handlers) *Connection {
	c := newConnection(ep, t, true, ep.cfg, overrides.merge(ep.handlers))
	ep.track(c)
	ep.cfg.Log.Debug("accepting connection",
		wslog.F("conn", c.handle.String()),
		wslog.F("remote", t.RemoteAddr()))
	c.start()
	return c
}

// Connect starts a client-side connection over an already-established
// transport: it sends the opening handshake for rawURI, validates the
// server's reply, and enters the open phase. Most callers want [Endpoint.Dial],
// which also establishes the underlying TCP/TLS connection; Connect exists
// for custom transports (proxied streams, in-process pipes, tests).
func (ep *Endpoint) Connect(t Transport, rawURI string, subprotocols []string, overrides Handlers) (*Connection, error) {
	uri, err := wsuri.Parse(rawURI)
	if err != nil {
		return nil, err
	}

	c := newConnection(ep, t, false, ep.cfg, overrides.merge(ep.handlers))
	c.uri = uri
	c.subprotocols = subprotocols
	ep.track(c)
	ep.cfg.Log.Debug("connecting",
		wslog.F("conn", c.handle.String()),
		wslog.F("uri", uri.String()))
	c.start()
	return c, nil
}
