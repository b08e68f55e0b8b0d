package websocket

import "github.com/mmaltais/wsengine/pkg/wshttp"

// Handlers bundles every callback an [Endpoint] or [Connection] may invoke:
// one record of optional callables shared by every connection the endpoint
// creates. Any field left nil is simply skipped.
//
// No handler ever holds a strong reference to the [Connection] it was
// called on; it only ever sees an opaque [Handle] and the fields the engine
// passes by value, and resolves the Handle through the endpoint for the
// duration of a call.
type Handlers struct {
	// OnOpen fires exactly once, right after the connection transitions to
	// Open.
	OnOpen func(h Handle)
	// OnMessage fires once per fully reassembled, non-control Message.
	OnMessage func(h Handle, msg Message)
	// OnClose fires once the connection reaches Closed, having been Open or
	// Closing beforehand. local/remote close codes and reasons are all
	// populated and stable for the duration of the call.
	OnClose func(h Handle, info CloseInfo)
	// OnFail fires once the connection reaches Closed while still
	// Connecting, i.e. the opening handshake never completed.
	OnFail func(h Handle, err *Error)
	// OnPing fires for every inbound ping control frame. Returning false
	// suppresses the automatic pong reply; a nil OnPing always replies.
	OnPing func(h Handle, payload []byte) bool
	// OnPong fires for every inbound pong control frame.
	OnPong func(h Handle, payload []byte)
	// OnPongTimeout fires if Config.PongTimeoutMS elapses after a Ping
	// without a matching Pong.
	OnPongTimeout func(h Handle)
	// OnInterrupt fires when Connection.Interrupt is called, dispatched
	// into the connection's own sequence like every other handler.
	OnInterrupt func(h Handle)
	// OnHTTP fires (server side only) when an inbound request's Connection
	// header carries no Upgrade token, i.e. it's a plain HTTP request. If unset, the server
	// replies 426 Upgrade Required.
	OnHTTP func(req *wshttp.Request) *wshttp.Response
	// OnValidate fires (server side only) after the handshake's required
	// headers are confirmed present but before the 101 response is sent,
	// letting the application reject a handshake (e.g. on Origin) by
	// returning an error, which the server maps to 403 Forbidden.
	OnValidate func(req *wshttp.Request) error
	// OnSubprotocol fires (server side only) with the subprotocols the
	// client offered, in offer order, and returns the one to select ("" for
	// none). The selection must come from the offered list; anything else
	// fails the handshake. A nil handler selects the first offer.
	OnSubprotocol func(offered []string) string
}

// CloseInfo captures a connection's close outcome. All fields are populated
// and stable for the duration of the OnClose call that receives it.
type CloseInfo struct {
	LocalCode    StatusCode
	LocalReason  string
	RemoteCode   StatusCode
	RemoteReason string
	ClosedByMe   bool
	FailedByMe   bool
	DroppedByMe  bool
}

// merge returns a copy of h with every nil field replaced by the
// corresponding field of defaults, the way [Endpoint] applies its
// configured default Handlers to a per-Dial/per-Accept override.
func (h Handlers) merge(defaults Handlers) Handlers {
	if h.OnOpen == nil {
		h.OnOpen = defaults.OnOpen
	}
	if h.OnMessage == nil {
		h.OnMessage = defaults.OnMessage
	}
	if h.OnClose == nil {
		h.OnClose = defaults.OnClose
	}
	if h.OnFail == nil {
		h.OnFail = defaults.OnFail
	}
	if h.OnPing == nil {
		h.OnPing = defaults.OnPing
	}
	if h.OnPong == nil {
		h.OnPong = defaults.OnPong
	}
	if h.OnPongTimeout == nil {
		h.OnPongTimeout = defaults.OnPongTimeout
	}
	if h.OnInterrupt == nil {
		h.OnInterrupt = defaults.OnInterrupt
	}
	if h.OnHTTP == nil {
		h.OnHTTP = defaults.OnHTTP
	}
	if h.OnValidate == nil {
		h.OnValidate = defaults.OnValidate
	}
	if h.OnSubprotocol == nil {
		h.OnSubprotocol = defaults.OnSubprotocol
	}
	return h
}
