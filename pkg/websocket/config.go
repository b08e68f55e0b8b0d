package websocket

import (
	"io"

	"github.com/mmaltais/wsengine/pkg/wslog"
)

// Config is the runtime configuration record assembled once per [Endpoint].
// Every connection the endpoint creates carries a copy with all zero-value
// fields resolved to their documented defaults.
type Config struct {
	// UserAgent is placed into the handshake's User-Agent (client) or
	// Server (server) header.
	UserAgent string

	// MaxMessageSize bounds a single reassembled message. Zero selects the
	// default of 100 MiB.
	MaxMessageSize int
	// MaxHeaderSize bounds the HTTP handshake's header section. Zero
	// selects the default of 16 KiB.
	MaxHeaderSize int

	// OpenHandshakeTimeoutMS bounds how long the opening handshake may take
	// before the connection fails. Zero selects the default of 5000.
	OpenHandshakeTimeoutMS int
	// CloseHandshakeTimeoutMS bounds how long a peer has to ack a close
	// frame before the connection is forced to Closed. Zero selects the
	// default of 5000.
	CloseHandshakeTimeoutMS int
	// PongTimeoutMS arms a timer after every Ping; if no Pong arrives in
	// time, OnPongTimeout fires. Zero disables the timer.
	PongTimeoutMS int

	// DropOnProtocolError skips the close handshake for protocol/payload/
	// size errors and shuts the transport down immediately instead.
	DropOnProtocolError bool
	// SilentClose suppresses the close code and reason on outgoing close
	// frames.
	SilentClose bool
	// AllowExtensions lets a negotiated [Extension] leave RSV1 set on
	// frames without that being treated as a protocol error.
	AllowExtensions bool
	// AllowHixie76 gates the legacy Hixie-76 (version 0) handshake.
	// Disabled by default.
	AllowHixie76 bool
	// ClientVersion selects the Sec-WebSocket-Version a Dial'd connection
	// opens with. "" or "13" (the default) selects the hybi processor;
	// "0" selects Hixie-76 and also requires AllowHixie76.
	ClientVersion string

	// Extensions lists negotiated permessage-deflate-style extensions, in
	// offer preference order. Empty unless AllowExtensions is set.
	Extensions []Extension

	// RNG supplies masking keys and handshake nonces. Defaults to
	// crypto/rand's Reader.
	RNG io.Reader
	// Log receives structured engine events. Defaults to a no-op sink.
	Log wslog.Sink

	// NewMessages produces the per-connection [MessageManager] every
	// Message is allocated through. Called once per connection. Defaults
	// to [NewAllocMessages]; swap in [NewPooledMessages] (or a custom
	// strategy) to reuse payload buffers.
	NewMessages func() MessageManager
}

const (
	defaultOpenHandshakeTimeoutMS  = 5000
	defaultCloseHandshakeTimeoutMS = 5000
)

// DefaultConfig returns a Config with every zero-value field resolved to its
// documented default.
func DefaultConfig() Config {
	return Config{
		UserAgent:               "wsengine",
		MaxMessageSize:          defaultMaxMessageSize,
		MaxHeaderSize:           0, // resolved by wshttp's own default.
		OpenHandshakeTimeoutMS:  defaultOpenHandshakeTimeoutMS,
		CloseHandshakeTimeoutMS: defaultCloseHandshakeTimeoutMS,
		RNG:                     defaultRNG,
		Log:                     wslog.NoOp(),
		NewMessages:             NewAllocMessages,
	}
}

// withDefaults returns a copy of c with every unset field resolved, so the
// rest of the engine never has to special-case a zero value.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.OpenHandshakeTimeoutMS <= 0 {
		c.OpenHandshakeTimeoutMS = d.OpenHandshakeTimeoutMS
	}
	if c.CloseHandshakeTimeoutMS <= 0 {
		c.CloseHandshakeTimeoutMS = d.CloseHandshakeTimeoutMS
	}
	if c.RNG == nil {
		c.RNG = d.RNG
	}
	if c.Log == nil {
		c.Log = d.Log
	}
	if c.NewMessages == nil {
		c.NewMessages = d.NewMessages
	}
	return c
}
