package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/mmaltais/wsengine/pkg/wsuri"
)

// DialOpt customizes a single [Endpoint.Dial] call.
type DialOpt func(*dialSettings)

type dialSettings struct {
	subprotocols []string
	handlers     Handlers
	tlsConfig    *tls.Config
}

// WithSubprotocols lets callers of [Endpoint.Dial] offer subprotocols in the
// opening handshake's Sec-WebSocket-Protocol header. The server's selection,
// if any, is available via [Connection.Subprotocol] once open.
func WithSubprotocols(names ...string) DialOpt {
	return func(s *dialSettings) {
		s.subprotocols = names
	}
}

// WithHandlers lets callers of [Endpoint.Dial] override individual handler
// slots for this one connection; slots left nil fall back to the endpoint
// defaults.
func WithHandlers(h Handlers) DialOpt {
	return func(s *dialSettings) {
		s.handlers = h
	}
}

// WithTLSConfig lets callers of [Endpoint.Dial] supply a custom TLS
// configuration for wss:// URIs, instead of the default (system roots,
// ServerName derived from the URI host).
func WithTLSConfig(cfg *tls.Config) DialOpt {
	return func(s *dialSettings) {
		s.tlsConfig = cfg
	}
}

// Dial establishes a TCP (and, for wss/https, TLS) connection to rawURI's
// authority, then runs the client side of the opening handshake over it.
// The returned Connection is Connecting; its OnOpen handler fires once the
// handshake completes, OnFail if it does not. ctx bounds connection
// establishment only, not the connection's lifetime.
func (ep *Endpoint) Dial(ctx context.Context, rawURI string, opts ...DialOpt) (*Connection, error) {
	var ds dialSettings
	for _, opt := range opts {
		opt(&ds)
	}

	uri, err := wsuri.Parse(rawURI)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", uri.Authority())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", uri.Authority(), err)
	}

	if uri.IsSecure() {
		cfg := ds.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{MinVersion: tls.VersionTLS12}
		} else {
			cfg = cfg.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = uri.Host()
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("TLS handshake with %s failed: %w", uri.Authority(), err)
		}
		return ep.Connect(NewTransport(tlsConn, true), rawURI, ds.subprotocols, ds.handlers)
	}

	return ep.Connect(NewTransport(conn, false), rawURI, ds.subprotocols, ds.handlers)
}
