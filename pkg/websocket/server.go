package websocket

import (
	"crypto/tls"
	"errors"
	"net"

	"github.com/mmaltais/wsengine/pkg/wslog"
)

// Serve accepts connections from ln in a loop, wrapping each as a server-side
// [Connection] via [Endpoint.Accept] with the endpoint's default handlers.
// It returns once ln fails, which for a deliberately closed listener is a
// clean shutdown (net.ErrClosed is swallowed). Existing connections keep
// running; close them individually or drop the process.
//
// Pass a [tls.Listener] to serve wss: the accepted connections are detected
// and their transports marked secure.
func (ep *Endpoint) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			ep.cfg.Log.Error("accept failed", wslog.F("error", err.Error()))
			return err
		}
		_, secure := conn.(*tls.Conn)
		ep.Accept(NewTransport(conn, secure), Handlers{})
	}
}

// ListenAndServe listens on the given TCP address and calls [Endpoint.Serve]
// on the resulting listener. It only returns on listener failure.
func (ep *Endpoint) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ep.cfg.Log.Info("listening", wslog.F("addr", ln.Addr().String()))
	return ep.Serve(ln)
}
