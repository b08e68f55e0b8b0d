package websocket

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/mmaltais/wsengine/pkg/wshttp"
	"github.com/mmaltais/wsengine/pkg/wslog"
	"github.com/mmaltais/wsengine/pkg/wsuri"
)

// Connection is the top-level state-holder for one WebSocket connection: it
// drives the [Transport] through the opening handshake, the open-phase read
// and write loops, the close handshake, and termination, moving
// monotonically through Connecting, Open, Closing, and Closed.
//
// Handler callbacks for a given Connection never run concurrently with each
// other: dispatch serializes them under dispatchMu, one dedicated read loop
// feeds the processor, and one dedicated writer goroutine drains the write
// queue.
type Connection struct {
	ep        *Endpoint
	handle    Handle
	isServer  bool
	transport Transport
	cfg       Config
	handlers  Handlers

	uri       wsuri.URI
	req       *wshttp.Request
	res       *wshttp.Response
	processor Processor
	mgr       MessageManager

	stateMu sync.Mutex
	istate  IState

	dispatchMu sync.Mutex

	localCode    StatusCode
	localReason  string
	remoteCode   StatusCode
	remoteReason string
	closedByMe   bool
	failedByMe   bool
	droppedByMe  bool

	wq *writeQueue

	openTimer  *time.Timer
	closeTimer *time.Timer
	pongTimer  *time.Timer

	subprotocols []string // client side only: offered in the opening request

	terminateOnce sync.Once
	terminated    chan struct{}
}

// newConnection builds a Connection owned by ep, not yet started.
func newConnection(ep *Endpoint, transport Transport, isServer bool, cfg Config, handlers Handlers) *Connection {
	return &Connection{
		ep:         ep,
		handle:     newHandle(),
		isServer:   isServer,
		transport:  transport,
		cfg:        cfg,
		handlers:   handlers,
		mgr:        cfg.NewMessages(),
		istate:     iStateUserInit,
		wq:         newWriteQueue(),
		terminated: make(chan struct{}),
		localCode:  StatusNotReceived,
		remoteCode: StatusNotReceived,
	}
}

// Handle returns the connection's opaque identity token.
func (c *Connection) Handle() Handle { return c.handle }

// State returns the connection's external lifecycle state.
func (c *Connection) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.istate.external()
}

// IsServer reports whether this connection was accepted (server side) or
// dialed (client side).
func (c *Connection) IsServer() bool { return c.isServer }

// RemoteAddr returns the transport's peer address.
func (c *Connection) RemoteAddr() string { return c.transport.RemoteAddr() }

// BufferedAmount returns the cumulative payload byte count of messages
// enqueued for sending but not yet handed to the transport.
func (c *Connection) BufferedAmount() int { return c.wq.bufferedAmount() }

// Subprotocol returns the subprotocol negotiated during the handshake, or
// "" if none was requested/selected.
func (c *Connection) Subprotocol() string {
	if c.res == nil {
		return ""
	}
	return c.res.Header.Get("Sec-WebSocket-Protocol")
}

func (c *Connection) dispatch(fn func()) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	fn()
}

// start kicks off the connection's lifecycle: the open-handshake timer is
// armed, then the server or client handshake runs on its own goroutine,
// transitioning to Open and starting the read/write loops on success, or
// terminating with a handshake error on failure.
func (c *Connection) start() {
	c.stateMu.Lock()
	_ = c.transition(iStateTransportInit, iStateUserInit)
	c.stateMu.Unlock()

	c.armOpenHandshakeTimer()

	if c.isServer {
		go c.runServerHandshake()
	} else {
		go c.runClientHandshake(c.uri, c.subprotocols)
	}
}

func (c *Connection) armOpenHandshakeTimer() {
	d := time.Duration(c.cfg.OpenHandshakeTimeoutMS) * time.Millisecond
	c.openTimer = time.AfterFunc(d, func() {
		c.dispatch(func() {
			if c.State() == StateConnecting {
				c.terminate(errTimeout("opening handshake timed out"))
			}
		})
	})
}

func (c *Connection) stopTimers() {
	if c.openTimer != nil {
		c.openTimer.Stop()
	}
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	if c.pongTimer != nil {
		c.pongTimer.Stop()
	}
}

// --- Server handshake path ---

func (c *Connection) runServerHandshake() {
	c.stateMu.Lock()
	_ = c.transition(iStateServerReadRequest, iStateTransportInit)
	c.stateMu.Unlock()

	req := wshttp.NewRequest(c.cfg.MaxHeaderSize)
	leftover, err := readHandshake(c.transport, req)
	if err != nil {
		switch {
		case errors.Is(err, wshttp.ErrHeaderTooLarge):
			c.failHandshake(errHeaderTooLarge(err.Error()), errorResponse(400, "Bad Request"))
		case errors.Is(err, wshttp.ErrBadRequest), errors.Is(err, wshttp.ErrInvalidMethod):
			c.failHandshake(errBadRequest(err.Error()), errorResponse(400, "Bad Request"))
		default:
			c.terminate(errPassThrough(err))
		}
		return
	}
	c.req = req

	c.stateMu.Lock()
	_ = c.transition(iStateServerProcessRequest, iStateServerReadRequest)
	c.stateMu.Unlock()

	if !req.Header.Contains("Connection", "Upgrade") {
		c.handlePlainHTTP(req)
		return
	}

	proc, perr := SelectProcessor(req, true, c.cfg, c.mgr)
	if perr != nil {
		c.failHandshake(perr, badVersionResponse())
		return
	}
	c.processor = proc

	// Hixie-76's 8-byte key3 challenge follows the request's blank line, so
	// the HTTP parser leaves it in the trailing bytes; splice it back into
	// the request body before validation.
	if _, hixie := proc.(*hixieProcessor); hixie && len(req.Body) == 0 {
		var rerr error
		leftover, rerr = ensureBytes(c.transport, leftover, 8)
		if rerr != nil {
			c.terminate(errPassThrough(rerr))
			return
		}
		req.Body = leftover[:8]
		leftover = leftover[8:]
	}

	if verr := proc.ValidateHandshake(req); verr != nil {
		c.failHandshake(verr, errorResponse(400, verr.Message))
		return
	}

	if c.handlers.OnValidate != nil {
		if err := c.handlers.OnValidate(req); err != nil {
			c.failHandshake(errServerHandshakeMismatch(err.Error()), errorResponse(403, "Forbidden"))
			return
		}
	}

	selected, serr := c.selectSubprotocol(req)
	if serr != nil {
		c.failHandshake(serr, errorResponse(400, "Bad Request"))
		return
	}
	res, herr := proc.ProcessHandshake(req, selected)
	if herr != nil {
		c.failHandshake(herr, errorResponse(500, herr.Message))
		return
	}
	res.Header.Replace("Server", c.cfg.UserAgent)

	// Extension negotiation is suppressed entirely unless allowed; the first
	// configured extension to accept the client's offer wins, and a
	// successful negotiation relaxes the frame parser's RSV1 check.
	if accept := c.negotiateExtensions(req.Header.Get("Sec-WebSocket-Extensions")); accept != "" {
		res.Header.Replace("Sec-WebSocket-Extensions", accept)
		if hybi, ok := proc.(*hybiProcessor); ok {
			hybi.extensionsNegotiated = true
		}
	}
	c.res = res

	c.stateMu.Lock()
	_ = c.transition(iStateServerWriteResponse, iStateServerProcessRequest)
	c.stateMu.Unlock()

	if _, werr := c.transport.Write(res.Raw()); werr != nil {
		c.terminate(errPassThrough(werr))
		return
	}

	c.cfg.Log.Debug("handshake accepted",
		wslog.F("conn", c.handle.String()),
		wslog.F("remote", c.transport.RemoteAddr()),
		wslog.F("subprotocol", selected))

	c.openConnection(leftover)
}

// selectSubprotocol resolves the server's Sec-WebSocket-Protocol selection:
// the OnSubprotocol handler picks from the client's offers, and defaults to
// the first offer when no handler is set. A selection outside the offered
// list fails the handshake rather than lying to the client.
func (c *Connection) selectSubprotocol(req *wshttp.Request) (string, *Error) {
	offered := offeredSubprotocols(req)
	if len(offered) == 0 {
		return "", nil
	}
	if c.handlers.OnSubprotocol == nil {
		return offered[0], nil
	}

	sel := c.handlers.OnSubprotocol(offered)
	if sel == "" {
		return "", nil
	}
	for _, o := range offered {
		if o == sel {
			return sel, nil
		}
	}
	return "", errInvalidSubprotocol("selected subprotocol " + sel + " was not offered by the client")
}

// offeredSubprotocols extracts the client's Sec-WebSocket-Protocol offers,
// in offer order.
func offeredSubprotocols(req *wshttp.Request) []string {
	raw := req.Header.Get("Sec-WebSocket-Protocol")
	if raw == "" {
		return nil
	}
	var out []string
	for _, set := range wshttp.ParseParameterLists(raw) {
		if len(set) > 0 {
			out = append(out, set[0].Name)
		}
	}
	return out
}

func badVersionResponse() *wshttp.Response {
	res := errorResponse(400, "Bad Request")
	res.Header.Replace("Sec-WebSocket-Version", "0, 7, 8, 13")
	return res
}

func errorResponse(code int, msg string) *wshttp.Response {
	res := wshttp.NewResponse(0)
	res.Version = "HTTP/1.1"
	res.StatusCode = code
	res.StatusMsg = msg
	res.Header.Replace("Content-Length", "0")
	return res
}

func (c *Connection) failHandshake(err *Error, res *wshttp.Response) {
	_, _ = c.transport.Write(res.Raw())
	c.terminate(err)
}

// handlePlainHTTP answers a request whose Connection header carries no
// Upgrade token: it either goes
// to the application's OnHTTP handler or gets a 426 Upgrade Required. The
// TCP connection is terminated cleanly afterwards either way.
func (c *Connection) handlePlainHTTP(req *wshttp.Request) {
	var res *wshttp.Response
	if c.handlers.OnHTTP != nil {
		res = c.handlers.OnHTTP(req)
	} else {
		res = errorResponse(426, "Upgrade Required")
		res.Header.Replace("Upgrade", "websocket")
	}
	_, _ = c.transport.Write(res.Raw())
	c.terminate(errUpgradeRequired("plain HTTP request handled, connection closed"))
}

// --- Client handshake path (symmetric to the server path) ---

func (c *Connection) runClientHandshake(uri wsuri.URI, subprotocols []string) {
	c.uri = uri

	var proc Processor
	if c.cfg.AllowHixie76 && c.cfg.ClientVersion == "0" {
		proc = newHixieProcessor(false, c.cfg.RNG, c.mgr)
	} else {
		proc = newHybiProcessor(false, c.cfg.RNG, c.cfg.MaxMessageSize, c.mgr)
	}
	c.processor = proc

	req, err := proc.ClientHandshakeRequest(uri, subprotocols)
	if err != nil {
		c.terminate(errPassThrough(err))
		return
	}
	req.Header.Replace("User-Agent", c.cfg.UserAgent)
	if c.cfg.AllowExtensions && len(c.cfg.Extensions) > 0 {
		offers := make([]string, len(c.cfg.Extensions))
		for i, ext := range c.cfg.Extensions {
			offers[i] = ext.Name()
		}
		req.Header.Replace("Sec-WebSocket-Extensions", strings.Join(offers, ", "))
	}
	c.req = req

	c.stateMu.Lock()
	_ = c.transition(iStateClientWriteRequest, iStateTransportInit)
	c.stateMu.Unlock()

	if _, werr := c.transport.Write(req.Raw()); werr != nil {
		c.terminate(errPassThrough(werr))
		return
	}

	c.stateMu.Lock()
	_ = c.transition(iStateClientReadResponse, iStateClientWriteRequest)
	c.stateMu.Unlock()

	res := wshttp.NewResponse(c.cfg.MaxHeaderSize)
	leftover, rerr := readHandshake(c.transport, res)
	if rerr != nil {
		if errors.Is(rerr, wshttp.ErrHeaderTooLarge) {
			c.terminate(errHeaderTooLarge(rerr.Error()))
		} else {
			c.terminate(errPassThrough(rerr))
		}
		return
	}
	c.res = res

	// Hixie-76's 16-byte challenge response follows the 101 response's blank
	// line; splice it back into the response body before validation.
	if _, hixie := proc.(*hixieProcessor); hixie && len(res.Body) == 0 {
		var berr error
		leftover, berr = ensureBytes(c.transport, leftover, 16)
		if berr != nil {
			c.terminate(errPassThrough(berr))
			return
		}
		res.Body = leftover[:16]
		leftover = leftover[16:]
	}

	if verr := proc.ValidateServerHandshakeResponse(req, res); verr != nil {
		c.terminate(verr)
		return
	}

	// The server accepted one of our extension offers.
	if c.cfg.AllowExtensions && len(c.cfg.Extensions) > 0 &&
		res.Header.Get("Sec-WebSocket-Extensions") != "" {
		if hybi, ok := proc.(*hybiProcessor); ok {
			hybi.extensionsNegotiated = true
		}
	}

	c.openConnection(leftover)
}

// negotiateExtensions runs the configured extensions against a client's
// Sec-WebSocket-Extensions offer (server side), returning the accepted
// parameter string or "" when nothing was offered, nothing matched, or
// extensions are disallowed.
func (c *Connection) negotiateExtensions(offer string) string {
	if !c.cfg.AllowExtensions || offer == "" {
		return ""
	}
	for _, ext := range c.cfg.Extensions {
		if accept, ok := ext.Negotiate(offer); ok {
			return accept
		}
	}
	return ""
}

// ensureBytes grows buf with further transport reads until it holds at least
// n bytes.
func ensureBytes(t Transport, buf []byte, n int) ([]byte, error) {
	for len(buf) < n {
		chunk := make([]byte, 4096)
		read, err := t.Read(chunk)
		if read > 0 {
			buf = append(buf, chunk[:read]...)
		}
		if err != nil && len(buf) < n {
			return buf, err
		}
	}
	return buf, nil
}

// openConnection finalizes the handshake on either side: transitions to
// Open, fires OnOpen exactly once, and starts the read and write loops.
// leftover is any handshake-trailing bytes that arrived coalesced with the
// first frame(s); they are fed to the frame reader first.
func (c *Connection) openConnection(leftover []byte) {
	c.openTimer.Stop()

	c.stateMu.Lock()
	_ = c.transition(iStateProcessConnection, iStateServerWriteResponse, iStateClientReadResponse)
	c.stateMu.Unlock()

	go c.writeLoop()
	go c.readLoop(leftover)

	c.cfg.Log.Info("connection open",
		wslog.F("conn", c.handle.String()),
		wslog.F("remote", c.transport.RemoteAddr()),
		wslog.F("server", c.isServer))

	c.dispatch(func() {
		if c.handlers.OnOpen != nil {
			c.handlers.OnOpen(c.handle)
		}
	})
}

// readHandshake feeds transport bytes into an incremental HTTP parser until
// it reports Ready, returning any bytes read past the parsed message so the
// caller can hand them to the frame reader instead of discarding them.
func readHandshake(t Transport, p interface {
	Consume([]byte) (int, error)
	Ready() bool
},
) ([]byte, error) {
	buf := make([]byte, 4096)
	for !p.Ready() {
		n, err := t.Read(buf)
		if n > 0 {
			consumed, perr := p.Consume(buf[:n])
			if perr != nil {
				return nil, perr
			}
			if p.Ready() {
				return append([]byte(nil), buf[consumed:n]...), nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// --- Open phase: read loop ---

func (c *Connection) readLoop(leftover []byte) {
	if len(leftover) > 0 {
		if !c.feed(leftover) {
			return
		}
	}

	buf := make([]byte, 4096)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			if !c.feed(buf[:n]) {
				return
			}
		}
		if err != nil {
			c.dispatch(func() {
				if errors.Is(err, io.EOF) {
					c.handleTransportEOF()
				} else {
					c.terminate(errPassThrough(err))
				}
			})
			return
		}
	}
}

// feed runs one Consume pass and dispatches every resulting Message or
// error. It returns false if the connection has terminated and the read
// loop should stop.
func (c *Connection) feed(data []byte) bool {
	keepGoing := true
	c.dispatch(func() {
		for len(data) > 0 {
			n, err := c.processor.Consume(data)
			data = data[n:]
			if err != nil {
				c.onProtocolError(err)
				keepGoing = false
				return
			}
			for c.processor.Ready() {
				msg := c.processor.GetMessage()
				if !c.handleIncomingMessage(msg) {
					keepGoing = false
					return
				}
			}
			if n == 0 {
				break
			}
		}
	})
	return keepGoing
}

// handleIncomingMessage dispatches one reassembled Message, intercepting
// control frames: pings are answered (unless the handler declines), pongs
// cancel the pong-timeout timer, and close frames drive the close
// handshake. Returns false if handling this message moved the connection to
// Closed.
func (c *Connection) handleIncomingMessage(msg Message) bool {
	switch msg.Opcode {
	case OpcodePing:
		reply := true
		if c.handlers.OnPing != nil {
			reply = c.handlers.OnPing(c.handle, msg.Payload)
		}
		if reply {
			c.enqueue(c.processor.PreparePongFrame(msg.Payload))
		}
		c.mgr.Recycle(msg)
		return true

	case OpcodePong:
		if c.pongTimer != nil {
			c.pongTimer.Stop()
		}
		if c.handlers.OnPong != nil {
			c.handlers.OnPong(c.handle, msg.Payload)
		}
		c.mgr.Recycle(msg)
		return true

	case OpcodeClose:
		ok := c.handleIncomingClose(msg.Payload)
		c.mgr.Recycle(msg)
		return ok

	default:
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(c.handle, Message{Opcode: msg.Opcode, Payload: msg.Payload})
		}
		c.mgr.Recycle(msg)
		return true
	}
}

// handleIncomingClose echoes (or silently acks) the peer's close and
// transitions to Closing — or, if we already initiated the close handshake
// ourselves, treats the frame as the peer's ack and finishes it.
func (c *Connection) handleIncomingClose(payload []byte) bool {
	code, reason, perr := ParseClosePayload(payload)
	c.remoteCode = code
	c.remoteReason = reason
	if perr != nil {
		c.onProtocolError(perr)
		return false
	}

	alreadyClosing := c.State() == StateClosing
	c.stateMu.Lock()
	_ = c.transition(iStateClosing, iStateProcessConnection, iStateClosing)
	c.stateMu.Unlock()

	if !alreadyClosing {
		ackCode, ackReason := code, ""
		if c.cfg.SilentClose {
			ackCode, ackReason = StatusNotReceived, ""
		}
		c.localCode = ackCode
		c.localReason = ackReason
		c.enqueue(c.processor.PrepareCloseFrame(ackCode, ackReason))
		c.armCloseHandshakeTimer()
		return true
	}

	// We sent the close frame first and this is the peer's ack: done.
	c.terminate(nil)
	return false
}

// onProtocolError handles protocol/payload/size errors in the open phase:
// either drop the transport immediately (Config.DropOnProtocolError) or
// send a close frame with the mapped status code and move to Closing.
func (c *Connection) onProtocolError(err *Error) {
	c.cfg.Log.Warn("protocol error",
		wslog.F("conn", c.handle.String()),
		wslog.F("kind", err.Kind.String()),
		wslog.F("error", err.Error()))

	if c.cfg.DropOnProtocolError {
		c.droppedByMe = true
		c.terminate(err)
		return
	}

	code := ErrorToCloseCode(err)
	c.localCode = code
	c.localReason = err.Message
	c.closedByMe = true

	c.stateMu.Lock()
	_ = c.transition(iStateClosing, iStateProcessConnection)
	c.stateMu.Unlock()

	c.enqueue(c.processor.PrepareCloseFrame(code, err.Message))
	c.armCloseHandshakeTimer()
}

func (c *Connection) handleTransportEOF() {
	if c.State() == StateClosing {
		c.terminate(nil)
		return
	}
	c.remoteCode = StatusClosedAbnormally
	c.droppedByMe = false
	c.terminate(errEOF("transport closed without a close handshake"))
}

func (c *Connection) armCloseHandshakeTimer() {
	d := time.Duration(c.cfg.CloseHandshakeTimeoutMS) * time.Millisecond
	c.closeTimer = time.AfterFunc(d, func() {
		c.dispatch(func() {
			if c.State() == StateClosing {
				c.terminate(errTimeout("close handshake timed out"))
			}
		})
	})
}

// --- Outgoing: Send/Ping/Close ---

// enqueue pushes a prepared Message onto the write queue. Called both by
// user-facing Send/Ping/Close and internally for automatic pong/close-ack
// replies.
func (c *Connection) enqueue(msg Message) {
	// Hixie-76 has no control frames: its Prepare{Ping,Pong}Frame return a
	// zero Message meaning "nothing to send". Its PrepareCloseFrame also has
	// no bytes, but is flagged Terminal and must reach the write loop so the
	// transport still gets shut down.
	if !msg.Prepared && !msg.Terminal && msg.Header == nil && msg.Payload == nil {
		return
	}
	c.wq.push(msg)
}

// SendText sends a UTF-8 text message. Only legal while Open.
func (c *Connection) SendText(data []byte) *Error {
	return c.send(Message{Opcode: OpcodeText, Payload: data})
}

// SendBinary sends a binary message. Only legal while Open.
func (c *Connection) SendBinary(data []byte) *Error {
	return c.send(Message{Opcode: OpcodeBinary, Payload: data})
}

func (c *Connection) send(in Message) *Error {
	if c.State() != StateOpen {
		return errInvalidState("Send is only valid while the connection is Open")
	}
	out, err := c.processor.PrepareDataFrame(in)
	if err != nil {
		return err
	}
	c.enqueue(out)
	return nil
}

// Ping sends a ping control frame and, if Config.PongTimeoutMS is set, arms
// a timer that fires OnPongTimeout if no matching Pong arrives in time.
func (c *Connection) Ping(payload []byte) *Error {
	if c.State() != StateOpen {
		return errInvalidState("Ping is only valid while the connection is Open")
	}
	c.enqueue(c.processor.PreparePingFrame(payload))
	if c.cfg.PongTimeoutMS > 0 {
		d := time.Duration(c.cfg.PongTimeoutMS) * time.Millisecond
		c.pongTimer = time.AfterFunc(d, func() {
			c.dispatch(func() {
				if c.handlers.OnPongTimeout != nil {
					c.handlers.OnPongTimeout(c.handle)
				}
			})
		})
	}
	return nil
}

// Close initiates the close handshake: transitions to Closing, arms the
// close-handshake timer, and enqueues the close frame (flagged Terminal for
// codes from which no further exchange is meaningful).
func (c *Connection) Close(code StatusCode, reason string) *Error {
	c.stateMu.Lock()
	terr := c.transition(iStateClosing, iStateProcessConnection)
	c.stateMu.Unlock()
	if terr != nil {
		return terr
	}

	if c.cfg.SilentClose {
		code, reason = StatusNotReceived, ""
	}
	c.localCode = code
	c.localReason = reason
	c.closedByMe = true

	c.enqueue(c.processor.PrepareCloseFrame(code, reason))
	c.armCloseHandshakeTimer()
	return nil
}

// Interrupt posts an event handled by OnInterrupt, serialized the same way
// as every other handler; it does not cancel any in-flight I/O.
func (c *Connection) Interrupt() {
	c.dispatch(func() {
		if c.handlers.OnInterrupt != nil {
			c.handlers.OnInterrupt(c.handle)
		}
	})
}

// --- Termination ---

// terminate shuts the transport down, cancels all timers, and fires
// exactly one of OnFail (still Connecting) or OnClose (Open/Closing),
// exactly once, regardless of which goroutine first observes the
// terminating condition.
func (c *Connection) terminate(ec *Error) {
	c.terminateOnce.Do(func() {
		wasConnecting := c.State() == StateConnecting
		if wasConnecting {
			c.failedByMe = ec != nil
		}
		if ec != nil && c.remoteCode == StatusNotReceived && !wasConnecting {
			c.remoteCode = StatusClosedAbnormally
		}

		c.stateMu.Lock()
		c.istate = iStateClosed
		c.stateMu.Unlock()

		c.stopTimers()
		c.wq.stop()
		_ = c.transport.Close()

		if ec != nil {
			c.cfg.Log.Debug("connection terminated",
				wslog.F("conn", c.handle.String()),
				wslog.F("error", ec.Error()))
		} else {
			c.cfg.Log.Debug("connection closed", wslog.F("conn", c.handle.String()))
		}

		// The final handler dispatch runs on its own goroutine: terminate is
		// routinely reached from inside a dispatched handler (a close frame
		// arriving mid-feed, a protocol error with drop-on-error set), and
		// dispatchMu is not reentrant. The goroutine still serializes with
		// whatever handler is currently running, so no two handlers for this
		// connection ever overlap.
		go func() {
			c.dispatch(func() {
				if wasConnecting {
					if c.handlers.OnFail != nil {
						c.handlers.OnFail(c.handle, ec)
					}
					return
				}
				if c.handlers.OnClose != nil {
					c.handlers.OnClose(c.handle, c.closeInfo())
				}
			})
			if c.ep != nil {
				c.ep.remove(c.handle)
			}
			close(c.terminated)
		}()
	})
}

func (c *Connection) closeInfo() CloseInfo {
	return CloseInfo{
		LocalCode:    c.localCode,
		LocalReason:  c.localReason,
		RemoteCode:   c.remoteCode,
		RemoteReason: c.remoteReason,
		ClosedByMe:   c.closedByMe,
		FailedByMe:   c.failedByMe,
		DroppedByMe:  c.droppedByMe,
	}
}

// Done returns a channel closed once the connection reaches Closed, for
// callers that want to block until teardown completes (e.g. tests).
func (c *Connection) Done() <-chan struct{} { return c.terminated }

// --- Write loop ---

// writeLoop is the connection's single writer goroutine: it is the sole
// caller of Transport.Write, so at most one write is ever in flight, and it
// drains the queue in FIFO batches issued as one gathered write each,
// shutting the transport down once a Terminal message's batch finishes
// writing.
func (c *Connection) writeLoop() {
	for range c.wq.wake {
		for {
			batch := c.wq.drain()
			if len(batch) == 0 {
				break
			}
			terminal := false
			var bufs net.Buffers
			for _, m := range batch {
				if len(m.Header) > 0 {
					bufs = append(bufs, m.Header)
				}
				if len(m.Payload) > 0 {
					bufs = append(bufs, m.Payload)
				}
				if m.Terminal {
					terminal = true
				}
			}
			if len(bufs) > 0 {
				if _, err := bufs.WriteTo(c.transport); err != nil {
					c.dispatch(func() { c.terminate(errPassThrough(err)) })
					return
				}
			}
			for _, m := range batch {
				c.mgr.Recycle(m)
			}
			if terminal {
				c.dispatch(func() { c.terminate(nil) })
				return
			}
		}
	}
}
