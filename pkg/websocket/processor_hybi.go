package websocket

import (
	"bytes"
	"io"
	"strings"

	"github.com/mmaltais/wsengine/pkg/wshttp"
	"github.com/mmaltais/wsengine/pkg/wsutf8"
	"github.com/mmaltais/wsengine/pkg/wsuri"
)

// hybiProcessor implements [Processor] for the "hybi" family of handshakes
// and frame formats: drafts 7 and 8 plus the final RFC 6455 (version 13).
// The three versions differ only in handshake minutiae this engine doesn't
// distinguish (all three use the same Sec-WebSocket-Key/Accept derivation
// and the same frame format), so one implementation serves all of them.
type hybiProcessor struct {
	isServer       bool
	rng            io.Reader
	maxMessageSize int
	mgr            MessageManager

	// extensionsNegotiated relaxes the RSV1 frame check once the handshake
	// has actually negotiated an extension.
	extensionsNegotiated bool

	// Handshake state (client side).
	nonce string

	// Frame reassembly state.
	buf      []byte
	msgType  Opcode // Continuation when no message is in progress
	fragBuf  []byte
	fragSize int
	utf8     wsutf8.Validator
	queue    []Message
}

func newHybiProcessor(isServer bool, rng io.Reader, maxMessageSize int, mgr MessageManager) *hybiProcessor {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	if mgr == nil {
		mgr = NewAllocMessages()
	}
	return &hybiProcessor{
		isServer:       isServer,
		rng:            rng,
		maxMessageSize: maxMessageSize,
		mgr:            mgr,
		msgType:        OpcodeContinuation,
	}
}

// ValidateHandshake checks an inbound handshake request for the fields RFC
// 6455 §4.2.1 requires of a client opening handshake.
func (p *hybiProcessor) ValidateHandshake(req *wshttp.Request) *Error {
	if req.Method != "GET" {
		return errInvalidHTTPMethod("handshake request method must be GET, got " + req.Method)
	}
	if !httpVersionAtLeast11(req.Version) {
		return errInvalidHTTPVersion("handshake requires HTTP/1.1 or newer, got " + req.Version)
	}
	if req.Header.Get("Host") == "" {
		return errMissingRequiredHeader("missing Host header")
	}
	if !req.Header.Contains("Connection", "Upgrade") {
		return errMissingRequiredHeader("Connection header must contain \"Upgrade\"")
	}
	if !strings.EqualFold(strings.TrimSpace(req.Header.Get("Upgrade")), "websocket") {
		return errMissingRequiredHeader("Upgrade header must be \"websocket\"")
	}
	if req.Header.Get("Sec-WebSocket-Key") == "" {
		return errMissingRequiredHeader("missing Sec-WebSocket-Key header")
	}
	return nil
}

// ProcessHandshake builds the 101 Switching Protocols response for a
// validated request, per RFC 6455 §4.2.2.
func (p *hybiProcessor) ProcessHandshake(req *wshttp.Request, selectedSubprotocol string) (*wshttp.Response, *Error) {
	key := req.Header.Get("Sec-WebSocket-Key")

	res := wshttp.NewResponse(0)
	res.Version = "HTTP/1.1"
	res.StatusCode = 101
	res.StatusMsg = wshttp.StatusText(101)
	res.Header.Replace("Upgrade", "websocket")
	res.Header.Replace("Connection", "Upgrade")
	res.Header.Replace("Sec-WebSocket-Accept", acceptKey(key))
	if selectedSubprotocol != "" {
		res.Header.Replace("Sec-WebSocket-Protocol", selectedSubprotocol)
	}
	return res, nil
}

// ClientHandshakeRequest builds the opening handshake request (client side),
// per https://datatracker.ietf.org/doc/html/rfc6455#section-4.1.
func (p *hybiProcessor) ClientHandshakeRequest(uri wsuri.URI, requestedSubprotocols []string) (*wshttp.Request, error) {
	nonce, err := generateNonce(p.rng)
	if err != nil {
		return nil, err
	}
	p.nonce = nonce

	req := wshttp.NewRequest(0)
	req.Method = "GET"
	req.Path = uri.Resource()
	req.Version = "HTTP/1.1"
	req.Header.Replace("Host", uri.Authority())
	req.Header.Replace("Upgrade", "websocket")
	req.Header.Replace("Connection", "Upgrade")
	req.Header.Replace("Sec-WebSocket-Key", nonce)
	req.Header.Replace("Sec-WebSocket-Version", "13")
	if len(requestedSubprotocols) > 0 {
		req.Header.Replace("Sec-WebSocket-Protocol", strings.Join(requestedSubprotocols, ", "))
	}
	return req, nil
}

// ValidateServerHandshakeResponse checks the server's reply against the
// request that was sent, per RFC 6455 §4.2.2.
func (p *hybiProcessor) ValidateServerHandshakeResponse(req *wshttp.Request, res *wshttp.Response) *Error {
	if res.StatusCode != 101 {
		return errServerHandshakeMismatch("expected status 101, got " + res.StatusMsg)
	}
	want := acceptKey(p.nonce)
	got := res.Header.Get("Sec-WebSocket-Accept")
	if got != want {
		return errServerHandshakeMismatch("Sec-WebSocket-Accept mismatch")
	}

	if proto := res.Header.Get("Sec-WebSocket-Protocol"); proto != "" {
		requested := req.Header.Get("Sec-WebSocket-Protocol")
		if !containsToken(requested, proto) {
			return errUnrequestedSubprotocol("server selected subprotocol " + proto + " that was never requested")
		}
	}
	return nil
}

func containsToken(commaList, token string) bool {
	for _, part := range strings.Split(commaList, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// peekFrameHeaderSize returns the number of bytes readFrameHeader will
// consume from buf, and whether that many bytes are actually present yet.
// It never returns an error: insufficient data is simply "not ready".
func peekFrameHeaderSize(buf []byte) (int, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	size := 2
	length := buf[1] & bits1to7
	switch length {
	case len16bits:
		size += 2
	case len64bits:
		size += 8
	}
	if buf[1]&bit0 != 0 {
		size += 4
	}
	return size, len(buf) >= size
}

// Consume feeds newly-read transport bytes into the frame parser. All of
// data is absorbed into the processor's internal buffer; as many complete
// frames as are available get parsed out of it immediately. On a fatal
// protocol violation it returns the *Error the connection should close
// with; the internal buffer is then trimmed past the offending frame's
// header, since the connection is about to terminate.
func (p *hybiProcessor) Consume(data []byte) (int, *Error) {
	p.buf = append(p.buf, data...)

	pos := 0
	for {
		size, ok := peekFrameHeaderSize(p.buf[pos:])
		if !ok {
			break
		}
		h, err := readFrameHeader(bytes.NewReader(p.buf[pos : pos+size]))
		if err != nil {
			break // unreachable: size already guarantees enough bytes
		}
		if cerr := checkFrameHeader(h, p.msgType, p.isServer, p.extensionsNegotiated, p.maxMessageSize); cerr != nil {
			p.buf = p.buf[pos+size:]
			return len(data), cerr
		}

		end := pos + size + int(h.payloadLength) //nolint:gosec // bounded by maxMessageSize above.
		if len(p.buf) < end {
			break
		}
		payload := p.buf[pos+size : end]
		if h.mask {
			maskPayload(payload, h.maskKey)
		}
		if cerr := p.handleFrame(h, payload); cerr != nil {
			p.buf = p.buf[end:]
			return len(data), cerr
		}
		pos = end
	}

	p.buf = p.buf[pos:]
	return len(data), nil
}

// handleFrame dispatches one fully-read, already-unmasked frame: control
// frames are queued immediately (they may legally interleave with an
// in-progress fragmented data message); data frames accumulate into the
// current message until FIN, validating text payloads incrementally via
// wsutf8 so invalid UTF-8 is caught at the fragment that introduces it.
func (p *hybiProcessor) handleFrame(h frameHeader, payload []byte) *Error {
	if h.opcode.IsControl() {
		m := p.mgr.NewMessage(h.opcode, len(payload))
		m.Payload = append(m.Payload, payload...)
		p.queue = append(p.queue, m)
		return nil
	}

	if h.opcode != OpcodeContinuation {
		p.msgType = h.opcode
		p.fragBuf = p.fragBuf[:0]
		p.fragSize = 0
		if p.msgType == OpcodeText {
			p.utf8.Reset()
		}
	}

	p.fragSize += len(payload)
	if p.fragSize > p.maxMessageSize {
		return errMessageTooBig("reassembled message exceeds maximum size")
	}
	if p.msgType == OpcodeText && !p.utf8.Consume(payload) {
		return errInvalidUTF8("text message payload is not valid UTF-8")
	}
	p.fragBuf = append(p.fragBuf, payload...)

	if h.fin {
		if p.msgType == OpcodeText && !p.utf8.Complete() {
			return errInvalidUTF8("text message ends mid-codepoint")
		}
		m := p.mgr.NewMessage(p.msgType, len(p.fragBuf))
		m.Payload = append(m.Payload, p.fragBuf...)
		p.queue = append(p.queue, m)
		p.msgType = OpcodeContinuation
		p.fragBuf = nil
		p.fragSize = 0
	}

	return nil
}

// Ready reports whether a complete [Message] is waiting to be collected.
func (p *hybiProcessor) Ready() bool { return len(p.queue) > 0 }

// GetMessage pops the oldest queued [Message].
func (p *hybiProcessor) GetMessage() Message {
	m := p.queue[0]
	p.queue = p.queue[1:]
	return m
}

// outgoingMasked reports whether frames this processor writes must be
// masked: true for a client (writing to a server), false for a server.
func (p *hybiProcessor) outgoingMasked() bool { return !p.isServer }

func (p *hybiProcessor) prepare(op Opcode, payload []byte) (Message, *Error) {
	masked := p.outgoingMasked()

	var header [14]byte
	n := 0
	header[0] = bit0 | byte(op)
	n++
	n += writePayloadLength(header[n:], len(payload), masked)

	out := p.mgr.NewMessage(op, len(payload))
	out.Payload = append(out.Payload, payload...)
	if masked {
		var key [4]byte
		if _, err := io.ReadFull(p.rng, key[:]); err != nil {
			return Message{}, errPassThrough(err)
		}
		copy(header[n:], key[:])
		n += 4
		maskPayload(out.Payload, key)
	}

	out.Header = append([]byte(nil), header[:n]...)
	out.Prepared = true
	return out, nil
}

// PrepareDataFrame wire-encodes a single unfragmented data frame. This
// engine never fragments its own outgoing messages.
func (p *hybiProcessor) PrepareDataFrame(in Message) (Message, *Error) {
	if in.Opcode != OpcodeText && in.Opcode != OpcodeBinary {
		return Message{}, errInvalidOpcode("PrepareDataFrame requires Text or Binary opcode")
	}
	if len(in.Payload) > p.maxMessageSize {
		return Message{}, errMessageTooBig("outgoing message exceeds maximum size")
	}
	return p.prepare(in.Opcode, in.Payload)
}

// PreparePingFrame wire-encodes an outgoing ping control frame.
func (p *hybiProcessor) PreparePingFrame(payload []byte) Message {
	m, _ := p.prepare(OpcodePing, payload)
	return m
}

// PreparePongFrame wire-encodes an outgoing pong control frame.
func (p *hybiProcessor) PreparePongFrame(payload []byte) Message {
	m, _ := p.prepare(OpcodePong, payload)
	return m
}

// PrepareCloseFrame sanitizes and wire-encodes an outgoing close control
// frame, flagging it Terminal when the status indicates no further
// exchange is meaningful.
func (p *hybiProcessor) PrepareCloseFrame(status StatusCode, reason string) Message {
	if status != StatusNotReceived {
		status, reason = SanitizeClosePayload(status, reason)
	}
	payload := EncodeClosePayload(status, reason)
	m, _ := p.prepare(OpcodeClose, payload)
	m.Terminal = isTerminalCloseCode(status)
	return m
}
