package websocket

import (
	"bytes"
	"crypto/md5" //nolint:gosec // required by the legacy Hixie-76 handshake.
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mmaltais/wsengine/pkg/wshttp"
	"github.com/mmaltais/wsengine/pkg/wsuri"
)

// hixieProcessor implements [Processor] for the pre-standard Hixie-76 draft
// (Sec-WebSocket-Version absent or "0"), which this engine only accepts
// when Config.AllowHixie76 is set. Its handshake uses an MD5
// challenge-response instead of the SHA1 accept-key
// derivation, and its frames are delimited by a 0x00 lead byte and 0xFF
// terminator rather than RFC 6455's length-prefixed binary frames; only text
// messages are representable in this legacy framing.
type hixieProcessor struct {
	isServer bool
	rng      io.Reader
	mgr      MessageManager

	key3  []byte // client side: the 8 random bytes sent as the request body
	buf   []byte
	queue []Message
}

func newHixieProcessor(isServer bool, rng io.Reader, mgr MessageManager) *hixieProcessor {
	if mgr == nil {
		mgr = NewAllocMessages()
	}
	return &hixieProcessor{isServer: isServer, rng: rng, mgr: mgr}
}

// hixieKeyNumber extracts the Hixie-76 "key number": the decimal digits in
// key interpreted as a base-10 integer, divided by the count of spaces in
// key. Malformed keys (no spaces, or a remainder) are a handshake error.
func hixieKeyNumber(key string) (uint32, error) {
	var digits strings.Builder
	spaces := 0
	for _, r := range key {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ':
			spaces++
		}
	}
	if spaces == 0 || digits.Len() == 0 {
		return 0, fmt.Errorf("hixie key %q has no spaces or no digits", key)
	}
	n, err := strconv.ParseUint(digits.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("hixie key %q: %w", key, err)
	}
	if n%uint64(spaces) != 0 {
		return 0, fmt.Errorf("hixie key %q: number not divisible by space count", key)
	}
	return uint32(n / uint64(spaces)), nil //nolint:gosec // validated above.
}

// hixieChallengeResponse computes the 16-byte MD5 digest of the two derived
// key numbers (big-endian) followed by the 8-byte key3/challenge body, per
// the Hixie-76 draft §5.1.
func hixieChallengeResponse(key1, key2 string, key3 []byte) ([]byte, error) {
	n1, err := hixieKeyNumber(key1)
	if err != nil {
		return nil, err
	}
	n2, err := hixieKeyNumber(key2)
	if err != nil {
		return nil, err
	}

	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], n1)
	binary.BigEndian.PutUint32(buf[4:8], n2)
	copy(buf[8:16], key3)

	sum := md5.Sum(buf[:]) //nolint:gosec // required by the legacy Hixie-76 handshake.
	return sum[:], nil
}

func (p *hixieProcessor) ValidateHandshake(req *wshttp.Request) *Error {
	if req.Method != "GET" {
		return errInvalidHTTPMethod("handshake request method must be GET, got " + req.Method)
	}
	if req.Header.Get("Host") == "" {
		return errMissingRequiredHeader("missing Host header")
	}
	if req.Header.Get("Sec-WebSocket-Key1") == "" || req.Header.Get("Sec-WebSocket-Key2") == "" {
		return errMissingRequiredHeader("missing Sec-WebSocket-Key1/Key2 header")
	}
	if len(req.Body) < 8 {
		return errBadRequest("handshake request body must carry the 8-byte key3 challenge")
	}
	return nil
}

func (p *hixieProcessor) ProcessHandshake(req *wshttp.Request, selectedSubprotocol string) (*wshttp.Response, *Error) {
	response, err := hixieChallengeResponse(
		req.Header.Get("Sec-WebSocket-Key1"),
		req.Header.Get("Sec-WebSocket-Key2"),
		req.Body[:8],
	)
	if err != nil {
		return nil, errBadRequest(err.Error())
	}

	res := wshttp.NewResponse(0)
	res.Version = "HTTP/1.1"
	res.StatusCode = 101
	res.StatusMsg = "WebSocket Protocol Handshake"
	res.Header.Replace("Upgrade", "WebSocket")
	res.Header.Replace("Connection", "Upgrade")
	if selectedSubprotocol != "" {
		res.Header.Replace("Sec-WebSocket-Protocol", selectedSubprotocol)
	}
	res.Body = response
	return res, nil
}

func (p *hixieProcessor) ClientHandshakeRequest(uri wsuri.URI, requestedSubprotocols []string) (*wshttp.Request, error) {
	key3 := make([]byte, 8)
	if _, err := io.ReadFull(p.rng, key3); err != nil {
		return nil, err
	}
	p.key3 = key3

	req := wshttp.NewRequest(0)
	req.Method = "GET"
	req.Path = uri.Resource()
	req.Version = "HTTP/1.1"
	req.Header.Replace("Host", uri.Authority())
	req.Header.Replace("Upgrade", "WebSocket")
	req.Header.Replace("Connection", "Upgrade")
	req.Header.Replace("Sec-WebSocket-Key1", randomHixieKey(p.rng))
	req.Header.Replace("Sec-WebSocket-Key2", randomHixieKey(p.rng))
	if len(requestedSubprotocols) > 0 {
		req.Header.Replace("Sec-WebSocket-Protocol", strings.Join(requestedSubprotocols, ", "))
	}
	req.Body = key3
	return req, nil
}

// randomHixieKey builds a key string whose embedded decimal number is
// divisible by its space count, as the draft's key grammar requires. Kept
// deliberately simple: two spaces, one even random number.
func randomHixieKey(rng io.Reader) string {
	var b [4]byte
	_, _ = io.ReadFull(rng, b[:])
	n := binary.BigEndian.Uint32(b[:]) % 1_000_000
	return strconv.FormatUint(uint64(n)*12, 10) + " chars "
}

func (p *hixieProcessor) ValidateServerHandshakeResponse(req *wshttp.Request, res *wshttp.Response) *Error {
	if res.StatusCode != 101 {
		return errServerHandshakeMismatch("expected status 101, got " + res.StatusMsg)
	}
	want, err := hixieChallengeResponse(
		req.Header.Get("Sec-WebSocket-Key1"),
		req.Header.Get("Sec-WebSocket-Key2"),
		p.key3,
	)
	if err != nil {
		return errServerHandshakeMismatch(err.Error())
	}
	if !bytes.Equal(res.Body, want) {
		return errServerHandshakeMismatch("challenge response mismatch")
	}
	return nil
}

// Consume parses 0x00-led, 0xFF-terminated text frames, the only framing
// Hixie-76 defines.
func (p *hixieProcessor) Consume(data []byte) (int, *Error) {
	p.buf = append(p.buf, data...)

	pos := 0
	for pos < len(p.buf) {
		if p.buf[pos] != 0x00 {
			return len(data), errInvalidOpcode("Hixie-76 frame must start with 0x00")
		}
		end := bytes.IndexByte(p.buf[pos+1:], 0xFF)
		if end < 0 {
			break
		}
		payload := p.buf[pos+1 : pos+1+end]
		m := p.mgr.NewMessage(OpcodeText, len(payload))
		m.Payload = append(m.Payload, payload...)
		p.queue = append(p.queue, m)
		pos += 1 + end + 1
	}

	p.buf = p.buf[pos:]
	return len(data), nil
}

func (p *hixieProcessor) Ready() bool { return len(p.queue) > 0 }

func (p *hixieProcessor) GetMessage() Message {
	m := p.queue[0]
	p.queue = p.queue[1:]
	return m
}

func (p *hixieProcessor) PrepareDataFrame(in Message) (Message, *Error) {
	if in.Opcode != OpcodeText {
		return Message{}, errInvalidOpcode("Hixie-76 framing only supports text messages")
	}
	out := p.mgr.NewMessage(OpcodeText, len(in.Payload)+2)
	out.Payload = append(out.Payload, 0x00)
	out.Payload = append(out.Payload, in.Payload...)
	out.Payload = append(out.Payload, 0xFF)
	out.Prepared = true
	return out, nil
}

// PreparePingFrame is a no-op: Hixie-76 has no control frames.
func (p *hixieProcessor) PreparePingFrame([]byte) Message { return Message{} }

// PreparePongFrame is a no-op: Hixie-76 has no control frames.
func (p *hixieProcessor) PreparePongFrame([]byte) Message { return Message{} }

// PrepareCloseFrame sends no close frame, since Hixie-76 predates the close
// handshake: it returns an empty Message flagged Terminal, which makes the
// write loop shut the transport down.
func (p *hixieProcessor) PrepareCloseFrame(StatusCode, string) Message {
	return Message{Terminal: true}
}
