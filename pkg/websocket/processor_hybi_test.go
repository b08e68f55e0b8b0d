package websocket

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/mmaltais/wsengine/pkg/wshttp"
	"github.com/mmaltais/wsengine/pkg/wsuri"
)

func TestAcceptKeyReferenceVector(t *testing.T) {
	// https://datatracker.ietf.org/doc/html/rfc6455#section-1.3
	got := acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("acceptKey() = %q, want %q", got, want)
	}
}

func TestHybiProcessorServerHandshake(t *testing.T) {
	p := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)

	req := wshttp.NewRequest(0)
	req.Method = "GET"
	req.Header.Replace("Host", "www.example.com")
	req.Header.Replace("Connection", "Upgrade")
	req.Header.Replace("Upgrade", "websocket")
	req.Header.Replace("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	if err := p.ValidateHandshake(req); err != nil {
		t.Fatalf("ValidateHandshake() error = %v", err)
	}

	res, err := p.ProcessHandshake(req, "")
	if err != nil {
		t.Fatalf("ProcessHandshake() error = %v", err)
	}
	if res.StatusCode != 101 {
		t.Errorf("StatusCode = %d, want 101", res.StatusCode)
	}
	if got := res.Header.Get("Sec-WebSocket-Accept"); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("Sec-WebSocket-Accept = %q, want reference vector", got)
	}
}

func TestHybiProcessorClientHandshakeRoundTrip(t *testing.T) {
	p := newHybiProcessor(false, rand.Reader, defaultMaxMessageSize, nil)
	uri, err := wsuri.Parse("ws://example.com/chat")
	if err != nil {
		t.Fatalf("wsuri.Parse() error = %v", err)
	}

	req, err := p.ClientHandshakeRequest(uri, []string{"chat"})
	if err != nil {
		t.Fatalf("ClientHandshakeRequest() error = %v", err)
	}

	server := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)
	if err := server.ValidateHandshake(req); err != nil {
		t.Fatalf("server ValidateHandshake() error = %v", err)
	}
	res, werr := server.ProcessHandshake(req, "chat")
	if werr != nil {
		t.Fatalf("ProcessHandshake() error = %v", werr)
	}

	if cerr := p.ValidateServerHandshakeResponse(req, res); cerr != nil {
		t.Fatalf("ValidateServerHandshakeResponse() error = %v", cerr)
	}
}

func TestHybiProcessorValidateServerHandshakeResponseRejectsUnrequestedSubprotocol(t *testing.T) {
	p := newHybiProcessor(false, rand.Reader, defaultMaxMessageSize, nil)
	uri, _ := wsuri.Parse("ws://example.com/")
	req, _ := p.ClientHandshakeRequest(uri, []string{"chat"})

	res := wshttp.NewResponse(0)
	res.StatusCode = 101
	res.Header.Replace("Sec-WebSocket-Accept", acceptKey(p.nonce))
	res.Header.Replace("Sec-WebSocket-Protocol", "unrequested")

	if err := p.ValidateServerHandshakeResponse(req, res); err == nil || err.Code != "UnrequestedSubprotocol" {
		t.Fatalf("got %v, want UnrequestedSubprotocol", err)
	}
}

func TestHybiProcessorConsumeSingleFrame(t *testing.T) {
	p := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)
	frame := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}

	n, err := p.Consume(frame)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if n != len(frame) {
		t.Errorf("Consume() consumed %d, want %d", n, len(frame))
	}
	if !p.Ready() {
		t.Fatal("expected a ready message")
	}
	m := p.GetMessage()
	if m.Opcode != OpcodeText || string(m.Payload) != "Hello" {
		t.Errorf("GetMessage() = %+v, want text \"Hello\"", m)
	}
	if p.Ready() {
		t.Error("expected queue to be drained")
	}
}

func TestHybiProcessorConsumeFragmentedMessage(t *testing.T) {
	p := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)

	first := []byte{0x01, 0x81, 1, 2, 3, 4, 'H' ^ 1}
	last := []byte{0x80, 0x85, 1, 2, 3, 4}
	last = append(last, maskedBytes([]byte("ello!"), [4]byte{1, 2, 3, 4})...)

	if _, err := p.Consume(first); err != nil {
		t.Fatalf("Consume(first) error = %v", err)
	}
	if p.Ready() {
		t.Fatal("message should not be ready before FIN")
	}
	if _, err := p.Consume(last); err != nil {
		t.Fatalf("Consume(last) error = %v", err)
	}
	if !p.Ready() {
		t.Fatal("expected a ready message after FIN")
	}
	m := p.GetMessage()
	if string(m.Payload) != "Hello!" {
		t.Errorf("reassembled payload = %q, want %q", m.Payload, "Hello!")
	}
}

func TestHybiProcessorConsumeSplitAcrossCalls(t *testing.T) {
	p := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)
	frame := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}

	for i, b := range frame {
		if _, err := p.Consume([]byte{b}); err != nil {
			t.Fatalf("Consume() byte %d error = %v", i, err)
		}
		if i < len(frame)-1 && p.Ready() {
			t.Fatalf("message ready too early at byte %d", i)
		}
	}
	if !p.Ready() {
		t.Fatal("expected a ready message once all bytes arrive")
	}
	if string(p.GetMessage().Payload) != "Hello" {
		t.Error("unexpected reassembled payload")
	}
}

func TestHybiProcessorConsumeInvalidUTF8(t *testing.T) {
	p := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)
	payload := []byte{0xFF}
	key := [4]byte{0, 0, 0, 0}
	masked := maskedBytes(payload, key)
	frame := append([]byte{0x81, 0x80 | byte(len(masked))}, key[:]...)
	frame = append(frame, masked...)

	if _, err := p.Consume(frame); err == nil || err.Code != "InvalidUtf8" {
		t.Fatalf("got %v, want InvalidUtf8", err)
	}
}

func TestHybiProcessorPrepareDataFrameClientMasksServerDoesNot(t *testing.T) {
	client := newHybiProcessor(false, rand.Reader, defaultMaxMessageSize, nil)
	m, err := client.PrepareDataFrame(Message{Opcode: OpcodeText, Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("PrepareDataFrame() error = %v", err)
	}
	if m.Header[1]&0x80 == 0 {
		t.Error("client-prepared frame must be masked")
	}

	server := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)
	m2, err := server.PrepareDataFrame(Message{Opcode: OpcodeText, Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("PrepareDataFrame() error = %v", err)
	}
	if m2.Header[1]&0x80 != 0 {
		t.Error("server-prepared frame must not be masked")
	}
	if !bytes.Equal(m2.Payload, []byte("hi")) {
		t.Errorf("server-prepared payload = %q, want unmasked %q", m2.Payload, "hi")
	}
}

func TestHybiProcessorPrepareCloseFrameTerminal(t *testing.T) {
	p := newHybiProcessor(true, rand.Reader, defaultMaxMessageSize, nil)
	m := p.PrepareCloseFrame(StatusProtocolError, "bad")
	if !m.Terminal {
		t.Error("expected StatusProtocolError close frame to be Terminal")
	}

	m2 := p.PrepareCloseFrame(StatusNormalClosure, "bye")
	if m2.Terminal {
		t.Error("expected StatusNormalClosure close frame to not be Terminal")
	}
}

func maskedBytes(payload []byte, key [4]byte) []byte {
	out := append([]byte(nil), payload...)
	maskPayload(out, key)
	return out
}
