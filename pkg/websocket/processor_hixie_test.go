package websocket

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/mmaltais/wsengine/pkg/wsuri"
)

func TestHixieKeyNumber(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    uint32
		wantErr bool
	}{
		{name: "simple", key: "12 4", want: 124 / 1},
		{name: "two_spaces", key: "1 2 4", want: 62},
		{name: "noise_chars", key: "1x2@y4 z", want: 124},
		{name: "no_spaces", key: "124", wantErr: true},
		{name: "no_digits", key: "a b c", wantErr: true},
		{name: "not_divisible", key: "1 2 3 5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hixieKeyNumber(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("hixieKeyNumber(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("hixieKeyNumber(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestHixieHandshakeRoundTrip(t *testing.T) {
	client := newHixieProcessor(false, rand.Reader, nil)
	uri, err := wsuri.Parse("ws://example.com/demo")
	if err != nil {
		t.Fatalf("wsuri.Parse() error = %v", err)
	}

	req, err := client.ClientHandshakeRequest(uri, nil)
	if err != nil {
		t.Fatalf("ClientHandshakeRequest() error = %v", err)
	}
	if len(req.Body) != 8 {
		t.Fatalf("request body (key3) length = %d, want 8", len(req.Body))
	}

	server := newHixieProcessor(true, rand.Reader, nil)
	if verr := server.ValidateHandshake(req); verr != nil {
		t.Fatalf("ValidateHandshake() error = %v", verr)
	}
	res, herr := server.ProcessHandshake(req, "")
	if herr != nil {
		t.Fatalf("ProcessHandshake() error = %v", herr)
	}
	if len(res.Body) != 16 {
		t.Fatalf("response body (challenge) length = %d, want 16", len(res.Body))
	}

	if verr := client.ValidateServerHandshakeResponse(req, res); verr != nil {
		t.Fatalf("ValidateServerHandshakeResponse() error = %v", verr)
	}
}

func TestHixieChallengeResponseDeterministic(t *testing.T) {
	key3 := []byte("12345678")
	a, err := hixieChallengeResponse("1 2", "3 4", key3)
	if err != nil {
		t.Fatalf("hixieChallengeResponse() error = %v", err)
	}
	b, err := hixieChallengeResponse("1 2", "3 4", key3)
	if err != nil {
		t.Fatalf("hixieChallengeResponse() error = %v", err)
	}
	if !bytes.Equal(a, b) || len(a) != 16 {
		t.Errorf("challenge responses differ or are not 16 bytes: %x vs %x", a, b)
	}

	c, _ := hixieChallengeResponse("1 2", "3 4", []byte("87654321"))
	if bytes.Equal(a, c) {
		t.Error("different key3 values must yield different responses")
	}
}

func TestHixieFrameRoundTrip(t *testing.T) {
	p := newHixieProcessor(false, rand.Reader, nil)

	out, err := p.PrepareDataFrame(Message{Opcode: OpcodeText, Payload: []byte("hi there")})
	if err != nil {
		t.Fatalf("PrepareDataFrame() error = %v", err)
	}
	want := append([]byte{0x00}, "hi there"...)
	want = append(want, 0xFF)
	if !bytes.Equal(out.Payload, want) {
		t.Fatalf("prepared frame = %x, want %x", out.Payload, want)
	}

	peer := newHixieProcessor(true, rand.Reader, nil)
	if _, cerr := peer.Consume(out.Payload); cerr != nil {
		t.Fatalf("Consume() error = %v", cerr)
	}
	if !peer.Ready() {
		t.Fatal("expected a ready message")
	}
	m := peer.GetMessage()
	if m.Opcode != OpcodeText || string(m.Payload) != "hi there" {
		t.Errorf("GetMessage() = %+v, want text %q", m, "hi there")
	}
}

func TestHixieRejectsBinary(t *testing.T) {
	p := newHixieProcessor(false, rand.Reader, nil)
	if _, err := p.PrepareDataFrame(Message{Opcode: OpcodeBinary, Payload: []byte{1}}); err == nil {
		t.Fatal("binary messages are not representable in Hixie-76 framing")
	}
}

func TestHixieConsumeSplitFrames(t *testing.T) {
	p := newHixieProcessor(true, rand.Reader, nil)

	if _, err := p.Consume([]byte{0x00, 'a', 'b'}); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if p.Ready() {
		t.Fatal("message should not be ready before the 0xFF terminator")
	}
	if _, err := p.Consume([]byte{'c', 0xFF, 0x00, 'd', 0xFF}); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if got := string(p.GetMessage().Payload); got != "abc" {
		t.Errorf("first message = %q, want %q", got, "abc")
	}
	if got := string(p.GetMessage().Payload); got != "d" {
		t.Errorf("second message = %q, want %q", got, "d")
	}
}
