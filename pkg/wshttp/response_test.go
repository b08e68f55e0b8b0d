package wshttp

import "testing"

func TestResponseConsumeHandshake(t *testing.T) {
	raw := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n" +
		"\r\n"

	r := NewResponse(0)
	n, err := r.Consume([]byte(raw))
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if !r.Ready() || !r.HeadersReady() {
		t.Fatal("expected Ready and HeadersReady")
	}
	if r.StatusCode != 101 || r.StatusMsg != "Switching Protocols" {
		t.Errorf("status = %d %q", r.StatusCode, r.StatusMsg)
	}
	if r.Header.Get("Sec-WebSocket-Accept") != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("Sec-WebSocket-Accept = %q", r.Header.Get("Sec-WebSocket-Accept"))
	}
}

func TestResponse101IgnoresContentLength(t *testing.T) {
	raw := "HTTP/1.1 101 Switching Protocols\r\nContent-Length: 5\r\n\r\nEXTRA"
	r := NewResponse(0)
	n, err := r.Consume([]byte(raw))
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if !r.Ready() {
		t.Fatal("expected Ready without waiting for body")
	}
	want := len(raw) - len("EXTRA")
	if n != want {
		t.Fatalf("consumed %d, want %d", n, want)
	}
}

func TestResponseConsumeErrorBody(t *testing.T) {
	raw := "HTTP/1.1 400 Bad Request\r\nContent-Length: 2\r\n\r\nno"
	r := NewResponse(0)
	n, err := r.Consume([]byte(raw))
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if !r.Ready() || n != len(raw) {
		t.Fatalf("n=%d ready=%v", n, r.Ready())
	}
	if string(r.Body) != "no" {
		t.Errorf("Body = %q", r.Body)
	}
}

func TestResponseConsumeMalformedStatus(t *testing.T) {
	r := NewResponse(0)
	_, err := r.Consume([]byte("HTTP/1.1 abc\r\n\r\n"))
	if err != ErrIncompleteStatus {
		t.Fatalf("got %v, want ErrIncompleteStatus", err)
	}
}

func TestResponseRaw(t *testing.T) {
	r := NewResponse(0)
	r.Version = "HTTP/1.1"
	r.StatusCode = 101
	r.Header.Append("Upgrade", "websocket")

	got := string(r.Raw())
	want := "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\n\r\n"
	if got != want {
		t.Errorf("Raw() = %q, want %q", got, want)
	}
}
