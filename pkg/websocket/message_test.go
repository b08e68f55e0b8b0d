package websocket

import "testing"

func TestAllocMessagesAlwaysFresh(t *testing.T) {
	mgr := NewAllocMessages()

	a := mgr.NewMessage(OpcodeText, 8)
	if a.Opcode != OpcodeText || len(a.Payload) != 0 || cap(a.Payload) < 8 {
		t.Fatalf("NewMessage() = %+v, want empty text message with capacity >= 8", a)
	}

	a.Payload = append(a.Payload, "aaaa"...)
	mgr.Recycle(a)

	b := mgr.NewMessage(OpcodeBinary, 8)
	b.Payload = append(b.Payload, "bbbb"...)
	if string(a.Payload) != "aaaa" {
		t.Error("recycling under the alloc manager must not alias later messages")
	}
}

func TestPooledMessagesReusesBuffers(t *testing.T) {
	mgr := NewPooledMessages()

	a := mgr.NewMessage(OpcodeText, 16)
	a.Payload = append(a.Payload, "payload"...)
	mgr.Recycle(a)

	b := mgr.NewMessage(OpcodeBinary, 8)
	if len(b.Payload) != 0 {
		t.Fatalf("reused buffer must come back empty, got %q", b.Payload)
	}
	if cap(b.Payload) < 8 {
		t.Errorf("reused buffer capacity = %d, want >= 8", cap(b.Payload))
	}
}

func TestPooledMessagesGrowsForLargerRequests(t *testing.T) {
	mgr := NewPooledMessages()

	small := mgr.NewMessage(OpcodeText, 4)
	mgr.Recycle(small)

	big := mgr.NewMessage(OpcodeText, 1024)
	if cap(big.Payload) < 1024 {
		t.Errorf("capacity = %d, want >= 1024", cap(big.Payload))
	}
}

func TestMessageBytes(t *testing.T) {
	m := Message{Header: []byte{0x81, 0x02}, Payload: []byte("**"), Prepared: true}
	want := []byte{0x81, 0x02, '*', '*'}
	got := m.Bytes()
	if len(got) != len(want) {
		t.Fatalf("Bytes() = %x, want %x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Bytes() = %x, want %x", got, want)
		}
	}
}
