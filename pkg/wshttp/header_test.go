package wshttp

import "testing"

func TestHeaderAppendCoalesces(t *testing.T) {
	var h Header
	h.Append("Connection", "keep-alive")
	h.Append("connection", "Upgrade")
	if got := h.Get("CONNECTION"); got != "keep-alive, Upgrade" {
		t.Errorf("Get = %q", got)
	}
	if !h.Contains("Connection", "Upgrade") {
		t.Error("expected Contains(Upgrade) true")
	}
	if !h.Contains("Connection", "keep-alive") {
		t.Error("expected Contains(keep-alive) true")
	}
}

func TestHeaderReplace(t *testing.T) {
	var h Header
	h.Append("X-Foo", "a")
	h.Replace("X-Foo", "b")
	if h.Get("X-Foo") != "b" {
		t.Errorf("Get = %q, want b", h.Get("X-Foo"))
	}
}

func TestHeaderRemove(t *testing.T) {
	var h Header
	h.Append("X-Foo", "a")
	h.Append("X-Bar", "b")
	h.Remove("x-foo")
	if h.Has("X-Foo") {
		t.Error("expected X-Foo removed")
	}
	if !h.Has("X-Bar") {
		t.Error("expected X-Bar to remain")
	}
}

func TestHeaderForEachOrder(t *testing.T) {
	var h Header
	h.Append("Host", "example.com")
	h.Append("Upgrade", "websocket")
	h.Append("Connection", "Upgrade")

	var order []string
	h.forEach(func(name, value string) { order = append(order, name) })
	want := []string{"Host", "Upgrade", "Connection"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestParseParameterLists(t *testing.T) {
	got := ParseParameterLists(`permessage-deflate; client_max_window_bits, x-webkit-deflate-frame`)
	if len(got) != 2 {
		t.Fatalf("got %d sets, want 2", len(got))
	}
	if got[0][0].Name != "permessage-deflate" {
		t.Errorf("set0[0].Name = %q", got[0][0].Name)
	}
	if got[0][1].Name != "client_max_window_bits" {
		t.Errorf("set0[1].Name = %q", got[0][1].Name)
	}
	if got[1][0].Name != "x-webkit-deflate-frame" {
		t.Errorf("set1[0].Name = %q", got[1][0].Name)
	}
}

func TestParseParameterListsQuotedValue(t *testing.T) {
	got := ParseParameterLists(`foo; bar="a,b;c"`)
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got[0][1].Value != "a,b;c" {
		t.Errorf("Value = %q, want %q", got[0][1].Value, "a,b;c")
	}
}
