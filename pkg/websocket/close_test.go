package websocket

import "testing"

func TestParseClosePayload(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		wantStatus StatusCode
		wantReason string
		wantErr    bool
	}{
		{name: "empty", payload: nil, wantStatus: StatusNotReceived},
		{name: "one_byte", payload: []byte{0x01}, wantStatus: StatusProtocolError, wantErr: true},
		{
			name:       "code_only",
			payload:    []byte{0x03, 0xE8}, // 1000
			wantStatus: StatusNormalClosure,
		},
		{
			name:       "code_and_reason",
			payload:    append([]byte{0x03, 0xE8}, "bye"...),
			wantStatus: StatusNormalClosure,
			wantReason: "bye",
		},
		{
			name:    "invalid_utf8_reason",
			payload: append([]byte{0x03, 0xE8}, 0xFF),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason, err := ParseClosePayload(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("got (%v, %q), want (%v, %q)", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestSanitizeClosePayloadRejectsSentinels(t *testing.T) {
	for _, s := range []StatusCode{1005, 1006, 1015, 999, 2999} {
		got, _ := SanitizeClosePayload(s, "")
		if got != StatusProtocolError {
			t.Errorf("SanitizeClosePayload(%d) = %v, want StatusProtocolError", s, got)
		}
	}
}

func TestSanitizeClosePayloadTruncatesReason(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	_, reason := SanitizeClosePayload(StatusNormalClosure, string(long))
	if len(reason) != maxCloseReason {
		t.Errorf("len(reason) = %d, want %d", len(reason), maxCloseReason)
	}
}

func TestEncodeClosePayloadBlank(t *testing.T) {
	if got := EncodeClosePayload(StatusNotReceived, "anything"); got != nil {
		t.Errorf("EncodeClosePayload(blank) = %v, want nil", got)
	}
}

func TestEncodeClosePayloadRoundTrip(t *testing.T) {
	encoded := EncodeClosePayload(StatusGoingAway, "done")
	status, reason, err := ParseClosePayload(encoded)
	if err != nil {
		t.Fatalf("ParseClosePayload() error = %v", err)
	}
	if status != StatusGoingAway || reason != "done" {
		t.Errorf("got (%v, %q), want (StatusGoingAway, \"done\")", status, reason)
	}
}

func TestIsTerminalCloseCode(t *testing.T) {
	if !isTerminalCloseCode(StatusProtocolError) {
		t.Error("expected StatusProtocolError to be terminal")
	}
	if isTerminalCloseCode(StatusNormalClosure) {
		t.Error("expected StatusNormalClosure to not be terminal")
	}
}
