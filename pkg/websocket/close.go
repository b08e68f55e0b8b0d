package websocket

import (
	"encoding/binary"
	"strconv"

	"github.com/mmaltais/wsengine/pkg/wsutf8"
)

// StatusCode is a WebSocket close status code
// (https://datatracker.ietf.org/doc/html/rfc6455#section-7.4 and the IANA
// registry at
// https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number).
//
// Codes below 1000 are unused; 3000-3999 belong to libraries and frameworks;
// 4000-4999 are private-use and unregistrable. Three registered values
// (1005, 1006, 1015) are local-only sentinels that must never be written to
// the wire; [SanitizeClosePayload] rewrites them before encoding.
type StatusCode uint16

const (
	// The session ran to completion and was shut down deliberately.
	StatusNormalClosure StatusCode = iota + 1000
	// The endpoint is disappearing: server shutdown, page navigation.
	StatusGoingAway
	// The peer violated the framing or state rules of the protocol.
	StatusProtocolError
	// The message's data type is one this endpoint does not handle (for
	// example binary data sent to a text-only consumer).
	StatusUnsupportedData
	// 1004 is reserved with no assigned meaning.
	_
	// Local-only sentinel: the peer's close frame carried no status code.
	// Passing it to a Prepare/Encode call means "omit the code and reason
	// entirely"; it never itself appears on the wire.
	StatusNotReceived
	// Local-only sentinel: the connection ended without a close frame in
	// either direction. Never appears on the wire.
	StatusClosedAbnormally
	// A message's payload did not match its opcode, e.g. a text message
	// whose bytes are not valid UTF-8.
	StatusInvalidData
	// A policy of this endpoint was violated; deliberately vague so the
	// policy itself need not be disclosed.
	StatusPolicyViolation
	// The message exceeds what this endpoint is willing to buffer.
	StatusMessageTooBig
	// Sent by a client whose required extensions were not negotiated.
	StatusMandatoryExtension
	// The endpoint hit an unexpected internal failure.
	StatusInternalError
	// The server is restarting; clients may reconnect.
	StatusServiceRestart
	// The server is overloaded; clients should back off before retrying.
	StatusTryAgainLater
	// An upstream gateway produced an invalid response.
	StatusBadGateway
	// Local-only sentinel: the TLS handshake failed before the WebSocket
	// handshake could start. Never appears on the wire.
	StatusTLSHandshake
)

// String returns a short description of the status code, or its decimal
// value for codes this engine has no name for.
func (s StatusCode) String() string {
	switch s {
	case StatusNormalClosure:
		return "normal closure"
	case StatusGoingAway:
		return "endpoint going away"
	case StatusProtocolError:
		return "protocol error"
	case StatusUnsupportedData:
		return "unsupported data type"
	case StatusNotReceived:
		return "no status code received"
	case StatusClosedAbnormally:
		return "abnormal closure"
	case StatusInvalidData:
		return "invalid payload data"
	case StatusPolicyViolation:
		return "policy violation"
	case StatusMessageTooBig:
		return "message too big"
	case StatusMandatoryExtension:
		return "mandatory extension missing"
	case StatusInternalError:
		return "internal error"
	case StatusServiceRestart:
		return "service restart"
	case StatusTryAgainLater:
		return "try again later"
	case StatusBadGateway:
		return "bad gateway"
	case StatusTLSHandshake:
		return "TLS handshake failure"
	default:
		return strconv.Itoa(int(s))
	}
}

// maxCloseReason is the maximum length of a connection closing reason.
// The difference from maxControlPayload is due to the 2-byte status code.
const maxCloseReason = maxControlPayload - 2

// ParseClosePayload extracts the [StatusCode] and the optional UTF-8 reason
// from an incoming close control frame's payload. A payload of length 1 is a
// protocol error (a status code needs at least 2 bytes); a reason that isn't
// valid UTF-8 is reported via the returned *Error (KindPayload, close code
// 1007) with reason cleared, rather than silently dropped.
func ParseClosePayload(payload []byte) (StatusCode, string, *Error) {
	switch len(payload) {
	case 0:
		return StatusNotReceived, "", nil
	case 1:
		return StatusProtocolError, "", errBadCloseCode("close frame payload of length 1")
	}

	status := StatusCode(binary.BigEndian.Uint16(payload))
	if len(payload) == 2 {
		return status, "", nil
	}

	reason := payload[2:]
	if !wsutf8.Valid(reason) {
		return StatusInvalidData, "", errInvalidUTF8("close reason is not valid UTF-8")
	}
	return status, string(reason), nil
}

// SanitizeClosePayload corrects a [StatusCode]/reason pair before it goes on
// the wire: codes outside the valid IANA ranges (including the 1005/1006/1015
// sentinels, which must never appear on the wire) become StatusProtocolError,
// and reasons are truncated to fit a 125-byte control frame.
func SanitizeClosePayload(status StatusCode, reason string) (StatusCode, string) {
	s := int(status)
	switch {
	case status < StatusNormalClosure || s == 1004:
		status = StatusProtocolError
	case status == StatusNotReceived || status == StatusClosedAbnormally || status == StatusTLSHandshake:
		status = StatusProtocolError
	case status > StatusBadGateway && s < 3000:
		status = StatusProtocolError
	case s > 4999:
		status = StatusProtocolError
	}

	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	return status, reason
}

// EncodeClosePayload builds the wire payload for a close control frame. A
// status of StatusNotReceived ("no status") produces an empty payload: the
// code and reason are omitted entirely rather than written as zeroes.
func EncodeClosePayload(status StatusCode, reason string) []byte {
	if status == StatusNotReceived {
		return nil
	}

	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf[:2], uint16(status))
	copy(buf[2:], reason)
	return buf
}

// isTerminalCloseCode reports whether status is one from which no further
// meaningful exchange is possible, so the close frame that carries it should
// be flagged terminal (transport shutdown right after it is written) instead
// of waiting for the peer's close-ack.
func isTerminalCloseCode(status StatusCode) bool {
	switch status {
	case StatusProtocolError, StatusInvalidData, StatusPolicyViolation,
		StatusMessageTooBig, StatusInternalError:
		return true
	default:
		return false
	}
}
