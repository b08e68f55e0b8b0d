package websocket

import (
	"crypto/sha1" //nolint:gosec // required by the WebSocket protocol.
	"encoding/base64"
	"io"
	"strconv"
	"strings"

	"github.com/mmaltais/wsengine/pkg/wshttp"
	"github.com/mmaltais/wsengine/pkg/wsuri"
)

// Extension is the hook for permessage-deflate-style protocol extensions:
// negotiation happens once during the handshake, and a successful
// negotiation permits RSV1 on data frames. No implementation is bundled;
// Encode/Decode define the shape a payload transform plugs in with.
type Extension interface {
	Name() string
	Negotiate(offer string) (accept string, ok bool)
	Encode(payload []byte) []byte
	Decode(payload []byte) ([]byte, error)
}

// Processor abstracts the per-WebSocket-protocol-version handshake and frame
// semantics (RFC 6455 v13 plus the v7/v8 drafts share hybiProcessor; Hixie-00
// gets its own hixieProcessor). Selected once per connection by
// SelectProcessor, based on the handshake's Sec-WebSocket-Version header.
type Processor interface {
	// ValidateHandshake checks an inbound request (server side) for the
	// fields this protocol version requires.
	ValidateHandshake(req *wshttp.Request) *Error
	// ProcessHandshake builds the 101 response (server side) once
	// ValidateHandshake has passed.
	ProcessHandshake(req *wshttp.Request, selectedSubprotocol string) (*wshttp.Response, *Error)
	// ClientHandshakeRequest builds the outbound request (client side).
	ClientHandshakeRequest(uri wsuri.URI, requestedSubprotocols []string) (*wshttp.Request, error)
	// ValidateServerHandshakeResponse checks the server's reply (client side).
	ValidateServerHandshakeResponse(req *wshttp.Request, res *wshttp.Response) *Error

	// Consume feeds bytes read from the transport into the frame parser.
	// Returns the number of bytes consumed and, on a fatal protocol
	// violation, the *Error the connection should close with.
	Consume(data []byte) (int, *Error)
	// Ready reports whether a complete Message is waiting to be collected.
	Ready() bool
	// GetMessage clears Ready and returns the waiting Message.
	GetMessage() Message

	PrepareDataFrame(in Message) (Message, *Error)
	PreparePingFrame(payload []byte) Message
	PreparePongFrame(payload []byte) Message
	PrepareCloseFrame(status StatusCode, reason string) Message
}

// acceptGUID is the literal magic GUID from RFC 6455 §1.3.
var acceptGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// acceptKey computes Sec-WebSocket-Accept = base64(SHA1(key + GUID)) as
// defined in https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2,
// used by both the server (computing its response) and the client
// (validating that response).
func acceptKey(key string) string {
	h := sha1.New() //nolint:gosec // required by the WebSocket protocol.
	h.Write([]byte(key))
	h.Write(acceptGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// generateNonce generates the random 16-byte, base64-encoded
// Sec-WebSocket-Key value a client sends with each handshake.
func generateNonce(r io.Reader) (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// httpVersionAtLeast11 reports whether an "HTTP/major.minor" version string
// is HTTP/1.1 or newer.
func httpVersionAtLeast11(version string) bool {
	v, ok := strings.CutPrefix(version, "HTTP/")
	if !ok {
		return false
	}
	major, minor, found := strings.Cut(v, ".")
	if !found {
		minor = "0"
	}
	maj, err := strconv.Atoi(major)
	if err != nil {
		return false
	}
	min, err := strconv.Atoi(minor)
	if err != nil {
		return false
	}
	return maj > 1 || (maj == 1 && min >= 1)
}

// supportedVersions lists the Sec-WebSocket-Version values this engine can
// select a processor for, in the order reported in a 400 response's
// Sec-WebSocket-Version header.
var supportedVersions = []string{"0", "7", "8", "13"}

// SelectProcessor dispatches to a version-specific [Processor], based on the
// handshake request's Sec-WebSocket-Version header (absent means version 0,
// Hixie-76). isServer controls which direction's frames must/must not be
// masked; rng, message sizing, the message manager, and the Hixie-76 gate
// come from the connection's resolved configuration.
func SelectProcessor(req *wshttp.Request, isServer bool, cfg Config, mgr MessageManager) (Processor, *Error) {
	v := req.Header.Get("Sec-WebSocket-Version")
	if v == "" {
		v = "0"
	}

	switch v {
	case "7", "8", "13":
		return newHybiProcessor(isServer, cfg.RNG, cfg.MaxMessageSize, mgr), nil
	case "0":
		if !cfg.AllowHixie76 {
			return nil, errUpgradeRequired("Hixie-00 handshake is disabled")
		}
		return newHixieProcessor(isServer, cfg.RNG, mgr), nil
	default:
		return nil, errInvalidHandshakeVersion(v)
	}
}

func errInvalidHandshakeVersion(got string) *Error {
	return &Error{
		Kind:    KindHandshake,
		Code:    "UnsupportedVersion",
		Message: "unsupported Sec-WebSocket-Version: " + strconv.Quote(got) + "; supported: " + strings.Join(supportedVersions, ", "),
	}
}
