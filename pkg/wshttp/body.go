package wshttp

import (
	"strconv"
	"strings"
)

// bodyLength resolves how many body bytes a message should expect, per
// Content-Length / Transfer-Encoding: chunked. chunked bodies are only
// partially supported here: the core's own handshake messages never carry
// one, so a chunked body is accepted but its framing (chunk-size lines) is
// left to the caller's Body bytes once Done — this component only needs to
// know a body exists so (*Request).Consume doesn't block forever.
func bodyLength(h *Header) (length int64, chunked bool, err error) {
	te := h.Get("Transfer-Encoding")
	cl := h.Get("Content-Length")

	if te != "" && cl != "" {
		return 0, false, ErrTransferAndContent
	}
	if te != "" {
		if !strings.EqualFold(strings.TrimSpace(te), "chunked") {
			return 0, false, ErrUnsupportedEncoding
		}
		return 0, true, nil
	}
	if cl == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil || n < 0 {
		return 0, false, ErrInvalidContentLen
	}
	return n, false, nil
}
