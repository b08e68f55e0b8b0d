// Package wsuri parses and formats the compact WebSocket/HTTP URIs used
// during the handshake: "ws://", "wss://", "http://", and "https://".
//
// [net/url] is deliberately not reused for the parsed representation: it has
// no notion of the ws/wss default ports, and round-trips through a much
// larger general-purpose URI grammar than the handshake needs.
package wsuri

import (
	"fmt"
	"strconv"
	"strings"
)

// URI is an immutable, parsed WebSocket/HTTP endpoint address.
type URI struct {
	scheme   string
	host     string
	port     int
	resource string
}

// defaultPorts maps each supported scheme to its implied port.
var defaultPorts = map[string]int{
	"ws":    80,
	"http":  80,
	"wss":   443,
	"https": 443,
}

// Parse accepts "scheme://host[:port]/resource" and returns a validated URI.
//
// host may be a DNS label, an IPv4 literal, or a bracketed IPv6 literal (the
// brackets are stripped on storage). A missing port defaults per-scheme. A
// missing resource defaults to "/".
func Parse(input string) (URI, error) {
	scheme, rest, ok := strings.Cut(input, "://")
	if !ok {
		return URI{}, fmt.Errorf("wsuri: invalid uri %q: missing scheme separator", input)
	}
	scheme = strings.ToLower(scheme)
	if _, known := defaultPorts[scheme]; !known {
		return URI{}, fmt.Errorf("wsuri: unsupported scheme %q", scheme)
	}

	authority, resource, hasResource := strings.Cut(rest, "/")
	if authority == "" {
		return URI{}, fmt.Errorf("wsuri: invalid uri %q: empty host", input)
	}
	if hasResource {
		resource = "/" + resource
	} else {
		resource = "/"
	}

	host, port, err := splitHostPort(authority, defaultPorts[scheme])
	if err != nil {
		return URI{}, fmt.Errorf("wsuri: invalid uri %q: %w", input, err)
	}

	return URI{scheme: scheme, host: host, port: port, resource: resource}, nil
}

// splitHostPort separates a "host", "host:port", "[v6]", or "[v6]:port"
// authority component, stripping IPv6 brackets and applying defaultPort
// when no port is present.
func splitHostPort(authority string, defaultPort int) (string, int, error) {
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", 0, fmt.Errorf("unterminated IPv6 literal in %q", authority)
		}
		host := authority[1:end]
		rest := authority[end+1:]
		if rest == "" {
			return host, defaultPort, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, fmt.Errorf("unexpected characters after IPv6 literal in %q", authority)
		}
		port, err := parsePort(rest[1:])
		if err != nil {
			return "", 0, err
		}
		return host, port, nil
	}

	host, portStr, ok := strings.Cut(authority, ":")
	if !ok {
		return authority, defaultPort, nil
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if n <= 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range (0, 65535]", n)
	}
	return n, nil
}

// Scheme returns the URI's scheme ("ws", "wss", "http", or "https").
func (u URI) Scheme() string { return u.scheme }

// Host returns the URI's host, without brackets if it was an IPv6 literal.
func (u URI) Host() string { return u.host }

// Port returns the URI's port, defaulted per-scheme if not explicit.
func (u URI) Port() int { return u.port }

// Resource returns the URI's path (and query, if any), defaulting to "/".
func (u URI) Resource() string { return u.resource }

// IsSecure reports whether the scheme implies TLS (wss or https).
func (u URI) IsSecure() bool {
	return u.scheme == "wss" || u.scheme == "https"
}

// Authority returns "host:port".
func (u URI) Authority() string {
	return fmt.Sprintf("%s:%d", hostForDisplay(u.host), u.port)
}

// String regenerates a canonical form, omitting the port when it equals the
// scheme's default.
func (u URI) String() string {
	if u.port == defaultPorts[u.scheme] {
		return fmt.Sprintf("%s://%s%s", u.scheme, hostForDisplay(u.host), u.resource)
	}
	return fmt.Sprintf("%s://%s:%d%s", u.scheme, hostForDisplay(u.host), u.port, u.resource)
}

func hostForDisplay(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}
