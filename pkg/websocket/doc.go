// Package websocket implements the core of the WebSocket protocol
// (RFC 6455, plus the earlier hybi-07/08 and Hixie-76 drafts) on top of an
// abstract byte-stream [Transport]: handshake validation and generation,
// frame parsing and serialization with fragmentation, the connection
// lifecycle state machine, and a per-connection write queue with a single
// writer in flight.
//
// The package is usable from both sides of a connection: an [Endpoint]
// accepts inbound upgrades (server) and dials outbound ones (client),
// producing [Connection] values that deliver events through a [Handlers]
// record and are referred to by opaque [Handle] tokens.
//
// Concrete network I/O, TLS setup, and logging backends are external
// collaborators: the engine only reads/writes a [Transport] and emits
// structured events to a pluggable sink.
package websocket
