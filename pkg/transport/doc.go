// Package transport defines the session transports that connect mesh
// neighbors and a session manager that enforces a single canonical session
// per neighbor.
//
// Key concepts:
// - Transport: dials/listens for Sessions of a specific Kind (QUIC/TCP/UDP/etc.)
// - Session: a bidirectional connection to a neighbor
// - Stream: a Send/Recv channel of opaque frames (one mesh packet each)
// - Manager: deduplicates concurrent sessions to the same neighbor address
package transport
