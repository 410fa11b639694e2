// Package server implements the QuickChat relay: a room-based WebSocket
// message relay that transports end-to-end encrypted payloads without ever
// seeing plaintext.
//
// The implementation is organized into specialized files for configuration,
// the room registry, hub orchestration, connection clients, routing, and
// HTTP handlers to keep the codebase maintainable and testable as the
// project grows.
package server
