// Package session owns one client session with a worterbuch server.
//
// Ownership boundary:
//   - handshake negotiation (first frame only)
//   - the outbound command queue and its pump
//   - the inbound pump and the event bus it publishes to
//   - disconnect notification and shutdown of both pumps
//
// A Session runs exactly two goroutines. Commands leave in submission
// order; every subscriber sees events in arrival order. There is no ordering
// between the two directions.
package session
