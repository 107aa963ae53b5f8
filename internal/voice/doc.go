// Package voice implements Aria's realtime voice session gateway.
//
// It owns the per-connection protocol state machine (authenticate, command,
// audio streaming, status, teardown), the registry of live connections and
// in-flight audio streams, and the capability boundaries toward the
// coordinator and the speech services.
//
// Events belonging to one connection are processed in arrival order by a
// single worker goroutine fed from an ordered queue; connections never block
// one another.
package voice
