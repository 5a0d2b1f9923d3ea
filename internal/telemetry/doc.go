// Package telemetry implements the SSE hub that streams command lifecycle
// events.
//
// The hub is a command.Reporter: every transition becomes a commandStarted,
// commandFinished or commandFailed event with a monotonic id. The last N
// events are buffered so reconnecting clients can resume with Last-Event-ID.
package telemetry
