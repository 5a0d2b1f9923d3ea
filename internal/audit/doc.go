// Package audit implements the audit reporter for dispatched commands.
//
// Every lifecycle notification becomes one JSON line with the issuing user,
// command id and name, state, failure reason and kind, and latency. The file
// rotates by size through lumberjack.
package audit
