// Package command implements the command dispatch and lifecycle engine.
//
// A Command is created by the caller in the Queued state and handed to a
// Dispatcher, which offers it to each registered Handler in registration order.
// The first Handler that recognizes the command name owns it and drives it
// through Started to Finished, or to Failed with a reason. Every transition is
// reported to the configured Reporter as a Snapshot.
//
// Failure taxonomy:
//   - ErrUnrecognizedCommand: no handler accepted the command (Dispatch returns false)
//   - ErrPreconditionFailed: the owning handler refused to run, e.g. missing permission
//   - ErrExecutionFailed: the capability action returned an error or panicked
package command
