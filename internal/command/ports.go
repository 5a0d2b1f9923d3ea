package command

import "context"

// Handler recognizes and executes a fixed set of command names against one
// device capability.
type Handler interface {
	// Commands returns the exact names this handler recognizes.
	Commands() []string

	// TryHandle returns false without side effects if the command name is not
	// one of Commands(). Otherwise it drives the command to a terminal state
	// and returns true, whether execution finished or failed.
	TryHandle(ctx context.Context, cmd *Command) bool
}

// Describer is implemented by handlers that provide a human-readable summary.
type Describer interface {
	Description() string
}

// Reporter observes command state transitions. Notify must not block for long;
// wrap slow reporters with report.Async.
type Reporter interface {
	Notify(snap Snapshot)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(snap Snapshot)

// Notify calls f(snap).
func (f ReporterFunc) Notify(snap Snapshot) {
	f(snap)
}

// HandlerInfo describes a registered handler.
type HandlerInfo struct {
	Index       int      `json:"index"`
	Commands    []string `json:"commands"`
	Description string   `json:"description,omitempty"`
}
