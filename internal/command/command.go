package command

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a command.
type State int

const (
	StateQueued State = iota
	StateStarted
	StateFinished
	StateFailed
)

var stateNames = map[State]string{
	StateQueued:   "QUEUED",
	StateStarted:  "STARTED",
	StateFinished: "FINISHED",
	StateFailed:   "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition is permitted.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown command state %q", string(text))
}

// Snapshot is an immutable copy of a command at one point of its lifecycle.
type Snapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"command"`
	Issuer     string    `json:"issuer,omitempty"`
	State      State     `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Code       string    `json:"code,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// Latency returns the time from creation to the terminal transition, or zero
// while the command is still running.
func (s Snapshot) Latency() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.CreatedAt)
}

// Command is a named unit of work carrying lifecycle state.
//
// The name and ID are immutable. State is mutated only through Start, Finish
// and Fail by the handler that accepted the command.
type Command struct {
	id        string
	name      string
	issuer    string
	createdAt time.Time

	mu         sync.Mutex
	state      State
	failure    *Failure
	startedAt  time.Time
	finishedAt time.Time

	// Set by the dispatcher for the duration of Dispatch
	observer Reporter
}

// Option configures a new Command.
type Option func(*Command)

// WithIssuer records who issued the command, e.g. a token subject.
func WithIssuer(issuer string) Option {
	return func(c *Command) {
		c.issuer = issuer
	}
}

// New creates a command in the Queued state.
func New(name string, opts ...Option) *Command {
	c := &Command{
		id:        uuid.NewString(),
		name:      name,
		createdAt: time.Now().UTC(),
		state:     StateQueued,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the unique command identifier.
func (c *Command) ID() string {
	return c.id
}

// Name returns the case-sensitive command name.
func (c *Command) Name() string {
	return c.name
}

// Issuer returns who issued the command, or "" if unknown.
func (c *Command) Issuer() string {
	return c.issuer
}

// State returns the current lifecycle state.
func (c *Command) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FailureReason returns the failure reason, or "" unless the command failed.
func (c *Command) FailureReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure == nil {
		return ""
	}
	return c.failure.Reason
}

// Failure returns the failure record, or nil unless the command failed.
func (c *Command) Failure() *Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Start moves the command from Queued to Started.
func (c *Command) Start() {
	c.transition(StateStarted, func() {
		c.startedAt = time.Now().UTC()
	}, StateQueued)
}

// Finish moves the command from Started to Finished.
func (c *Command) Finish() {
	c.transition(StateFinished, func() {
		c.finishedAt = time.Now().UTC()
	}, StateStarted)
}

// Fail moves the command to Failed from Queued (precondition failures) or
// Started (execution failures). An empty reason is replaced by the kind.
func (c *Command) Fail(kind error, reason string) {
	c.fail(&Failure{Kind: kind, Reason: reason})
}

// FailWith records an execution failure caused by err. The reason is the
// error text; errors carrying a normalized code contribute it to the failure.
func (c *Command) FailWith(err error) {
	f := &Failure{Kind: ErrExecutionFailed, Reason: "unknown error", Cause: err}
	if err != nil {
		f.Reason = err.Error()
		var reasoned interface{ Reason() string }
		if errors.As(err, &reasoned) {
			f.Reason = reasoned.Reason()
		}
		var coded interface{ ErrorCode() string }
		if errors.As(err, &coded) {
			f.Code = coded.ErrorCode()
		}
	}
	c.fail(f)
}

func (c *Command) fail(f *Failure) {
	if f.Kind == nil {
		f.Kind = ErrExecutionFailed
	}
	if f.Reason == "" {
		f.Reason = f.Kind.Error()
	}
	c.transition(StateFailed, func() {
		c.failure = f
		c.finishedAt = time.Now().UTC()
	}, StateQueued, StateStarted)
}

// transition applies mutate under lock if the current state is one of from,
// then notifies the observer outside the lock.
func (c *Command) transition(to State, mutate func(), from ...State) {
	c.mu.Lock()
	allowed := false
	for _, s := range from {
		if c.state == s {
			allowed = true
			break
		}
	}
	if !allowed {
		current := c.state
		c.mu.Unlock()
		panic(&TransitionError{Command: c.name, From: current, To: to})
	}
	c.state = to
	mutate()
	snap := c.snapshotLocked()
	observer := c.observer
	c.mu.Unlock()

	if observer != nil {
		observer.Notify(snap)
	}
}

// Snapshot returns a copy of the command's current state.
func (c *Command) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Command) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         c.id,
		Name:       c.name,
		Issuer:     c.issuer,
		State:      c.state,
		CreatedAt:  c.createdAt,
		StartedAt:  c.startedAt,
		FinishedAt: c.finishedAt,
	}
	if c.failure != nil {
		snap.Reason = c.failure.Reason
		snap.Kind = c.failure.KindCode()
		snap.Code = c.failure.Code
	}
	return snap
}

func (c *Command) setObserver(r Reporter) {
	c.mu.Lock()
	c.observer = r
	c.mu.Unlock()
}
