package command

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/paphko/habpanelviewer/internal/command"

// Dispatcher routes commands to the first registered handler that accepts them.
//
// Handlers are registered once at startup; after that the dispatcher only
// reads its registration list and is safe for concurrent Dispatch calls.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
	owners   map[string]int // command name -> handler index

	// Reporter for lifecycle snapshots
	reporter Reporter

	// Optional diagnostics
	logger *log.Logger
	tracer trace.Tracer
}

// NewDispatcher creates a dispatcher that reports transitions to reporter.
// A nil reporter disables reporting.
func NewDispatcher(reporter Reporter) *Dispatcher {
	return &Dispatcher{
		owners:   make(map[string]int),
		reporter: reporter,
		tracer:   otel.Tracer(tracerName),
	}
}

// SetLogger sets the logger for dispatch outcomes. nil disables logging.
func (d *Dispatcher) SetLogger(logger *log.Logger) {
	d.logger = logger
}

// SetTracerProvider replaces the tracer provider used for dispatch spans.
func (d *Dispatcher) SetTracerProvider(tp trace.TracerProvider) {
	d.tracer = tp.Tracer(tracerName)
}

// Register appends handlers in order. Registration fails without side effects
// if a handler declares no names, an empty name, or a name already owned by
// another handler.
func (d *Dispatcher) Register(handlers ...Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := make(map[string]int)
	for i, h := range handlers {
		if h == nil {
			return fmt.Errorf("%w: handler %d is nil", ErrInvalidHandler, i)
		}
		names := h.Commands()
		if len(names) == 0 {
			return fmt.Errorf("%w: handler %T declares no commands", ErrInvalidHandler, h)
		}
		index := len(d.handlers) + i
		for _, name := range names {
			if name == "" {
				return fmt.Errorf("%w: handler %T declares an empty command name", ErrInvalidHandler, h)
			}
			if owner, exists := d.owners[name]; exists {
				return fmt.Errorf("%w: %q already handled by %T", ErrDuplicateCommand, name, d.handlers[owner])
			}
			if _, exists := pending[name]; exists {
				return fmt.Errorf("%w: %q declared twice in one registration", ErrDuplicateCommand, name)
			}
			pending[name] = index
		}
	}

	for name, index := range pending {
		d.owners[name] = index
	}
	d.handlers = append(d.handlers, handlers...)
	return nil
}

// Handlers describes the registered handlers in routing order.
func (d *Dispatcher) Handlers() []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]HandlerInfo, 0, len(d.handlers))
	for i, h := range d.handlers {
		info := HandlerInfo{
			Index:    i,
			Commands: append([]string(nil), h.Commands()...),
		}
		if desc, ok := h.(Describer); ok {
			info.Description = desc.Description()
		}
		infos = append(infos, info)
	}
	return infos
}

// Dispatch offers cmd to each handler in registration order. It returns true
// once a handler accepts the command, which is then in a terminal state. It
// returns false, leaving cmd Queued, if no handler accepts it or cmd was not
// Queued to begin with. Dispatch never panics on handler or reporter faults.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) bool {
	if cmd == nil {
		return false
	}

	ctx, span := d.tracer.Start(ctx, "command.dispatch", trace.WithAttributes(
		attribute.String("command.name", cmd.Name()),
		attribute.String("command.id", cmd.ID()),
	))
	defer span.End()

	if state := cmd.State(); state != StateQueued {
		d.logf("dispatch %s (%s): refused, state is %s", cmd.Name(), cmd.ID(), state)
		span.SetAttributes(attribute.Bool("command.accepted", false))
		span.SetStatus(codes.Error, "command not queued")
		return false
	}

	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	if d.reporter != nil {
		cmd.setObserver(ReporterFunc(d.notify))
		defer cmd.setObserver(nil)
	}

	start := time.Now()
	for _, h := range handlers {
		if !d.offer(ctx, h, cmd) {
			continue
		}

		snap := cmd.Snapshot()
		span.SetAttributes(
			attribute.Bool("command.accepted", true),
			attribute.String("command.state", snap.State.String()),
		)
		if snap.State == StateFailed {
			span.SetStatus(codes.Error, snap.Reason)
			d.logf("dispatch %s (%s): failed after %v: %s", snap.Name, snap.ID, time.Since(start), snap.Reason)
		} else {
			d.logf("dispatch %s (%s): finished after %v", snap.Name, snap.ID, time.Since(start))
		}
		return true
	}

	span.SetAttributes(attribute.Bool("command.accepted", false))
	span.SetStatus(codes.Error, ErrUnrecognizedCommand.Error())
	d.logf("dispatch %s (%s): %v", cmd.Name(), cmd.ID(), ErrUnrecognizedCommand)
	return false
}

// offer calls h.TryHandle and contains handler faults. A handler that panics
// before touching the command is treated as not accepting it; one that panics
// after Start has its command failed.
func (d *Dispatcher) offer(ctx context.Context, h Handler, cmd *Command) (accepted bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		d.logf("dispatch %s (%s): handler %T panicked: %v", cmd.Name(), cmd.ID(), h, r)
		switch cmd.State() {
		case StateQueued:
			accepted = false
		case StateStarted:
			cmd.Fail(ErrExecutionFailed, fmt.Sprintf("panic: %v", r))
			accepted = true
		default:
			accepted = true
		}
	}()

	if !h.TryHandle(ctx, cmd) {
		return false
	}

	// A handler that accepts must leave the command terminal.
	if state := cmd.State(); !state.Terminal() {
		d.logf("dispatch %s (%s): handler %T returned in state %s", cmd.Name(), cmd.ID(), h, state)
		cmd.Fail(ErrExecutionFailed, fmt.Sprintf("handler returned in state %s", state))
	}
	return true
}

// notify forwards snap to the reporter. A reporter panic is logged and never
// reaches the handler or the command.
func (d *Dispatcher) notify(snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			d.logf("dispatch %s (%s): reporter panicked on %s: %v", snap.Name, snap.ID, snap.State, r)
		}
	}()
	d.reporter.Notify(snap)
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}
