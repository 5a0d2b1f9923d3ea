package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// MockHandler is a configurable Handler for testing.
type MockHandler struct {
	Names         []string
	TryHandleFunc func(ctx context.Context, cmd *Command) bool

	mu    sync.Mutex
	Calls []string
}

func (m *MockHandler) Commands() []string {
	return m.Names
}

func (m *MockHandler) TryHandle(ctx context.Context, cmd *Command) bool {
	m.mu.Lock()
	m.Calls = append(m.Calls, cmd.Name())
	m.mu.Unlock()
	if m.TryHandleFunc != nil {
		return m.TryHandleFunc(ctx, cmd)
	}
	for _, name := range m.Names {
		if name == cmd.Name() {
			cmd.Start()
			cmd.Finish()
			return true
		}
	}
	return false
}

func (m *MockHandler) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockReporter records snapshots.
type MockReporter struct {
	mu    sync.Mutex
	Snaps []Snapshot
}

func (m *MockReporter) Notify(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Snaps = append(m.Snaps, s)
}

func (m *MockReporter) states() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	var states []State
	for _, s := range m.Snaps {
		states = append(states, s.State)
	}
	return states
}

func newTestDispatcher(t *testing.T, handlers ...Handler) (*Dispatcher, *MockReporter) {
	t.Helper()
	rep := &MockReporter{}
	d := NewDispatcher(rep)
	if err := d.Register(handlers...); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return d, rep
}

func TestDispatchFirstMatchWins(t *testing.T) {
	radio := &MockHandler{Names: []string{"RADIO_ON", "RADIO_OFF"}}
	bt := &MockHandler{Names: []string{"BLUETOOTH_ON", "BLUETOOTH_OFF"}}
	d, rep := newTestDispatcher(t, radio, bt)

	cmd := New("BLUETOOTH_ON")
	if !d.Dispatch(context.Background(), cmd) {
		t.Fatal("Dispatch returned false")
	}
	if cmd.State() != StateFinished {
		t.Errorf("Expected FINISHED, got %s", cmd.State())
	}
	if radio.callCount() != 1 || bt.callCount() != 1 {
		t.Errorf("Expected both handlers offered once, got %d/%d", radio.callCount(), bt.callCount())
	}

	want := []State{StateStarted, StateFinished}
	if got := rep.states(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected transitions %v, got %v", want, got)
	}

	// Stops at the first accepting handler
	cmd = New("RADIO_OFF")
	d.Dispatch(context.Background(), cmd)
	if bt.callCount() != 1 {
		t.Errorf("Expected later handler not offered, got %d calls", bt.callCount())
	}
}

func TestDispatchUnrecognized(t *testing.T) {
	h := &MockHandler{Names: []string{"RADIO_ON", "RADIO_OFF"}}
	d, rep := newTestDispatcher(t, h)

	for _, name := range []string{"UNKNOWN_CMD", "radio_on", ""} {
		cmd := New(name)
		if d.Dispatch(context.Background(), cmd) {
			t.Errorf("Dispatch(%q) returned true", name)
		}
		if cmd.State() != StateQueued {
			t.Errorf("Dispatch(%q) left state %s, want QUEUED", name, cmd.State())
		}
	}
	if len(rep.states()) != 0 {
		t.Errorf("Expected no transitions, got %v", rep.states())
	}
}

func TestDispatchNoHandlers(t *testing.T) {
	d := NewDispatcher(nil)
	cmd := New("RADIO_ON")
	if d.Dispatch(context.Background(), cmd) {
		t.Error("Dispatch with no handlers returned true")
	}
	if d.Dispatch(context.Background(), nil) {
		t.Error("Dispatch(nil) returned true")
	}
}

func TestDispatchOverlapDeterministic(t *testing.T) {
	// Handlers that claim names they do not declare model a misconfiguration
	greedy := func(id string, winners *[]string, mu *sync.Mutex) *MockHandler {
		return &MockHandler{
			Names: []string{"GREEDY_" + id},
			TryHandleFunc: func(ctx context.Context, cmd *Command) bool {
				if cmd.Name() != "SHARED" {
					return false
				}
				mu.Lock()
				*winners = append(*winners, id)
				mu.Unlock()
				cmd.Start()
				cmd.Finish()
				return true
			},
		}
	}

	for i := 0; i < 20; i++ {
		var mu sync.Mutex
		var winners []string
		d, _ := newTestDispatcher(t, greedy("A", &winners, &mu), greedy("B", &winners, &mu))
		if !d.Dispatch(context.Background(), New("SHARED")) {
			t.Fatal("Dispatch returned false")
		}
		if len(winners) != 1 || winners[0] != "A" {
			t.Fatalf("Expected first registered handler to win, got %v", winners)
		}
	}
}

func TestDispatchPreconditionFailure(t *testing.T) {
	actionRan := false
	h := &MockHandler{
		Names: []string{"RADIO_ON"},
		TryHandleFunc: func(ctx context.Context, cmd *Command) bool {
			if cmd.Name() != "RADIO_ON" {
				return false
			}
			Run(ctx, cmd,
				func(ctx context.Context) (string, bool) { return "permission missing", false },
				func(ctx context.Context) error { actionRan = true; return nil })
			return true
		},
	}
	d, rep := newTestDispatcher(t, h)

	cmd := New("RADIO_ON")
	if !d.Dispatch(context.Background(), cmd) {
		t.Fatal("Dispatch returned false")
	}
	if cmd.State() != StateFailed || cmd.FailureReason() != "permission missing" {
		t.Errorf("Expected FAILED/permission missing, got %s/%q", cmd.State(), cmd.FailureReason())
	}
	if actionRan {
		t.Error("Action ran despite precondition failure")
	}
	if got := rep.states(); fmt.Sprint(got) != fmt.Sprint([]State{StateFailed}) {
		t.Errorf("Expected only FAILED transition, got %v", got)
	}
}

func TestDispatchHandlerFaults(t *testing.T) {
	tests := []struct {
		name         string
		handle       func(ctx context.Context, cmd *Command) bool
		wantAccepted bool
		wantState    State
		wantReason   string
	}{
		{
			name: "panic before start is not acceptance",
			handle: func(ctx context.Context, cmd *Command) bool {
				panic("lookup failed")
			},
			wantAccepted: false,
			wantState:    StateQueued,
		},
		{
			name: "panic after start fails the command",
			handle: func(ctx context.Context, cmd *Command) bool {
				cmd.Start()
				panic("adapter exploded")
			},
			wantAccepted: true,
			wantState:    StateFailed,
			wantReason:   "panic: adapter exploded",
		},
		{
			name: "panic after terminal keeps outcome",
			handle: func(ctx context.Context, cmd *Command) bool {
				cmd.Start()
				cmd.Finish()
				cmd.Finish()
				return true
			},
			wantAccepted: true,
			wantState:    StateFinished,
		},
		{
			name: "accepted but left started",
			handle: func(ctx context.Context, cmd *Command) bool {
				cmd.Start()
				return true
			},
			wantAccepted: true,
			wantState:    StateFailed,
			wantReason:   "handler returned in state STARTED",
		},
		{
			name: "accepted but left queued",
			handle: func(ctx context.Context, cmd *Command) bool {
				return true
			},
			wantAccepted: true,
			wantState:    StateFailed,
			wantReason:   "handler returned in state QUEUED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &MockHandler{Names: []string{"FAULTY"}, TryHandleFunc: tt.handle}
			d, _ := newTestDispatcher(t, h)

			cmd := New("FAULTY")
			accepted := d.Dispatch(context.Background(), cmd)
			if accepted != tt.wantAccepted {
				t.Errorf("Expected accepted=%v, got %v", tt.wantAccepted, accepted)
			}
			if cmd.State() != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, cmd.State())
			}
			if cmd.FailureReason() != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, cmd.FailureReason())
			}
		})
	}
}

func TestDispatchPanicFallsThroughToNextHandler(t *testing.T) {
	broken := &MockHandler{
		Names:         []string{"BROKEN"},
		TryHandleFunc: func(ctx context.Context, cmd *Command) bool { panic("bad handler") },
	}
	good := &MockHandler{Names: []string{"RADIO_ON"}}
	d, _ := newTestDispatcher(t, broken, good)

	cmd := New("RADIO_ON")
	if !d.Dispatch(context.Background(), cmd) {
		t.Fatal("Dispatch returned false")
	}
	if cmd.State() != StateFinished {
		t.Errorf("Expected FINISHED, got %s", cmd.State())
	}
}

func TestDispatchRefusesNonQueued(t *testing.T) {
	h := &MockHandler{Names: []string{"RADIO_ON"}}
	d, _ := newTestDispatcher(t, h)

	cmd := New("RADIO_ON")
	if !d.Dispatch(context.Background(), cmd) {
		t.Fatal("first Dispatch returned false")
	}
	if d.Dispatch(context.Background(), cmd) {
		t.Error("second Dispatch of a finished command returned true")
	}
	if h.callCount() != 1 {
		t.Errorf("Expected handler offered once, got %d", h.callCount())
	}
}

func TestDispatchDetachesReporter(t *testing.T) {
	var held *Command
	h := &MockHandler{
		Names: []string{"RADIO_ON"},
		TryHandleFunc: func(ctx context.Context, cmd *Command) bool {
			if cmd.Name() != "RADIO_ON" {
				return false
			}
			held = cmd
			cmd.Start()
			cmd.Finish()
			return true
		},
	}
	d, rep := newTestDispatcher(t, h)
	d.Dispatch(context.Background(), New("RADIO_ON"))

	before := len(rep.states())
	// A transition attempted after Dispatch returns is not reported
	func() {
		defer func() { _ = recover() }()
		held.Finish()
	}()
	if len(rep.states()) != before {
		t.Error("Reporter notified after Dispatch returned")
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		existing []Handler
		add      []Handler
		want     error
	}{
		{"nil handler", nil, []Handler{nil}, ErrInvalidHandler},
		{"no names", nil, []Handler{&MockHandler{}}, ErrInvalidHandler},
		{"empty name", nil, []Handler{&MockHandler{Names: []string{""}}}, ErrInvalidHandler},
		{"duplicate within handler", nil, []Handler{&MockHandler{Names: []string{"A", "A"}}}, ErrDuplicateCommand},
		{"duplicate within batch", nil, []Handler{
			&MockHandler{Names: []string{"A"}},
			&MockHandler{Names: []string{"B", "A"}},
		}, ErrDuplicateCommand},
		{"duplicate with existing", []Handler{&MockHandler{Names: []string{"A"}}}, []Handler{&MockHandler{Names: []string{"A"}}}, ErrDuplicateCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(nil)
			if err := d.Register(tt.existing...); err != nil {
				t.Fatalf("Register existing failed: %v", err)
			}
			before := len(d.Handlers())

			err := d.Register(tt.add...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			// Failed registration has no side effects
			if len(d.Handlers()) != before {
				t.Errorf("Expected %d handlers after failed Register, got %d", before, len(d.Handlers()))
			}
			if err := d.Register(&MockHandler{Names: []string{"B"}}); err != nil {
				t.Errorf("Expected no names recorded from a failed registration, got %v", err)
			}
		})
	}
}

// describedHandler adds a description to MockHandler.
type describedHandler struct {
	MockHandler
}

func (*describedHandler) Description() string { return "radio toggle" }

func TestHandlersIntrospection(t *testing.T) {
	d, _ := newTestDispatcher(t,
		&describedHandler{MockHandler{Names: []string{"RADIO_ON", "RADIO_OFF"}}},
		&MockHandler{Names: []string{"CAPTURE_START"}},
	)

	infos := d.Handlers()
	if len(infos) != 2 {
		t.Fatalf("Expected 2 handlers, got %d", len(infos))
	}
	if infos[0].Index != 0 || infos[0].Description != "radio toggle" || strings.Join(infos[0].Commands, ",") != "RADIO_ON,RADIO_OFF" {
		t.Errorf("Unexpected first handler info: %+v", infos[0])
	}
	if infos[1].Index != 1 || infos[1].Description != "" {
		t.Errorf("Unexpected second handler info: %+v", infos[1])
	}
}

func TestConcurrentDispatch(t *testing.T) {
	h := &MockHandler{Names: []string{"RADIO_ON", "RADIO_OFF"}}
	d, rep := newTestDispatcher(t, h)

	const n = 50
	var wg sync.WaitGroup
	cmds := make([]*Command, n)
	for i := range cmds {
		name := "RADIO_ON"
		if i%2 == 1 {
			name = "RADIO_OFF"
		}
		cmds[i] = New(name)
		wg.Add(1)
		go func(cmd *Command) {
			defer wg.Done()
			d.Dispatch(context.Background(), cmd)
		}(cmds[i])
	}
	wg.Wait()

	for _, cmd := range cmds {
		if cmd.State() != StateFinished {
			t.Errorf("Command %s ended in %s", cmd.ID(), cmd.State())
		}
	}
	if got := len(rep.states()); got != 2*n {
		t.Errorf("Expected %d notifications, got %d", 2*n, got)
	}
}

func TestDispatchSurvivesPanickingReporter(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(ReporterFunc(func(Snapshot) { panic("reporter down") }))
	d.SetLogger(log.New(&buf, "", 0))
	if err := d.Register(&MockHandler{Names: []string{"RADIO_ON"}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	cmd := New("RADIO_ON")
	var accepted bool
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Dispatch panicked: %v", r)
			}
		}()
		accepted = d.Dispatch(context.Background(), cmd)
	}()

	if !accepted {
		t.Fatal("Expected command accepted")
	}
	if cmd.State() != StateFinished {
		t.Errorf("Expected FINISHED despite reporter panic, got %s (%s)", cmd.State(), cmd.FailureReason())
	}
	if !strings.Contains(buf.String(), "reporter panicked on STARTED: reporter down") {
		t.Errorf("Expected reporter panic logged, got %q", buf.String())
	}
}

func TestDispatchLogging(t *testing.T) {
	var buf bytes.Buffer
	h := &MockHandler{Names: []string{"RADIO_ON"}}
	d, _ := newTestDispatcher(t, h)
	d.SetLogger(log.New(&buf, "", 0))

	d.Dispatch(context.Background(), New("RADIO_ON"))
	d.Dispatch(context.Background(), New("NOPE"))

	out := buf.String()
	if !strings.Contains(out, "dispatch RADIO_ON") || !strings.Contains(out, "finished") {
		t.Errorf("Expected finished log line, got %q", out)
	}
	if !strings.Contains(out, "UNRECOGNIZED_COMMAND") {
		t.Errorf("Expected unrecognized log line, got %q", out)
	}
}

func TestDispatchTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ok := &MockHandler{Names: []string{"RADIO_ON"}}
	failing := &MockHandler{
		Names: []string{"RADIO_OFF"},
		TryHandleFunc: func(ctx context.Context, cmd *Command) bool {
			if cmd.Name() != "RADIO_OFF" {
				return false
			}
			cmd.Start()
			cmd.Fail(ErrExecutionFailed, "stuck")
			return true
		},
	}
	d, _ := newTestDispatcher(t, ok, failing)
	d.SetTracerProvider(tp)

	d.Dispatch(context.Background(), New("RADIO_ON"))
	d.Dispatch(context.Background(), New("RADIO_OFF"))
	d.Dispatch(context.Background(), New("NOPE"))

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("Expected 3 spans, got %d", len(spans))
	}

	attrs := func(i int) map[attribute.Key]attribute.Value {
		m := make(map[attribute.Key]attribute.Value)
		for _, kv := range spans[i].Attributes() {
			m[kv.Key] = kv.Value
		}
		return m
	}

	for i, span := range spans {
		if span.Name() != "command.dispatch" {
			t.Errorf("span %d: unexpected name %q", i, span.Name())
		}
	}

	first := attrs(0)
	if first["command.name"].AsString() != "RADIO_ON" || !first["command.accepted"].AsBool() || first["command.state"].AsString() != "FINISHED" {
		t.Errorf("Unexpected attributes on success span: %v", first)
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("Expected success span without error status")
	}

	second := attrs(1)
	if second["command.state"].AsString() != "FAILED" || spans[1].Status().Code != codes.Error || spans[1].Status().Description != "stuck" {
		t.Errorf("Unexpected failure span: %v %v", second, spans[1].Status())
	}

	third := attrs(2)
	if third["command.accepted"].AsBool() || spans[2].Status().Description != "UNRECOGNIZED_COMMAND" {
		t.Errorf("Unexpected unrecognized span: %v %v", third, spans[2].Status())
	}
}
