// Package handlertest provides a capability-agnostic conformance suite for
// command handlers.
//
// The suite checks the handler contract: unknown names are refused without
// side effects, recognized names always end terminal, failed preconditions
// never reach the back-end, and back-end faults become Failed states.
package handlertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paphko/habpanelviewer/internal/command"
)

// Fixture is a freshly built handler together with controls over its
// environment.
type Fixture struct {
	Handler command.Handler

	// Deny makes the handler's precondition fail, e.g. by revoking permissions
	Deny func()

	// Break makes the back-end fail every operation
	Break func()

	// BackendCalls returns how many back-end operations were invoked
	BackendCalls func() int
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	HandlerName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

// RunConformance runs the complete conformance test suite for a handler.
// newFixture must return an independent fixture on every call.
func RunConformance(t *testing.T, newFixture func() Fixture) {
	startTime := time.Now()

	report := &ConformanceReport{
		HandlerName:   fmt.Sprintf("%T", newFixture().Handler),
		Results:       []ConformanceResult{},
		OverallPassed: true,
	}

	runDeclarationTests(t, newFixture, report)
	runRecognitionTests(t, newFixture, report)
	runSuccessTests(t, newFixture, report)
	runPreconditionTests(t, newFixture, report)
	runExecutionFailureTests(t, newFixture, report)
	runReporterTests(t, newFixture, report)
	runConcurrencyTests(t, newFixture, report)

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Handler conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// runDeclarationTests checks the declared command names.
func runDeclarationTests(t *testing.T, newFixture func() Fixture, report *ConformanceReport) {
	result := ConformanceResult{TestName: "Commands_Declared", Details: make(map[string]interface{})}
	start := time.Now()

	names := newFixture().Handler.Commands()
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" {
			result.Error = "empty command name declared"
		} else if seen[name] {
			result.Error = fmt.Sprintf("command %q declared twice", name)
		}
		seen[name] = true
	}
	if len(names) == 0 {
		result.Error = "no command names declared"
	}

	result.Duration = time.Since(start)
	result.Passed = result.Error == ""
	result.Details["commands"] = strings.Join(names, "|")
	report.addResult(result)
}

// runRecognitionTests checks that unknown names are refused with zero side effects.
func runRecognitionTests(t *testing.T, newFixture func() Fixture, report *ConformanceReport) {
	fx := newFixture()

	candidates := []string{"", "__UNKNOWN_COMMAND__"}
	for _, name := range fx.Handler.Commands() {
		// Names are case-sensitive
		if lower := strings.ToLower(name); lower != name {
			candidates = append(candidates, lower)
		}
		candidates = append(candidates, name+" ")
	}

	for _, name := range candidates {
		result := ConformanceResult{
			TestName: fmt.Sprintf("Recognition_Refuses_%q", name),
			Details:  make(map[string]interface{}),
		}
		start := time.Now()

		cmd := command.New(name)
		accepted := fx.Handler.TryHandle(context.Background(), cmd)
		result.Duration = time.Since(start)

		switch {
		case accepted:
			result.Error = "unknown command accepted"
		case cmd.State() != command.StateQueued:
			result.Error = fmt.Sprintf("refused command left in state %s", cmd.State())
		case fx.BackendCalls() != 0:
			result.Error = "refusing a command touched the back-end"
		default:
			result.Passed = true
		}
		report.addResult(result)
	}
}

// runSuccessTests checks the happy path for every declared name.
func runSuccessTests(t *testing.T, newFixture func() Fixture, report *ConformanceReport) {
	for _, name := range newFixture().Handler.Commands() {
		fx := newFixture()
		result := ConformanceResult{
			TestName: "Success_" + name,
			Details:  make(map[string]interface{}),
		}
		start := time.Now()

		cmd := command.New(name)
		accepted := fx.Handler.TryHandle(context.Background(), cmd)
		result.Duration = time.Since(start)

		switch {
		case !accepted:
			result.Error = "declared command refused"
		case cmd.State() != command.StateFinished:
			result.Error = fmt.Sprintf("expected FINISHED, got %s (%s)", cmd.State(), cmd.FailureReason())
		case cmd.FailureReason() != "":
			result.Error = "finished command carries a failure reason"
		default:
			result.Passed = true
			result.Details["backendCalls"] = fx.BackendCalls()
		}
		report.addResult(result)
	}
}

// runPreconditionTests checks that a failed precondition never reaches the back-end.
func runPreconditionTests(t *testing.T, newFixture func() Fixture, report *ConformanceReport) {
	for _, name := range newFixture().Handler.Commands() {
		fx := newFixture()
		result := ConformanceResult{
			TestName: "Precondition_" + name,
			Details:  make(map[string]interface{}),
		}
		if fx.Deny == nil {
			result.Passed = true
			result.Details["skipped"] = "no precondition"
			report.addResult(result)
			continue
		}
		fx.Deny()
		start := time.Now()

		cmd := command.New(name)
		accepted := fx.Handler.TryHandle(context.Background(), cmd)
		result.Duration = time.Since(start)
		snap := cmd.Snapshot()

		switch {
		case !accepted:
			result.Error = "owned command refused on precondition failure"
		case snap.State != command.StateFailed:
			result.Error = fmt.Sprintf("expected FAILED, got %s", snap.State)
		case !errors.Is(cmd.Failure(), command.ErrPreconditionFailed):
			result.Error = fmt.Sprintf("expected PRECONDITION_FAILED, got %s", snap.Kind)
		case snap.Reason == "":
			result.Error = "failed command has no reason"
		case !snap.StartedAt.IsZero():
			result.Error = "command was started despite precondition failure"
		case fx.BackendCalls() != 0:
			result.Error = "back-end invoked despite precondition failure"
		default:
			result.Passed = true
			result.Details["reason"] = snap.Reason
		}
		report.addResult(result)
	}
}

// runExecutionFailureTests checks that back-end faults become FAILED states.
// A name whose action can complete without the back-end may still finish.
func runExecutionFailureTests(t *testing.T, newFixture func() Fixture, report *ConformanceReport) {
	failures := 0
	for _, name := range newFixture().Handler.Commands() {
		fx := newFixture()
		result := ConformanceResult{
			TestName: "ExecutionFailure_" + name,
			Details:  make(map[string]interface{}),
		}
		fx.Break()
		start := time.Now()

		cmd := command.New(name)
		accepted := fx.Handler.TryHandle(context.Background(), cmd)
		result.Duration = time.Since(start)
		snap := cmd.Snapshot()

		switch {
		case !accepted:
			result.Error = "owned command refused on back-end failure"
		case !snap.State.Terminal():
			result.Error = fmt.Sprintf("expected terminal state, got %s", snap.State)
		case snap.State == command.StateFailed && !errors.Is(cmd.Failure(), command.ErrExecutionFailed):
			result.Error = fmt.Sprintf("expected EXECUTION_FAILED, got %s", snap.Kind)
		case snap.State == command.StateFailed && snap.Reason == "":
			result.Error = "failed command has no reason"
		default:
			result.Passed = true
			result.Details["state"] = snap.State.String()
			if snap.State == command.StateFailed {
				failures++
				result.Details["reason"] = snap.Reason
			}
		}
		report.addResult(result)
	}

	report.addResult(ConformanceResult{
		TestName: "ExecutionFailure_Observed",
		Passed:   failures > 0,
		Error:    map[bool]string{true: "", false: "no command failed with a broken back-end"}[failures > 0],
	})
}

// runReporterTests checks the transitions observed through a dispatcher.
func runReporterTests(t *testing.T, newFixture func() Fixture, report *ConformanceReport) {
	cases := []struct {
		label string
		setup func(fx Fixture)
		want  []command.State
	}{
		{"Success", nil, []command.State{command.StateStarted, command.StateFinished}},
		{"Precondition", func(fx Fixture) {
			if fx.Deny != nil {
				fx.Deny()
			}
		}, []command.State{command.StateFailed}},
	}

	name := newFixture().Handler.Commands()[0]
	for _, tc := range cases {
		fx := newFixture()
		if tc.label == "Precondition" && fx.Deny == nil {
			continue
		}
		if tc.setup != nil {
			tc.setup(fx)
		}
		result := ConformanceResult{
			TestName: "Reporter_" + tc.label,
			Details:  make(map[string]interface{}),
		}
		start := time.Now()

		var mu sync.Mutex
		var seen []command.State
		d := command.NewDispatcher(command.ReporterFunc(func(s command.Snapshot) {
			mu.Lock()
			seen = append(seen, s.State)
			mu.Unlock()
		}))
		if err := d.Register(fx.Handler); err != nil {
			result.Error = fmt.Sprintf("register failed: %v", err)
			report.addResult(result)
			continue
		}

		accepted := d.Dispatch(context.Background(), command.New(name))
		result.Duration = time.Since(start)

		mu.Lock()
		got := append([]command.State(nil), seen...)
		mu.Unlock()

		if !accepted {
			result.Error = "dispatch refused a declared command"
		} else if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			result.Error = fmt.Sprintf("expected transitions %v, got %v", tc.want, got)
		} else {
			result.Passed = true
		}
		report.addResult(result)
	}
}

// runConcurrencyTests checks that concurrent commands on one handler all end terminal.
func runConcurrencyTests(t *testing.T, newFixture func() Fixture, report *ConformanceReport) {
	fx := newFixture()
	names := fx.Handler.Commands()
	result := ConformanceResult{TestName: "Concurrency", Details: make(map[string]interface{})}
	start := time.Now()

	const workers = 16
	cmds := make([]*command.Command, workers)
	var wg sync.WaitGroup
	for i := range cmds {
		cmds[i] = command.New(names[i%len(names)])
		wg.Add(1)
		go func(cmd *command.Command) {
			defer wg.Done()
			fx.Handler.TryHandle(context.Background(), cmd)
		}(cmds[i])
	}
	wg.Wait()
	result.Duration = time.Since(start)

	result.Passed = true
	for _, cmd := range cmds {
		if !cmd.State().Terminal() {
			result.Passed = false
			result.Error = fmt.Sprintf("command %s left in state %s", cmd.Name(), cmd.State())
			break
		}
	}
	result.Details["commands"] = workers
	report.addResult(result)
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("\n%s", strings.Repeat("=", 80))
	t.Logf("HANDLER CONFORMANCE REPORT")
	t.Logf("%s", strings.Repeat("=", 80))
	t.Logf("Handler: %s", report.HandlerName)
	t.Logf("Total Tests: %d", report.TotalTests)
	t.Logf("Passed: %d", report.PassedTests)
	t.Logf("Failed: %d", report.FailedTests)
	t.Logf("Overall: %s", map[bool]string{true: "PASS", false: "FAIL"}[report.OverallPassed])
	t.Logf("Duration: %v", report.Duration)
	t.Logf("%s", strings.Repeat("-", 80))

	t.Logf("%-36s %-8s %-12s %-s", "TEST NAME", "RESULT", "DURATION", "DETAILS")
	t.Logf("%s", strings.Repeat("-", 80))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := ""
		if result.Error != "" {
			details = result.Error
		} else if len(result.Details) > 0 {
			var detailParts []string
			for k, v := range result.Details {
				detailParts = append(detailParts, fmt.Sprintf("%s=%v", k, v))
			}
			details = strings.Join(detailParts, ", ")
		}

		t.Logf("%-36s %-8s %-12s %-s",
			result.TestName,
			status,
			result.Duration.String(),
			details)
	}

	t.Logf("%s", strings.Repeat("=", 80))
}
