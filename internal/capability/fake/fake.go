// Package fake provides in-memory capability back-ends for tests and demo mode.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/paphko/habpanelviewer/internal/capability"
)

// Toggler implements capability.Toggler in memory.
type Toggler struct {
	capability.Base

	mu      sync.Mutex
	enabled bool

	// Call counters
	enableCalls  int
	disableCalls int

	// Error simulation
	simulateErrors bool
	errorType      string
	panicMessage   string
}

// NewToggler creates a fake toggler that starts disabled.
func NewToggler(id string) *Toggler {
	return &Toggler{
		Base: capability.Base{ID: id, Vendor: "generic"},
	}
}

// Enable switches the fake subsystem on.
func (f *Toggler) Enable(ctx context.Context) error {
	return f.set(ctx, true)
}

// Disable switches the fake subsystem off.
func (f *Toggler) Disable(ctx context.Context) error {
	return f.set(ctx, false)
}

func (f *Toggler) set(ctx context.Context, on bool) error {
	// Check for context cancellation
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if on {
		f.enableCalls++
	} else {
		f.disableCalls++
	}

	if f.panicMessage != "" {
		panic(f.panicMessage)
	}
	if f.simulateErrors {
		return f.getSimulatedError()
	}

	f.enabled = on
	return nil
}

// Helper methods for testing

// SetErrorSimulation makes every call fail with an error of errorType.
func (f *Toggler) SetErrorSimulation(errorType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = true
	f.errorType = errorType
}

// SetPanicSimulation makes Enable and Disable panic with message.
func (f *Toggler) SetPanicSimulation(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicMessage = message
}

// DisableErrorSimulation restores normal behavior.
func (f *Toggler) DisableErrorSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulateErrors = false
	f.errorType = ""
	f.panicMessage = ""
}

// Calls returns how many times Enable and Disable were invoked.
func (f *Toggler) Calls() (enable, disable int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enableCalls, f.disableCalls
}

// IsEnabled returns the internal state without context checks (for testing).
func (f *Toggler) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// getSimulatedError returns an error for the configured type. Caller holds f.mu.
func (f *Toggler) getSimulatedError() error {
	return simulatedError(f.errorType)
}

// Capturer implements capability.Capturer in memory.
type Capturer struct {
	capability.Base

	mu      sync.Mutex
	running bool

	startCalls int
	stopCalls  int

	simulateErrors bool
	errorType      string
}

// NewCapturer creates an idle fake capture session.
func NewCapturer() *Capturer {
	return &Capturer{
		Base: capability.Base{ID: "capture", Vendor: "generic"},
	}
}

// Start begins the fake capture session.
func (c *Capturer) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.startCalls++
	if c.simulateErrors {
		return simulatedError(c.errorType)
	}
	c.running = true
	return nil
}

// Stop ends the fake capture session.
func (c *Capturer) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopCalls++
	if c.simulateErrors {
		return simulatedError(c.errorType)
	}
	c.running = false
	return nil
}

// Ready reports whether the fake session is running.
func (c *Capturer) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetErrorSimulation makes Start and Stop fail with an error of errorType.
func (c *Capturer) SetErrorSimulation(errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulateErrors = true
	c.errorType = errorType
}

// DisableErrorSimulation restores normal behavior.
func (c *Capturer) DisableErrorSimulation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulateErrors = false
	c.errorType = ""
}

// Calls returns how many times Start and Stop were invoked.
func (c *Capturer) Calls() (start, stop int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startCalls, c.stopCalls
}

// simulatedError returns a back-end style error carrying the given token.
func simulatedError(errorType string) error {
	switch errorType {
	case "UNAVAILABLE":
		return fmt.Errorf("UNAVAILABLE: simulated unavailable error")
	case "BUSY":
		return fmt.Errorf("BUSY: simulated busy error")
	case "PERMISSION":
		return fmt.Errorf("PERMISSION_DENIED: simulated security error")
	case "INTERNAL":
		return fmt.Errorf("INTERNAL: simulated internal error")
	default:
		return fmt.Errorf("unknown simulated error")
	}
}

// Compile-time interface checks
var (
	_ capability.Toggler  = (*Toggler)(nil)
	_ capability.Capturer = (*Capturer)(nil)
)
