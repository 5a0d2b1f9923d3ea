package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/paphko/habpanelviewer/internal/capability"
)

func TestTogglerBasicFunctionality(t *testing.T) {
	toggler := NewToggler("radio")
	ctx := context.Background()

	if toggler.IsEnabled() {
		t.Error("Expected new toggler to start disabled")
	}

	if err := toggler.Enable(ctx); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if !toggler.IsEnabled() {
		t.Error("Expected toggler enabled after Enable")
	}

	if err := toggler.Disable(ctx); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if toggler.IsEnabled() {
		t.Error("Expected toggler disabled after Disable")
	}

	enableCalls, disableCalls := toggler.Calls()
	if enableCalls != 1 || disableCalls != 1 {
		t.Errorf("Expected 1/1 calls, got %d/%d", enableCalls, disableCalls)
	}

	var identity capability.Identity = toggler
	if identity.GetID() != "radio" || identity.GetVendor() != "generic" {
		t.Errorf("Expected radio/generic, got %q/%q", identity.GetID(), identity.GetVendor())
	}
}

func TestTogglerErrorSimulation(t *testing.T) {
	tests := []struct {
		errorType    string
		expectedCode error
	}{
		{"UNAVAILABLE", capability.ErrUnavailable},
		{"BUSY", capability.ErrBusy},
		{"PERMISSION", capability.ErrPermissionDenied},
		{"INTERNAL", capability.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.errorType, func(t *testing.T) {
			toggler := NewToggler("bluetooth")
			toggler.SetErrorSimulation(tt.errorType)

			err := toggler.Enable(context.Background())
			if err == nil {
				t.Fatal("Expected simulated error")
			}
			if toggler.IsEnabled() {
				t.Error("Expected state unchanged after failed Enable")
			}

			normalized := capability.NormalizeBackendError(err, nil)
			if !errors.Is(normalized, tt.expectedCode) {
				t.Errorf("Expected %v, got %v", tt.expectedCode, normalized)
			}

			toggler.DisableErrorSimulation()
			if err := toggler.Enable(context.Background()); err != nil {
				t.Errorf("Expected Enable to succeed after clearing simulation: %v", err)
			}
		})
	}
}

func TestTogglerPanicSimulation(t *testing.T) {
	toggler := NewToggler("radio")
	toggler.SetPanicSimulation("driver crashed")

	defer func() {
		if r := recover(); r != "driver crashed" {
			t.Errorf("Expected panic %q, got %v", "driver crashed", r)
		}
		// The mutex must have been released by the deferred unlock
		if toggler.IsEnabled() {
			t.Error("Expected state unchanged after panic")
		}
	}()
	_ = toggler.Enable(context.Background())
}

func TestTogglerContextCancellation(t *testing.T) {
	toggler := NewToggler("radio")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := toggler.Enable(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if enableCalls, _ := toggler.Calls(); enableCalls != 0 {
		t.Errorf("Expected no recorded call, got %d", enableCalls)
	}
}

func TestCapturerLifecycle(t *testing.T) {
	capturer := NewCapturer()
	ctx := context.Background()

	if capturer.Ready() {
		t.Fatal("Expected new capturer to be idle")
	}
	if err := capturer.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !capturer.Ready() {
		t.Error("Expected capturer ready after Start")
	}
	if err := capturer.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if capturer.Ready() {
		t.Error("Expected capturer idle after Stop")
	}

	// Stopping an idle session is not an error
	if err := capturer.Stop(ctx); err != nil {
		t.Errorf("Expected idle Stop to succeed, got %v", err)
	}

	start, stop := capturer.Calls()
	if start != 1 || stop != 2 {
		t.Errorf("Expected 1/2 calls, got %d/%d", start, stop)
	}
}

func TestCapturerErrorSimulation(t *testing.T) {
	capturer := NewCapturer()
	capturer.SetErrorSimulation("BUSY")

	err := capturer.Start(context.Background())
	if err == nil {
		t.Fatal("Expected simulated error")
	}
	if capturer.Ready() {
		t.Error("Expected capturer idle after failed Start")
	}

	capturer.DisableErrorSimulation()
	if err := capturer.Start(context.Background()); err != nil {
		t.Errorf("Expected Start to succeed after clearing simulation: %v", err)
	}
}
