package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/paphko/habpanelviewer/internal/capability"
	"github.com/paphko/habpanelviewer/internal/command"
	"github.com/paphko/habpanelviewer/internal/permission"
)

// CaptureHandler starts and stops the screen-capture session.
type CaptureHandler struct {
	startName  string
	stopName   string
	permission string
	vendor     string

	// Held across the Ready check and the back-end call
	mu      sync.Mutex
	backend capability.Capturer
	checker permission.Checker
}

// CaptureOptions configures a CaptureHandler.
type CaptureOptions struct {
	Start      string
	Stop       string
	Permission string
	Vendor     string
}

// NewCaptureHandler creates a handler for the capture start/stop pair.
func NewCaptureHandler(opts CaptureOptions, backend capability.Capturer, checker permission.Checker) (*CaptureHandler, error) {
	if opts.Start == "" || opts.Stop == "" {
		return nil, fmt.Errorf("%w: capture needs both start and stop names", command.ErrInvalidHandler)
	}
	if opts.Start == opts.Stop {
		return nil, fmt.Errorf("%w: %q used for both start and stop", command.ErrDuplicateCommand, opts.Start)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: capture has no back-end", command.ErrInvalidHandler)
	}
	return &CaptureHandler{
		startName:  opts.Start,
		stopName:   opts.Stop,
		permission: opts.Permission,
		vendor:     vendorOf(opts.Vendor, backend),
		backend:    backend,
		checker:    checker,
	}, nil
}

// Commands implements command.Handler.
func (h *CaptureHandler) Commands() []string {
	return []string{h.startName, h.stopName}
}

// Description implements command.Describer.
func (h *CaptureHandler) Description() string {
	return fmt.Sprintf("screen capture (%s/%s)", h.startName, h.stopName)
}

// TryHandle implements command.Handler. Starting a running session and
// stopping an idle one both finish without touching the back-end. Concurrent
// commands reach the back-end one at a time.
func (h *CaptureHandler) TryHandle(ctx context.Context, cmd *command.Command) bool {
	var action command.Action
	switch cmd.Name() {
	case h.startName:
		action = func(ctx context.Context) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.backend.Ready() {
				return nil
			}
			return capability.NormalizeBackendErrorWithVendor(h.backend.Start(ctx), nil, h.vendor)
		}
	case h.stopName:
		action = func(ctx context.Context) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			if !h.backend.Ready() {
				return nil
			}
			return capability.NormalizeBackendErrorWithVendor(h.backend.Stop(ctx), nil, h.vendor)
		}
	default:
		return false
	}

	command.Run(ctx, cmd, h.checkPermission, action)
	return true
}

func (h *CaptureHandler) checkPermission(ctx context.Context) (string, bool) {
	if h.permission == "" {
		return "", true
	}
	if h.checker == nil || !h.checker.Granted(h.permission) {
		return missingPermissionReason("capture"), false
	}
	return "", true
}

var _ command.Handler = (*CaptureHandler)(nil)
