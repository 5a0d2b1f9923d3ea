package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/paphko/habpanelviewer/internal/capability"
	"github.com/paphko/habpanelviewer/internal/command"
	"github.com/paphko/habpanelviewer/internal/permission"
)

// ToggleHandler switches one capability on or off.
type ToggleHandler struct {
	label    string
	onName   string
	offName  string
	required []string
	vendor   string

	// Togglers are not required to be safe for concurrent use
	mu      sync.Mutex
	backend capability.Toggler
	checker permission.Checker
}

// ToggleOptions configures a ToggleHandler.
type ToggleOptions struct {
	// Label names the capability in failure reasons; empty yields "permission missing"
	Label string

	// On and Off are the recognized command names
	On  string
	Off string

	// Permissions must all be granted at call time
	Permissions []string

	// Vendor selects the back-end error mapping table; empty uses the
	// back-end's own vendor
	Vendor string
}

// NewToggleHandler creates a handler for an on/off command pair.
func NewToggleHandler(opts ToggleOptions, backend capability.Toggler, checker permission.Checker) (*ToggleHandler, error) {
	if opts.On == "" || opts.Off == "" {
		return nil, fmt.Errorf("%w: toggle needs both on and off names", command.ErrInvalidHandler)
	}
	if opts.On == opts.Off {
		return nil, fmt.Errorf("%w: %q used for both on and off", command.ErrDuplicateCommand, opts.On)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: toggle %s/%s has no back-end", command.ErrInvalidHandler, opts.On, opts.Off)
	}
	return &ToggleHandler{
		label:    opts.Label,
		onName:   opts.On,
		offName:  opts.Off,
		required: append([]string(nil), opts.Permissions...),
		vendor:   vendorOf(opts.Vendor, backend),
		backend:  backend,
		checker:  checker,
	}, nil
}

// Commands implements command.Handler.
func (h *ToggleHandler) Commands() []string {
	return []string{h.onName, h.offName}
}

// Description implements command.Describer.
func (h *ToggleHandler) Description() string {
	label := h.label
	if label == "" {
		label = "capability"
	}
	return fmt.Sprintf("%s toggle (%s/%s)", label, h.onName, h.offName)
}

// TryHandle implements command.Handler.
func (h *ToggleHandler) TryHandle(ctx context.Context, cmd *command.Command) bool {
	var enable bool
	switch cmd.Name() {
	case h.onName:
		enable = true
	case h.offName:
		enable = false
	default:
		return false
	}

	command.Run(ctx, cmd, h.checkPermissions, func(ctx context.Context) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		var err error
		if enable {
			err = h.backend.Enable(ctx)
		} else {
			err = h.backend.Disable(ctx)
		}
		return capability.NormalizeBackendErrorWithVendor(err, nil, h.vendor)
	})
	return true
}

func (h *ToggleHandler) checkPermissions(ctx context.Context) (string, bool) {
	if len(permission.Missing(h.checker, h.required)) > 0 {
		return missingPermissionReason(h.label), false
	}
	return "", true
}

// vendorOf returns configured, or the vendor the back-end reports for itself.
func vendorOf(configured string, backend interface{}) string {
	if configured != "" {
		return configured
	}
	if id, ok := backend.(capability.Identity); ok {
		return id.GetVendor()
	}
	return "generic"
}

// missingPermissionReason formats the precondition failure reason for label.
func missingPermissionReason(label string) string {
	if label == "" {
		return "permission missing"
	}
	return label + " permission missing"
}

var _ command.Handler = (*ToggleHandler)(nil)
