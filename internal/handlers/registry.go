package handlers

import (
	"fmt"

	"github.com/paphko/habpanelviewer/internal/capability"
	"github.com/paphko/habpanelviewer/internal/command"
	"github.com/paphko/habpanelviewer/internal/config"
	"github.com/paphko/habpanelviewer/internal/permission"
)

// Backends supplies the capability back-ends handlers are bound to.
type Backends struct {
	// Togglers by capability id, e.g. "radio"
	Togglers map[string]capability.Toggler

	// Capturer for the screen-capture handler; required when capture is enabled
	Capturer capability.Capturer
}

// Build constructs the configured handlers in registration order.
func Build(cfg config.HandlersConfig, backends Backends, checker permission.Checker) ([]command.Handler, error) {
	var built []command.Handler

	for _, t := range cfg.Toggles {
		backend, ok := backends.Togglers[t.Capability]
		if !ok || backend == nil {
			return nil, fmt.Errorf("toggle %s/%s: no back-end for capability %q", t.On, t.Off, t.Capability)
		}
		if id, ok := backend.(capability.Identity); ok && id.GetID() != t.Capability {
			return nil, fmt.Errorf("toggle %s/%s: back-end %q bound to capability %q", t.On, t.Off, id.GetID(), t.Capability)
		}
		h, err := NewToggleHandler(ToggleOptions{
			Label:       t.Label,
			On:          t.On,
			Off:         t.Off,
			Permissions: t.Permissions,
			Vendor:      t.Vendor,
		}, backend, checker)
		if err != nil {
			return nil, err
		}
		built = append(built, h)
	}

	if cfg.Capture.Enabled {
		if backends.Capturer == nil {
			return nil, fmt.Errorf("capture %s/%s: no capture back-end", cfg.Capture.Start, cfg.Capture.Stop)
		}
		h, err := NewCaptureHandler(CaptureOptions{
			Start:      cfg.Capture.Start,
			Stop:       cfg.Capture.Stop,
			Permission: cfg.Capture.Permission,
			Vendor:     cfg.Capture.Vendor,
		}, backends.Capturer, checker)
		if err != nil {
			return nil, err
		}
		built = append(built, h)
	}

	return built, nil
}

// Register builds the configured handlers and registers them with d.
func Register(d *command.Dispatcher, cfg config.HandlersConfig, backends Backends, checker permission.Checker) error {
	built, err := Build(cfg, backends, checker)
	if err != nil {
		return err
	}
	if err := d.Register(built...); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}
	return nil
}
