package capability

import (
	"context"
)

// Toggler controls a subsystem that can be switched on and off, such as a
// radio or Bluetooth adapter.
type Toggler interface {
	// Enable switches the subsystem on.
	Enable(ctx context.Context) error

	// Disable switches the subsystem off.
	Disable(ctx context.Context) error
}

// Capturer controls a screen-capture session. Acquiring the capture token and
// sizing buffers happen inside the back-end.
type Capturer interface {
	// Start begins capturing.
	Start(ctx context.Context) error

	// Stop ends capturing. Stopping an idle session is not an error.
	Stop(ctx context.Context) error

	// Ready reports whether a capture session is active and producing frames.
	Ready() bool
}

// Identity is implemented by back-ends that know which capability they serve
// and which vendor error table applies to them. Embedding Base provides it.
type Identity interface {
	GetID() string
	GetVendor() string
}

// Base provides identification shared by back-end implementations.
type Base struct {
	// ID identifies the capability, e.g. "bluetooth"
	ID string

	// Vendor selects the error mapping table
	Vendor string
}

// GetID returns the capability identifier.
func (b *Base) GetID() string {
	return b.ID
}

// GetVendor returns the vendor used for error normalization.
func (b *Base) GetVendor() string {
	if b.Vendor == "" {
		return "generic"
	}
	return b.Vendor
}

var _ Identity = (*Base)(nil)
