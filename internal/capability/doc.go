// Package capability defines the back-end ports that capability handlers drive.
//
// A back-end is the host-side control for one device subsystem (a radio
// adapter, a screen-capture session). Handlers only interpret success or error
// from a back-end; errors are normalized to UNAVAILABLE, BUSY,
// PERMISSION_DENIED or INTERNAL for reporting.
package capability
