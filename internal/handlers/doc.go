// Package handlers implements the capability handlers registered with the
// command dispatcher.
//
// Each handler owns a small fixed set of command names, checks host
// permissions at call time, and drives the command through its lifecycle
// with command.Run. Back-end errors are normalized with the capability error
// tables before they become failure reasons.
//
// Handlers:
//   - ToggleHandler: on/off pairs such as RADIO_ON/RADIO_OFF and BLUETOOTH_ON/BLUETOOTH_OFF
//   - CaptureHandler: CAPTURE_START/CAPTURE_STOP for the screen-capture session
package handlers
