package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized back-end errors.
var (
	ErrUnavailable      = errors.New("UNAVAILABLE")
	ErrBusy             = errors.New("BUSY")
	ErrPermissionDenied = errors.New("PERMISSION_DENIED")
	ErrInternal         = errors.New("INTERNAL")
)

// TokenMap defines the error token mapping for a back-end vendor.
type TokenMap struct {
	Unavailable []string // Tokens that map to UNAVAILABLE
	Busy        []string // Tokens that map to BUSY
	Permission  []string // Tokens that map to PERMISSION_DENIED
}

// ErrorMappings holds the token tables per vendor. Unknown vendors use
// "generic"; unknown tokens map to INTERNAL.
var ErrorMappings = map[string]TokenMap{
	"generic": {
		Unavailable: []string{
			"UNAVAILABLE",
			"NOT_PRESENT",
			"NO_ADAPTER",
			"OFFLINE",
			"NOT_READY",
		},
		Busy: []string{
			"BUSY",
			"IN_PROGRESS",
			"RETRY",
		},
		Permission: []string{
			"PERMISSION",
			"SECURITY",
			"DENIED",
			"NOT_ALLOWED",
		},
	},
	"android": {
		Unavailable: []string{
			"ADAPTER_NOT_AVAILABLE",
			"STATE_OFF",
			"SERVICE_NOT_BOUND",
			"PROJECTION_STOPPED",
		},
		Busy: []string{
			"STATE_TURNING_ON",
			"STATE_TURNING_OFF",
			"ALREADY_CAPTURING",
		},
		Permission: []string{
			"SECURITYEXCEPTION",
			"PERMISSION_DENIED",
			"RESULT_CANCELED",
		},
	},
}

// BackendError wraps a back-end error with its normalized code.
type BackendError struct {
	Code     error       // Normalized code
	Original error       // Back-end error
	Details  interface{} // Back-end payload (opaque)
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%v (backend: %v)", e.Code, e.Original)
}

func (e *BackendError) Unwrap() error {
	return e.Code
}

// Reason returns the back-end's own message.
func (e *BackendError) Reason() string {
	if e.Original == nil {
		return e.Code.Error()
	}
	return e.Original.Error()
}

// ErrorCode returns the normalized code, e.g. "UNAVAILABLE".
func (e *BackendError) ErrorCode() string {
	return e.Code.Error()
}

// NormalizeBackendError maps a back-end error using the generic table.
func NormalizeBackendError(err error, payload interface{}) error {
	return NormalizeBackendErrorWithVendor(err, payload, "generic")
}

// NormalizeBackendErrorWithVendor maps a back-end error using the vendor table.
// Errors already normalized are returned unchanged.
func NormalizeBackendErrorWithVendor(err error, payload interface{}, vendor string) error {
	if err == nil {
		return nil
	}

	var be *BackendError
	if errors.As(err, &be) {
		return err
	}

	return &BackendError{
		Code:     mapTokenToCode(err.Error(), vendor),
		Original: err,
		Details:  payload,
	}
}

// mapTokenToCode maps an error message to a normalized code.
func mapTokenToCode(msg string, vendor string) error {
	tokens, ok := ErrorMappings[vendor]
	if !ok {
		tokens = ErrorMappings["generic"]
	}

	upper := strings.ToUpper(msg)

	for _, token := range tokens.Permission {
		if strings.Contains(upper, token) {
			return ErrPermissionDenied
		}
	}
	for _, token := range tokens.Busy {
		if strings.Contains(upper, token) {
			return ErrBusy
		}
	}
	for _, token := range tokens.Unavailable {
		if strings.Contains(upper, token) {
			return ErrUnavailable
		}
	}

	return ErrInternal
}
