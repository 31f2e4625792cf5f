package capture

import (
	"errors"
	"fmt"
)

// Devices report acquisition failures with these sentinels (wrapping is fine).
var (
	ErrPermissionDenied = errors.New("capture: permission denied")
	ErrDeviceNotFound   = errors.New("capture: no input device")
	ErrDeviceBusy       = errors.New("capture: device busy")
	ErrConstraint       = errors.New("capture: unsatisfiable constraints")
	ErrSecurityBlocked  = errors.New("capture: blocked by security policy")
	ErrUnsupported      = errors.New("capture: not supported in this environment")

	ErrClosed = errors.New("capture: recorder closed")
)

// Kind classifies a capture failure for the user.
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindDeviceNotFound   Kind = "device_not_found"
	KindDeviceBusy       Kind = "device_busy"
	KindConstraint       Kind = "constraint_error"
	KindSecurityBlocked  Kind = "security_blocked"
	KindUnsupported      Kind = "unsupported_environment"
	KindUnknown          Kind = "unknown"
)

var kindMessages = map[Kind]string{
	KindPermissionDenied: "Microphone access denied. Please allow microphone access and try again.",
	KindDeviceNotFound:   "No microphone found. Please connect a microphone and try again.",
	KindDeviceBusy:       "Microphone is already in use by another application.",
	KindConstraint:       "Microphone does not support the requested audio settings.",
	KindSecurityBlocked:  "Microphone access is blocked. Recording requires a secure connection.",
	KindUnsupported:      "Audio recording is not supported in this environment.",
	KindUnknown:          "Could not start recording. Please try again.",
}

// Message returns the user-facing text for k.
func (k Kind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return kindMessages[KindUnknown]
}

// CaptureError is a classified, dismissible start failure.
type CaptureError struct {
	Kind Kind
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Message returns the text shown to the user.
func (e *CaptureError) Message() string { return e.Kind.Message() }

// Classify maps a device error onto a CaptureError.
func Classify(err error) *CaptureError {
	if err == nil {
		return nil
	}
	var existing *CaptureError
	if errors.As(err, &existing) {
		return existing
	}

	kind := KindUnknown
	switch {
	case errors.Is(err, ErrPermissionDenied):
		kind = KindPermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		kind = KindDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		kind = KindDeviceBusy
	case errors.Is(err, ErrConstraint):
		kind = KindConstraint
	case errors.Is(err, ErrSecurityBlocked):
		kind = KindSecurityBlocked
	case errors.Is(err, ErrUnsupported):
		kind = KindUnsupported
	}
	return &CaptureError{Kind: kind, Err: err}
}
