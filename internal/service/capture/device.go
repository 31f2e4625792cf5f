package capture

import (
	"context"
	"io"
)

// Source is a live microphone stream. Read yields encoded audio as it is
// produced; Close releases the device and must unblock a pending Read.
type Source interface {
	io.ReadCloser
	// Level returns an approximate amplitude in [0, 1] for visualisation.
	Level() float64
}

// Device acquires microphone access.
type Device interface {
	Acquire(ctx context.Context) (Source, error)
}

// DeviceFunc adapts a function to Device.
type DeviceFunc func(ctx context.Context) (Source, error)

func (f DeviceFunc) Acquire(ctx context.Context) (Source, error) { return f(ctx) }

// UnsupportedDevice is used when no capture backend is available.
type UnsupportedDevice struct{}

func (UnsupportedDevice) Acquire(context.Context) (Source, error) {
	return nil, ErrUnsupported
}
