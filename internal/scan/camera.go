package scan

import (
	"context"

	"github.com/harrylevesque/invitedeliver/internal/utils"
)

// ErrCameraUnavailable wraps every acquisition failure: permission refused,
// no device, capture tool missing.
var ErrCameraUnavailable = utils.New(utils.CapabilityDenied, "camera unavailable")

// Stream is an open capture. Close releases the device and must be safe to
// call more than once.
type Stream interface {
	FrameSource
	Close() error
}

// Camera acquires capture streams. Open may block until the user or the OS
// grants access; it honours ctx while waiting.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// CameraFunc adapts a function to Camera.
type CameraFunc func(ctx context.Context) (Stream, error)

func (f CameraFunc) Open(ctx context.Context) (Stream, error) { return f(ctx) }
