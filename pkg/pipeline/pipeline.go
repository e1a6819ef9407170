// Package pipeline is the boundary to the camera runtime.
//
// The runtime owns sensor capture, ISP processing, transport and buffering.
// The harness only configures a Pipeline, sends control messages to it and
// consumes frames from its output queue. Backends (a device SDK, OpenCV,
// GStreamer, WebRTC, or the mock) register an Opener under a name, the same
// way database/sql drivers do.
package pipeline

import (
	"context"
	"time"

	"github.com/teslashibe/go-camlat/pkg/camera"
)

// Frame is one image delivered by the runtime.
type Frame interface {
	// Sequence is the runtime's frame counter.
	Sequence() uint64
	Width() int
	Height() int
	Type() camera.FrameType
	// ExposureTime is the integration time the sensor actually used.
	ExposureTime() time.Duration
	Data() []byte
	// Timestamp is when the sensor captured the frame, expressed on the
	// same clock as Options.Now.
	Timestamp() time.Time
}

// Control is a message for the camera control input.
// Nil fields are left unchanged.
type Control struct {
	ManualExposure *camera.Exposure
}

// ControlQueue accepts control messages while the pipeline runs.
type ControlQueue interface {
	Send(ctx context.Context, ctrl Control) error
}

// OutputQueue yields frames from one camera output.
type OutputQueue interface {
	// Get blocks until a frame is available. It returns ErrNoFrame when the
	// runtime produced an empty frame and ErrStopped once the pipeline stops.
	Get(ctx context.Context) (Frame, error)
}

// Pipeline is a configured camera runtime instance.
type Pipeline interface {
	// Name identifies the backend, e.g. "mock" or "uvc".
	Name() string

	// Configure builds the camera node and output for one test case.
	// Must be called before Start.
	Configure(cfg camera.Config) error

	Control() ControlQueue
	Output() OutputQueue

	Start(ctx context.Context) error
	IsRunning() bool
	Stop() error
	// Wait blocks until the runtime has fully released the device.
	Wait() error
}

// Options are passed to a backend when a pipeline is opened.
type Options struct {
	// Device selects the camera: an index, a device path, a URL or a robot IP,
	// depending on the backend.
	Device string

	// Now reads the host clock that frame timestamps are compared against.
	// Defaults to time.Now.
	Now func() time.Time
}

// Clock returns opts.Now or time.Now.
func (o Options) Clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// Opener creates a pipeline for a backend.
type Opener func(opts Options) (Pipeline, error)
