// Package uvc is a camera backend for USB video class devices, read through
// OpenCV's V4L2 capture. The driver stamps each buffer with CLOCK_MONOTONIC;
// that stamp is the capture time used here.
package uvc

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-camlat/internal/log"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
)

// Name is the registered backend name.
const Name = "uvc"

func init() {
	pipeline.Register(Name, func(opts pipeline.Options) (pipeline.Pipeline, error) {
		return New(opts), nil
	})
}

// V4L2 exposure_absolute is in 100µs units.
const exposureUnit = 100

// ExposureValue converts a manual exposure to the V4L2 control value.
func ExposureValue(exp camera.Exposure) float64 {
	return float64(max(exp.TimeUs/exposureUnit, 1))
}

// GainValue maps ISO to analog gain, ISO 100 being unity.
func GainValue(exp camera.Exposure) float64 {
	return float64(exp.ISO) / float64(camera.MinISO)
}

// deviceID parses the device option: an index ("0") or a path ("/dev/video2").
func deviceID(device string) any {
	if device == "" {
		return 0
	}
	if n, err := strconv.Atoi(device); err == nil {
		return n
	}
	return device
}

// CaptureTime maps a V4L2 buffer timestamp onto the host clock.
// hostNow and monoNow must be read back to back.
func CaptureTime(hostNow time.Time, monoNow, bufferTs time.Duration) time.Time {
	return hostNow.Add(-(monoNow - bufferTs))
}

// Pipeline captures from a V4L2 device.
type Pipeline struct {
	opts   pipeline.Options
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	cfg     camera.Config
	ready   bool
	running bool
	queue   *pipeline.FrameQueue
	stopCh  chan struct{}
	done    chan struct{}

	// capMu serializes Read and Set on the capture handle
	capMu   sync.Mutex
	capture *gocv.VideoCapture
}

// New creates a UVC pipeline for opts.Device.
func New(opts pipeline.Options) *Pipeline {
	return &Pipeline{
		opts:   opts,
		now:    opts.Clock(),
		logger: log.With("backend", Name),
	}
}

// Name implements pipeline.Pipeline.
func (p *Pipeline) Name() string { return Name }

// Configure implements pipeline.Pipeline.
func (p *Pipeline) Configure(cfg camera.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return pipeline.ErrAlreadyRunning
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid config: %v", problems)
	}
	p.cfg = cfg
	p.ready = true
	p.queue = pipeline.NewFrameQueue(cfg.Tuning.QueueSize, cfg.Tuning.Blocking)
	return nil
}

// Control implements pipeline.Pipeline.
func (p *Pipeline) Control() pipeline.ControlQueue { return controlQueue{p} }

// Output implements pipeline.Pipeline.
func (p *Pipeline) Output() pipeline.OutputQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		p.queue = pipeline.NewFrameQueue(camera.DefaultQueue, false)
	}
	return p.queue
}

// Start opens the device and applies the requested mode.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return pipeline.ErrNotConfigured
	}
	if p.running {
		return pipeline.ErrAlreadyRunning
	}
	if _, err := monotonicNow(); err != nil {
		return pipeline.WrapError(Name, "start", fmt.Errorf("%w: %v", pipeline.ErrUnsupported, err))
	}

	vc, err := gocv.OpenVideoCaptureWithAPI(deviceID(p.opts.Device), gocv.VideoCaptureV4L2)
	if err != nil {
		return pipeline.WrapError(Name, "open", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return pipeline.WrapError(Name, "open", fmt.Errorf("device %q not available", p.opts.Device))
	}

	cfg := p.cfg
	if cfg.Type == camera.FrameMJPEG {
		vc.Set(gocv.VideoCaptureFOURCC, vc.ToCodec("MJPG"))
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, cfg.FPS)
	vc.Set(gocv.VideoCaptureBufferSize, float64(cfg.Tuning.QueueSize))

	p.logger.Debug("uvc device opened",
		"device", p.opts.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)

	p.capMu.Lock()
	p.capture = vc
	p.capMu.Unlock()
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.readLoop(ctx, vc)
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, vc *gocv.VideoCapture) {
	defer close(p.done)
	defer p.queue.Close()
	defer func() {
		p.capMu.Lock()
		vc.Close()
		p.capture = nil
		p.capMu.Unlock()
	}()

	img := gocv.NewMat()
	defer img.Close()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			p.markStopped()
			return
		case <-p.stopCh:
			return
		default:
		}

		p.capMu.Lock()
		ok := vc.Read(&img)
		hostNow := p.now()
		monoNow, err := monotonicNow()
		bufferTs := time.Duration(vc.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))
		exposure := vc.Get(gocv.VideoCaptureExposure)
		p.capMu.Unlock()

		if !ok {
			p.logger.Warn("uvc read failed, stopping")
			p.markStopped()
			return
		}
		if err != nil || img.Empty() {
			p.queue.Push(nil)
			continue
		}

		seq++
		p.queue.Push(&pipeline.BasicFrame{
			Seq:      seq,
			W:        img.Cols(),
			H:        img.Rows(),
			Format:   frameType(img.Channels(), p.cfg.Type),
			Exposure: time.Duration(exposure*exposureUnit) * time.Microsecond,
			Payload:  img.ToBytes(),
			Captured: CaptureTime(hostNow, monoNow, bufferTs),
		})
	}
}

// frameType reports what OpenCV decoded into: BGR, or a single plane.
func frameType(channels int, requested camera.FrameType) camera.FrameType {
	switch channels {
	case 1:
		return camera.FrameGRAY8
	case 3:
		return camera.FrameBGR888i
	default:
		return requested
	}
}

func (p *Pipeline) markStopped() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// IsRunning implements pipeline.Pipeline.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop implements pipeline.Pipeline.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh == nil {
		return nil
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	p.running = false
	p.queue.Close()
	return nil
}

// Wait blocks until the device is closed.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

type controlQueue struct {
	p *Pipeline
}

// Send switches the device to manual exposure.
func (c controlQueue) Send(ctx context.Context, ctrl pipeline.Control) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ctrl.ManualExposure == nil {
		return nil
	}

	c.p.capMu.Lock()
	defer c.p.capMu.Unlock()
	vc := c.p.capture
	if vc == nil {
		return pipeline.WrapError(Name, "control", pipeline.ErrStopped)
	}

	// V4L2_EXPOSURE_MANUAL
	vc.Set(gocv.VideoCaptureAutoExposure, 1)
	vc.Set(gocv.VideoCaptureExposure, ExposureValue(*ctrl.ManualExposure))
	vc.Set(gocv.VideoCaptureGain, GainValue(*ctrl.ManualExposure))
	return nil
}
