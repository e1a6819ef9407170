// Package gstreamer is a camera backend built on a GStreamer launch line
// ending in an appsink. Buffer timestamps are running times on the pipeline
// clock, which is CLOCK_MONOTONIC by default.
package gstreamer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/teslashibe/go-camlat/internal/log"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
)

// Name is the registered backend name.
const Name = "gstreamer"

var initOnce sync.Once

func init() {
	pipeline.Register(Name, func(opts pipeline.Options) (pipeline.Pipeline, error) {
		return New(opts), nil
	})
}

// Pipeline runs a GStreamer pipeline for one test case.
type Pipeline struct {
	opts   pipeline.Options
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	cfg      camera.Config
	launch   string
	ready    bool
	running  bool
	queue    *pipeline.FrameQueue
	clock    *gst.Clock
	baseTime time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	seq atomic.Uint64
}

// New creates a GStreamer pipeline. opts.Device selects the source.
func New(opts pipeline.Options) *Pipeline {
	return &Pipeline{
		opts:   opts,
		now:    opts.Clock(),
		logger: log.With("backend", Name),
	}
}

// Name implements pipeline.Pipeline.
func (p *Pipeline) Name() string { return Name }

// Configure builds the launch line for cfg.
func (p *Pipeline) Configure(cfg camera.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return pipeline.ErrAlreadyRunning
	}
	launch, err := Launch(p.opts.Device, cfg)
	if err != nil {
		return pipeline.WrapError(Name, "configure", err)
	}
	p.cfg = cfg
	p.launch = launch
	p.ready = true
	p.queue = pipeline.NewFrameQueue(cfg.Tuning.QueueSize, cfg.Tuning.Blocking)
	return nil
}

// Launch returns the configured pipeline description.
func (p *Pipeline) Launch() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launch
}

// Control implements pipeline.Pipeline. Exposure is fixed in the launch
// line, so only a request matching the configured exposure is accepted.
func (p *Pipeline) Control() pipeline.ControlQueue { return controlQueue{p} }

type controlQueue struct {
	p *Pipeline
}

func (c controlQueue) Send(ctx context.Context, ctrl pipeline.Control) error {
	if ctrl.ManualExposure == nil {
		return nil
	}
	c.p.mu.Lock()
	cfg := c.p.cfg
	c.p.mu.Unlock()
	if *ctrl.ManualExposure != cfg.Exposure {
		return pipeline.WrapError(Name, "control", pipeline.ErrUnsupported)
	}
	return nil
}

// Output implements pipeline.Pipeline.
func (p *Pipeline) Output() pipeline.OutputQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		p.queue = pipeline.NewFrameQueue(camera.DefaultQueue, false)
	}
	return p.queue
}

// Start parses the launch line and sets the pipeline to PLAYING.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return pipeline.ErrNotConfigured
	}
	if p.running {
		return pipeline.ErrAlreadyRunning
	}

	initOnce.Do(func() { gst.Init(nil) })

	gp, err := gst.NewPipelineFromString(p.launch)
	if err != nil {
		return pipeline.WrapError(Name, "parse", fmt.Errorf("%w (launch: %s)", err, p.launch))
	}
	elem, err := gp.GetElementByName(SinkName)
	if err != nil {
		p.release(gp)
		return pipeline.WrapError(Name, "appsink", err)
	}
	sink := app.SinkFromElement(elem)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onSample,
	})

	clock := gp.GetPipelineClock()
	before := clock.GetTime()
	if err := gp.SetState(gst.StatePlaying); err != nil {
		p.release(gp)
		return pipeline.WrapError(Name, "start", err)
	}
	after := clock.GetTime()
	// live sources pick the base time inside the PAUSED->PLAYING transition
	p.baseTime = before + (after-before)/2
	p.clock = clock

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.done = make(chan struct{})
	go p.watchBus(runCtx, gp)

	p.logger.Debug("gstreamer pipeline playing", "launch", p.launch)
	return nil
}

// onSample converts an appsink sample into a frame.
func (p *Pipeline) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		p.queue.Push(nil)
		return gst.FlowOK
	}

	hostNow := p.now()
	clockNow := p.clock.GetTime()
	pts := buffer.PresentationTimestamp()

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	payload := make([]byte, len(data))
	copy(payload, data)
	buffer.Unmap()

	if pts < 0 || len(payload) == 0 {
		p.queue.Push(nil)
		return gst.FlowOK
	}

	age := clockNow - (p.baseTime + pts)
	p.queue.Push(&pipeline.BasicFrame{
		Seq:      p.seq.Add(1),
		W:        p.cfg.Width,
		H:        p.cfg.Height,
		Format:   p.cfg.Type,
		Exposure: time.Duration(p.cfg.Exposure.TimeUs) * time.Microsecond,
		Payload:  payload,
		Captured: hostNow.Add(-age),
	})
	return gst.FlowOK
}

// watchBus stops the pipeline on EOS or error.
func (p *Pipeline) watchBus(ctx context.Context, gp *gst.Pipeline) {
	defer close(p.done)
	defer p.queue.Close()

	bus := gp.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			p.shutdown(gp)
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			p.logger.Info("gstreamer end of stream")
			p.shutdown(gp)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			p.logger.Error("gstreamer pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			p.shutdown(gp)
			return
		}
	}
}

// release drops a pipeline that never reached PLAYING.
func (p *Pipeline) release(gp *gst.Pipeline) {
	if err := gp.SetState(gst.StateNull); err != nil {
		p.logger.Warn("gstreamer pipeline release failed", "error", err)
	}
}

func (p *Pipeline) shutdown(gp *gst.Pipeline) {
	gp.SetState(gst.StateNull)
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
	cancel := p.cancel
	queue := p.queue
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if queue != nil {
		queue.Close()
	}
	return nil
}

// Wait blocks until the pipeline reached NULL.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}
