// Package mock provides a synthetic camera runtime for tests and dry runs.
// Frames are emitted at the configured rate with sensor timestamps set back
// in time by a modelled capture-to-host latency.
package mock

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
)

// Name is the registered backend name.
const Name = "mock"

func init() {
	pipeline.Register(Name, func(opts pipeline.Options) (pipeline.Pipeline, error) {
		return New(opts), nil
	})
}

// Model describes the synthetic latency of one frame:
// Base + Height*LineTime + bytes/Bandwidth + U[0, Jitter).
type Model struct {
	Base      time.Duration
	LineTime  time.Duration // rolling shutter readout per sensor line
	Bandwidth float64       // host link bytes per second, 0 = free
	Jitter    time.Duration
}

// DefaultModel approximates a rolling-shutter sensor behind USB3.
func DefaultModel() Model {
	return Model{
		Base:      8 * time.Millisecond,
		LineTime:  15 * time.Microsecond,
		Bandwidth: 350e6,
		Jitter:    2 * time.Millisecond,
	}
}

// Latency returns the deterministic part of the model for a config.
func (m Model) Latency(cfg camera.Config) time.Duration {
	d := m.Base + time.Duration(cfg.Height)*m.LineTime
	if m.Bandwidth > 0 {
		d += time.Duration(float64(cfg.FrameBytes()) / m.Bandwidth * float64(time.Second))
	}
	return d
}

// Pipeline is a mock camera runtime.
type Pipeline struct {
	opts   pipeline.Options
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	cfg      camera.Config
	ready    bool
	running  bool
	exposure camera.Exposure
	isp3AFps int
	queue    *pipeline.FrameQueue
	stopCh   chan struct{}
	done     chan struct{}

	model      Model
	interval   time.Duration // overrides 1/fps when set
	frameLimit int
	emptyEvery int
	startErr   error
	rng        *rand.Rand

	emitted atomic.Uint64
}

// Option configures a mock Pipeline.
type Option func(*Pipeline)

// WithModel sets the latency model.
func WithModel(m Model) Option {
	return func(p *Pipeline) { p.model = m }
}

// WithFrameInterval emits frames at a fixed interval instead of 1/fps.
func WithFrameInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithFrameLimit stops the pipeline after n frames.
func WithFrameLimit(n int) Option {
	return func(p *Pipeline) { p.frameLimit = n }
}

// WithEmptyEvery makes every nth frame an empty one.
func WithEmptyEvery(n int) Option {
	return func(p *Pipeline) { p.emptyEvery = n }
}

// WithStartError makes Start fail with err.
func WithStartError(err error) Option {
	return func(p *Pipeline) { p.startErr = err }
}

// WithSeed makes jitter reproducible.
func WithSeed(seed uint64) Option {
	return func(p *Pipeline) { p.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a mock pipeline.
func New(opts pipeline.Options, options ...Option) *Pipeline {
	p := &Pipeline{
		opts:   opts,
		now:    opts.Clock(),
		logger: slog.Default(),
		model:  DefaultModel(),
		rng:    rand.New(rand.NewPCG(1, 2)),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Opener returns a pipeline.Opener that applies options to every pipeline.
func Opener(options ...Option) pipeline.Opener {
	return func(opts pipeline.Options) (pipeline.Pipeline, error) {
		return New(opts, options...), nil
	}
}

// Name returns "mock".
func (p *Pipeline) Name() string { return Name }

// Configure implements pipeline.Pipeline.
func (p *Pipeline) Configure(cfg camera.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return pipeline.ErrAlreadyRunning
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return pipeline.WrapError(Name, "configure", errors.New(errs[0]))
	}
	p.cfg = cfg
	p.isp3AFps = cfg.ISP3AFps
	p.ready = true
	return nil
}

// Control implements pipeline.Pipeline.
func (p *Pipeline) Control() pipeline.ControlQueue { return controlQueue{p} }

// Output implements pipeline.Pipeline.
func (p *Pipeline) Output() pipeline.OutputQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		p.queue = pipeline.NewFrameQueue(p.cfg.Tuning.QueueSize, p.cfg.Tuning.Blocking)
	}
	return p.queue
}

// Start begins emitting frames.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return pipeline.ErrNotConfigured
	}
	if p.running {
		return pipeline.ErrAlreadyRunning
	}
	if p.startErr != nil {
		return pipeline.WrapError(Name, "start", p.startErr)
	}
	if p.queue == nil {
		p.queue = pipeline.NewFrameQueue(p.cfg.Tuning.QueueSize, p.cfg.Tuning.Blocking)
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})

	go p.emitLoop(ctx)

	p.logger.Debug("mock pipeline started",
		"case", p.cfg.Name,
		"latency", p.model.Latency(p.cfg),
	)
	return nil
}

func (p *Pipeline) frameInterval() time.Duration {
	if p.interval > 0 {
		return p.interval
	}
	return time.Duration(float64(time.Second) / p.cfg.FPS)
}

func (p *Pipeline) emitLoop(ctx context.Context) {
	defer close(p.done)
	defer p.queue.Close()

	ticker := time.NewTicker(p.frameInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.markStopped()
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			n := p.emitted.Add(1)
			if p.emptyEvery > 0 && n%uint64(p.emptyEvery) == 0 {
				p.queue.Push(nil)
			} else {
				p.queue.Push(p.makeFrame(n))
			}
			if p.frameLimit > 0 && int(n) >= p.frameLimit {
				p.markStopped()
				return
			}
		}
	}
}

func (p *Pipeline) markStopped() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pipeline) makeFrame(seq uint64) *pipeline.BasicFrame {
	p.mu.Lock()
	cfg := p.cfg
	exp := p.exposure
	var jitter time.Duration
	if p.model.Jitter > 0 {
		jitter = time.Duration(p.rng.Int64N(int64(p.model.Jitter)))
	}
	p.mu.Unlock()

	if exp.TimeUs == 0 {
		// auto exposure until a manual request arrives
		exp.TimeUs = int(1e6 / cfg.FPS / 2)
	}

	latency := p.model.Latency(cfg) + jitter
	return &pipeline.BasicFrame{
		Seq:      seq,
		W:        cfg.Width,
		H:        cfg.Height,
		Format:   cfg.Type,
		Exposure: time.Duration(exp.TimeUs) * time.Microsecond,
		Payload:  make([]byte, cfg.FrameBytes()),
		Captured: p.now().Add(-latency),
	}
}

// IsRunning implements pipeline.Pipeline.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop halts frame emission.
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
	// unblocks an emitter waiting on a full blocking queue
	p.queue.Close()
	p.running = false
	return nil
}

// Wait blocks until the emitter goroutine has exited.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// Emitted returns how many frames were produced.
func (p *Pipeline) Emitted() uint64 {
	return p.emitted.Load()
}

// Exposure returns the last manual exposure received.
func (p *Pipeline) Exposure() camera.Exposure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exposure
}

// ISP3AFps returns the active 3A rate limit.
func (p *Pipeline) ISP3AFps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isp3AFps
}

type controlQueue struct{ p *Pipeline }

func (c controlQueue) Send(ctx context.Context, ctrl pipeline.Control) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	if ctrl.ManualExposure != nil {
		c.p.exposure = *ctrl.ManualExposure
	}
	return nil
}

var _ pipeline.Pipeline = (*Pipeline)(nil)
