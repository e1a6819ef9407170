// Package harness drives latency test cases against a camera pipeline.
//
// A test case opens a backend, configures one camera output, forces a short
// manual exposure, discards a warm-up window and then records the difference
// between the frame's capture timestamp and the host clock for every frame.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-camlat/internal/log"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/latency"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
)

// ErrNoFrames is returned when a case ends without a single measured frame.
var ErrNoFrames = errors.New("harness: no frames measured")

// Defaults used by NewRunner.
const (
	DefaultWarmup        = 30
	DefaultMeasure       = 300
	DefaultProgressEvery = 100
	DefaultPause         = 500 * time.Millisecond
)

// Runner executes test cases one at a time.
type Runner struct {
	// Backend names a registered pipeline backend. Ignored when Open is set.
	Backend string
	Options pipeline.Options

	// Open overrides the registry lookup, mainly for tests.
	Open pipeline.Opener

	Warmup        int
	Measure       int
	ProgressEvery int
	Pause         time.Duration

	Observers Observers
	Logger    *slog.Logger
}

// NewRunner creates a runner with the default frame counts.
func NewRunner(backend string, opts pipeline.Options) *Runner {
	return &Runner{
		Backend:       backend,
		Options:       opts,
		Warmup:        DefaultWarmup,
		Measure:       DefaultMeasure,
		ProgressEvery: DefaultProgressEvery,
		Pause:         DefaultPause,
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.With("component", "harness")
}

func (r *Runner) backendName() string {
	if r.Backend != "" {
		return r.Backend
	}
	return "custom"
}

func (r *Runner) open() (pipeline.Pipeline, error) {
	if r.Open != nil {
		p, err := r.Open(r.Options)
		return p, pipeline.WrapError(r.backendName(), "open", err)
	}
	return pipeline.Open(r.Backend, r.Options)
}

// RunCase measures a single test case under a fresh run id.
func (r *Runner) RunCase(ctx context.Context, cfg camera.Config) (*Result, error) {
	return r.runCase(ctx, uuid.NewString(), cfg)
}

func (r *Runner) runCase(ctx context.Context, runID string, cfg camera.Config) (res *Result, err error) {
	cfg.ApplyDefaults()
	clock := r.Options.Clock()

	res = &Result{
		RunID:   runID,
		Backend: r.backendName(),
		Case:    cfg,
		Started: clock(),
	}
	defer func() {
		res.Finished = clock()
		if err != nil {
			res.Err = err.Error()
		}
	}()

	r.Observers.OnCaseStart(runID, cfg)

	if problems := cfg.Validate(); len(problems) > 0 {
		return res, fmt.Errorf("invalid config: %v", problems)
	}

	p, err := r.open()
	if err != nil {
		return res, err
	}
	res.Backend = p.Name()

	if err := p.Configure(cfg); err != nil {
		return res, fmt.Errorf("configure: %w", err)
	}
	out := p.Output()

	if err := p.Start(ctx); err != nil {
		return res, fmt.Errorf("start: %w", err)
	}
	defer func() {
		if stopErr := p.Stop(); stopErr != nil {
			r.logger().Warn("pipeline stop failed", "case", cfg.Name, "error", stopErr)
		}
		if waitErr := p.Wait(); waitErr != nil {
			r.logger().Warn("pipeline wait failed", "case", cfg.Name, "error", waitErr)
		}
	}()

	exposure := cfg.Exposure
	err = p.Control().Send(ctx, pipeline.Control{ManualExposure: &exposure})
	switch {
	case errors.Is(err, pipeline.ErrUnsupported):
		r.logger().Warn("manual exposure not supported, using auto exposure",
			"backend", p.Name(), "case", cfg.Name)
	case err != nil:
		return res, fmt.Errorf("send exposure control: %w", err)
	}

	sampler, err := r.measure(ctx, runID, cfg, out, res)
	if err != nil {
		return res, err
	}

	summary, ok := sampler.Summary()
	if !ok {
		return res, ErrNoFrames
	}
	res.Summary = summary
	res.Samples = sampler.Samples()
	r.Observers.OnResult(res)
	return res, nil
}

// measure consumes frames until the sampler is full or the pipeline stops.
func (r *Runner) measure(ctx context.Context, runID string, cfg camera.Config, out pipeline.OutputQueue, res *Result) (*latency.Sampler, error) {
	clock := r.Options.Clock()
	sampler := latency.NewSampler(r.Warmup, r.Measure)
	first := true

	for !sampler.Done() {
		frame, err := out.Get(ctx)
		if errors.Is(err, pipeline.ErrNoFrame) {
			continue
		}
		if errors.Is(err, pipeline.ErrStopped) {
			r.logger().Debug("pipeline stopped before measurement finished",
				"case", cfg.Name, "samples", sampler.Len())
			break
		}
		if err != nil {
			return sampler, fmt.Errorf("get frame: %w", err)
		}
		hostNow := clock()

		if first {
			first = false
			info := FrameInfo{
				Width:    frame.Width(),
				Height:   frame.Height(),
				Type:     frame.Type(),
				Exposure: frame.ExposureTime(),
				Bytes:    len(frame.Data()),
			}
			res.Frame = &info
			r.Observers.OnFrameInfo(cfg, info)
			sampler.Mark(hostNow)
			continue
		}

		lat := latency.Millis(hostNow.Sub(frame.Timestamp()))
		// warm-up counts every frame; only measured frames need a sane clock
		if lat < 0 && !sampler.Warming() {
			res.Skewed++
			sampler.Skip(hostNow)
			continue
		}
		if sampler.Observe(lat, hostNow) == latency.PhaseWarmup {
			continue
		}

		n := sampler.Len()
		r.Observers.OnSample(cfg, Sample{
			RunID:    runID,
			Case:     cfg.Name,
			Index:    n - 1,
			Sequence: frame.Sequence(),
			Latency:  lat,
			Interval: sampler.LastInterval(),
			Time:     hostNow,
		})
		if r.ProgressEvery > 0 && n%r.ProgressEvery == 0 {
			r.Observers.OnProgress(cfg, Progress{
				Count:   n,
				Latency: lat,
				Mean:    sampler.Mean(),
				FPS:     sampler.InstantFPS(),
			})
		}
	}

	if res.Skewed > 0 {
		r.logger().Warn("discarded frames timestamped after host reception",
			"case", cfg.Name, "count", res.Skewed)
	}
	return sampler, nil
}

// RunSuite runs cases sequentially. A failing case is logged and recorded
// in its Result; the suite moves on to the next one. Only cancellation of
// ctx ends the suite early.
func (r *Runner) RunSuite(ctx context.Context, cases []camera.Config) []*Result {
	runID := uuid.NewString()
	r.Observers.OnSuiteStart(runID, cases)

	results := make([]*Result, 0, len(cases))
	for i, cfg := range cases {
		if ctx.Err() != nil {
			break
		}

		res, err := r.runCase(ctx, runID, cfg)
		if err != nil {
			if !errors.Is(err, ErrNoFrames) {
				r.logger().Error("test case failed", "case", res.Case.Name, "error", err)
			}
			r.Observers.OnError(res.Case, err)
		}
		results = append(results, res)

		if i < len(cases)-1 && r.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.Pause):
			}
		}
	}

	r.Observers.OnSuiteEnd(runID, results)
	return results
}
