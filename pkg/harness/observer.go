package harness

import (
	"time"

	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/latency"
)

// FrameInfo describes the first frame of a test case as the runtime
// actually delivered it.
type FrameInfo struct {
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Type     camera.FrameType `json:"type"`
	Exposure time.Duration    `json:"exposure_ns"`
	Bytes    int              `json:"bytes"`
}

// Sample is one measured frame.
type Sample struct {
	RunID    string        `json:"run_id"`
	Case     string        `json:"case"`
	Index    int           `json:"index"`
	Sequence uint64        `json:"sequence"`
	Latency  float64       `json:"latency_ms"`
	Interval time.Duration `json:"interval_ns"`
	Time     time.Time     `json:"time"`
}

// Progress is emitted every ProgressEvery measured samples.
type Progress struct {
	Count   int     `json:"count"`
	Latency float64 `json:"latency_ms"`
	Mean    float64 `json:"mean_ms"`
	FPS     float64 `json:"fps"`
}

// Result is the outcome of one test case.
type Result struct {
	RunID    string          `json:"run_id"`
	Backend  string          `json:"backend"`
	Case     camera.Config   `json:"case"`
	Frame    *FrameInfo      `json:"frame,omitempty"`
	Summary  latency.Summary `json:"summary"`
	Samples  []float64       `json:"samples,omitempty"`
	Skewed   int             `json:"skewed,omitempty"`
	Err      string          `json:"error,omitempty"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
}

// Failed reports whether the case ended with an error.
func (r *Result) Failed() bool { return r.Err != "" }

// Observer receives harness events. Calls happen on the measurement
// goroutine, so implementations must return quickly.
type Observer interface {
	OnSuiteStart(runID string, cases []camera.Config)
	OnCaseStart(runID string, cfg camera.Config)
	OnFrameInfo(cfg camera.Config, info FrameInfo)
	OnSample(cfg camera.Config, s Sample)
	OnProgress(cfg camera.Config, p Progress)
	OnResult(r *Result)
	OnError(cfg camera.Config, err error)
	OnSuiteEnd(runID string, results []*Result)
}

// NopObserver implements Observer with no-ops. Embed it to handle only some events.
type NopObserver struct{}

func (NopObserver) OnSuiteStart(string, []camera.Config) {}
func (NopObserver) OnCaseStart(string, camera.Config)    {}
func (NopObserver) OnFrameInfo(camera.Config, FrameInfo) {}
func (NopObserver) OnSample(camera.Config, Sample)       {}
func (NopObserver) OnProgress(camera.Config, Progress)   {}
func (NopObserver) OnResult(*Result)                     {}
func (NopObserver) OnError(camera.Config, error)         {}
func (NopObserver) OnSuiteEnd(string, []*Result)         {}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (o Observers) OnSuiteStart(runID string, cases []camera.Config) {
	for _, obs := range o {
		obs.OnSuiteStart(runID, cases)
	}
}

func (o Observers) OnCaseStart(runID string, cfg camera.Config) {
	for _, obs := range o {
		obs.OnCaseStart(runID, cfg)
	}
}

func (o Observers) OnFrameInfo(cfg camera.Config, info FrameInfo) {
	for _, obs := range o {
		obs.OnFrameInfo(cfg, info)
	}
}

func (o Observers) OnSample(cfg camera.Config, s Sample) {
	for _, obs := range o {
		obs.OnSample(cfg, s)
	}
}

func (o Observers) OnProgress(cfg camera.Config, p Progress) {
	for _, obs := range o {
		obs.OnProgress(cfg, p)
	}
}

func (o Observers) OnResult(r *Result) {
	for _, obs := range o {
		obs.OnResult(r)
	}
}

func (o Observers) OnError(cfg camera.Config, err error) {
	for _, obs := range o {
		obs.OnError(cfg, err)
	}
}

func (o Observers) OnSuiteEnd(runID string, results []*Result) {
	for _, obs := range o {
		obs.OnSuiteEnd(runID, results)
	}
}
