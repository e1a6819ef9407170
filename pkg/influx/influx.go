// Package influx exports latency samples and summaries to InfluxDB 3.
// A nil *Exporter is valid and discards everything, so callers never need
// to check whether export is enabled.
package influx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/influxdb3"

	"github.com/teslashibe/go-camlat/internal/log"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/harness"
)

// Measurement names.
const (
	MeasurementFrame   = "frame_latency"
	MeasurementSummary = "latency_summary"
)

const (
	defaultBatchSize = 500
	pendingBatches   = 16
	writeTimeout     = 10 * time.Second
)

// Config holds InfluxDB connection settings.
type Config struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Host      string `json:"host" yaml:"host"`
	Token     string `json:"-" yaml:"token"`
	Database  string `json:"database" yaml:"database"`
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
}

// DefaultConfig returns a disabled config pointing at a local server.
func DefaultConfig() Config {
	return Config{
		Host:      "http://localhost:8181",
		Database:  "camlat",
		BatchSize: defaultBatchSize,
	}
}

// pointWriter is the subset of *influxdb3.Client the exporter uses.
type pointWriter interface {
	WritePoints(ctx context.Context, points []*influxdb3.Point, options ...influxdb3.WriteOption) error
	Close() error
}

// Exporter writes harness events as points. Writes happen on a background
// goroutine; when it falls behind, batches are dropped rather than stalling
// the measurement loop.
type Exporter struct {
	harness.NopObserver

	client    pointWriter
	backend   string
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	pending []*influxdb3.Point
	closed  bool

	batches chan []*influxdb3.Point
	done    chan struct{}
	once    sync.Once

	written atomic.Int64
	dropped atomic.Int64
}

// New connects to InfluxDB. It returns nil when export is disabled or the
// client cannot be created, logging the reason.
func New(cfg Config, backend string) *Exporter {
	if !cfg.Enabled {
		return nil
	}
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     cfg.Host,
		Token:    cfg.Token,
		Database: cfg.Database,
	})
	if err != nil {
		log.Warn("InfluxDB not available, metrics export disabled", "host", cfg.Host, "error", err)
		return nil
	}
	log.Info("InfluxDB export enabled", "host", cfg.Host, "database", cfg.Database)
	return newExporter(client, backend, cfg.BatchSize)
}

func newExporter(client pointWriter, backend string, batchSize int) *Exporter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	e := &Exporter{
		client:    client,
		backend:   backend,
		batchSize: batchSize,
		logger:    log.With("component", "influx"),
		batches:   make(chan []*influxdb3.Point, pendingBatches),
		done:      make(chan struct{}),
	}
	go e.writeLoop()
	return e
}

func (e *Exporter) writeLoop() {
	defer close(e.done)
	for batch := range e.batches {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := e.client.WritePoints(ctx, batch)
		cancel()
		if err != nil {
			e.logger.Warn("InfluxDB write error", "points", len(batch), "error", err)
			e.dropped.Add(int64(len(batch)))
			continue
		}
		e.written.Add(int64(len(batch)))
	}
}

func (e *Exporter) add(p *influxdb3.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	e.pending = append(e.pending, p)
	if len(e.pending) >= e.batchSize {
		e.send(e.pending)
		e.pending = nil
	}
}

// send must be called with mu held.
func (e *Exporter) send(batch []*influxdb3.Point) {
	select {
	case e.batches <- batch:
	default:
		e.dropped.Add(int64(len(batch)))
	}
}

// Flush queues any buffered points.
func (e *Exporter) Flush() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed && len(e.pending) > 0 {
		e.send(e.pending)
		e.pending = nil
	}
}

// Close flushes, waits for queued writes and closes the client.
func (e *Exporter) Close() error {
	if e == nil {
		return nil
	}
	e.Flush()
	var err error
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.batches)
		e.mu.Unlock()
		<-e.done
		err = e.client.Close()
		e.logger.Debug("InfluxDB exporter closed", "written", e.written.Load(), "dropped", e.dropped.Load())
	})
	return err
}

// Written returns the number of points successfully written.
func (e *Exporter) Written() int64 {
	if e == nil {
		return 0
	}
	return e.written.Load()
}

// Dropped returns the number of points lost to write errors or backpressure.
func (e *Exporter) Dropped() int64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

func (e *Exporter) tags(runID string, cfg camera.Config) map[string]string {
	return map[string]string{
		"run_id":  runID,
		"case":    cfg.Name,
		"backend": e.backend,
		"type":    cfg.Type.String(),
	}
}

// OnSample records one frame_latency point.
func (e *Exporter) OnSample(cfg camera.Config, s harness.Sample) {
	if e == nil {
		return
	}
	e.add(influxdb3.NewPoint(MeasurementFrame,
		e.tags(s.RunID, cfg),
		map[string]any{
			"latency_ms":  s.Latency,
			"interval_ms": float64(s.Interval) / float64(time.Millisecond),
			"sequence":    int64(s.Sequence),
			"index":       int64(s.Index),
		},
		s.Time,
	))
}

// OnResult records one latency_summary point.
func (e *Exporter) OnResult(r *harness.Result) {
	if e == nil {
		return
	}
	s := r.Summary
	fields := map[string]any{
		"count":     int64(s.Count),
		"mean_ms":   s.Mean,
		"min_ms":    s.Min,
		"p50_ms":    s.P50,
		"p95_ms":    s.P95,
		"p99_ms":    s.P99,
		"max_ms":    s.Max,
		"stddev_ms": s.StdDev,
		"fps":       s.FPS,
		"width":     int64(r.Case.Width),
		"height":    int64(r.Case.Height),
	}
	e.add(influxdb3.NewPoint(MeasurementSummary, e.tags(r.RunID, r.Case), fields, r.Finished))
	e.Flush()
}

// OnSuiteEnd pushes whatever is still buffered.
func (e *Exporter) OnSuiteEnd(string, []*harness.Result) {
	e.Flush()
}

// String describes the exporter state for logs.
func (e *Exporter) String() string {
	if e == nil {
		return "influx(disabled)"
	}
	return fmt.Sprintf("influx(written=%d dropped=%d)", e.written.Load(), e.dropped.Load())
}
