// Package camlat wires the latency harness to its outputs: the stdout
// report, the results file, the dashboard, InfluxDB and Google Docs.
package camlat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-camlat/internal/config"
	"github.com/teslashibe/go-camlat/internal/log"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/gdocs"
	"github.com/teslashibe/go-camlat/pkg/harness"
	"github.com/teslashibe/go-camlat/pkg/influx"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
	"github.com/teslashibe/go-camlat/pkg/report"
	"github.com/teslashibe/go-camlat/pkg/web"
)

// Config holds everything a run needs.
type Config struct {
	Suite       string
	SuiteFile   string
	Only        []string
	Interactive bool

	Backend string
	Device  string

	Warmup int
	Frames int
	Pause  time.Duration

	JSONPath string
	WebAddr  string // empty disables the dashboard

	Influx influx.Config
	GDoc   bool
	DocID  string
	Google gdocs.Config

	LogLevel string
}

// DefaultConfig returns the standard suite on the mock backend with the
// harness's default frame counts.
func DefaultConfig() Config {
	return Config{
		Suite:    camera.SuiteStandard,
		Backend:  config.DefaultBackend,
		Warmup:   harness.DefaultWarmup,
		Frames:   harness.DefaultMeasure,
		Pause:    harness.DefaultPause,
		Influx:   influx.DefaultConfig(),
		LogLevel: config.DefaultLogLevel,
	}
}

// App runs suites and fans results out to the configured sinks.
type App struct {
	cfg    Config
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	manager *camera.Manager
	runner  *harness.Runner
	printer *report.Printer
	doc     *bytes.Buffer

	exporter *influx.Exporter
	server   *web.Server
	google   *gdocs.Client

	running atomic.Bool
	runs    chan struct{}
}

// New validates cfg. Nothing is opened until Init.
func New(cfg Config) (*App, error) {
	if !slices.Contains(pipeline.Backends(), cfg.Backend) {
		return nil, fmt.Errorf("%w: %q (available: %s)", pipeline.ErrUnknownBackend,
			cfg.Backend, strings.Join(pipeline.Backends(), ", "))
	}
	device, err := config.DeviceFor(cfg.Backend, cfg.Device)
	if err != nil {
		return nil, err
	}
	cfg.Device = device

	if cfg.Warmup < 0 {
		return nil, errors.New("warmup must not be negative")
	}
	if cfg.Frames < 1 {
		return nil, errors.New("frames must be at least 1")
	}
	if cfg.GDoc && (cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "") {
		return nil, gdocs.ErrMissingCredentials
	}

	return &App{
		cfg:     cfg,
		out:     os.Stdout,
		errOut:  os.Stderr,
		manager: camera.NewManager(),
		runs:    make(chan struct{}, 1),
	}, nil
}

// SetOutput redirects the report, mainly for tests.
func (a *App) SetOutput(out, errOut io.Writer) {
	a.out, a.errOut = out, errOut
}

// Manager exposes the active suite.
func (a *App) Manager() *camera.Manager { return a.manager }

// Init selects the suite and connects the optional sinks.
func (a *App) Init(ctx context.Context) error {
	log.Init(a.cfg.LogLevel)
	a.logger = log.With("component", "camlat")

	if err := a.selectSuite(); err != nil {
		return err
	}

	a.runner = harness.NewRunner(a.cfg.Backend, pipeline.Options{Device: a.cfg.Device})
	a.runner.Warmup = a.cfg.Warmup
	a.runner.Measure = a.cfg.Frames
	a.runner.Pause = a.cfg.Pause

	out := a.out
	if a.cfg.GDoc {
		a.doc = &bytes.Buffer{}
		out = io.MultiWriter(a.out, a.doc)
	}
	a.printer = report.NewPrinter(out, a.errOut)
	a.runner.Observers = harness.Observers{a.printer}

	if a.cfg.Influx.Enabled {
		// nil when the server is unreachable; the run continues without export
		if a.exporter = influx.New(a.cfg.Influx, a.cfg.Backend); a.exporter != nil {
			a.runner.Observers = append(a.runner.Observers, a.exporter)
		}
	}

	if a.cfg.WebAddr != "" {
		a.server = web.NewServer(a.cfg.WebAddr, a.cfg.Backend, a.manager)
		a.server.OnRun = a.requestRun
		a.runner.Observers = append(a.runner.Observers, a.server)
		a.server.StartAsync(ctx)
	}

	if a.cfg.GDoc {
		if err := a.connectGoogle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) selectSuite() error {
	switch {
	case a.cfg.SuiteFile != "":
		name, cases, err := config.LoadSuite(a.cfg.SuiteFile)
		if err != nil {
			return err
		}
		if err := a.manager.SetSuite(name, cases); err != nil {
			return err
		}
	default:
		if err := a.manager.SelectSuite(a.cfg.Suite); err != nil {
			return err
		}
	}

	if len(a.cfg.Only) > 0 {
		if err := a.manager.Filter(a.cfg.Only); err != nil {
			return err
		}
	}

	if a.cfg.Interactive {
		_, cases := a.manager.Suite()
		names, err := PromptCases(cases)
		if err != nil {
			return err
		}
		if err := a.manager.Filter(names); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) connectGoogle(ctx context.Context) error {
	client, err := gdocs.New(a.cfg.Google)
	if err != nil {
		return err
	}
	if !client.IsAuthenticated() {
		err := client.Authorize(ctx, func(authURL string) {
			fmt.Fprintf(a.errOut, "Open this URL to allow publishing to Google Docs:\n\n  %s\n\n", authURL)
		})
		if err != nil {
			return fmt.Errorf("google authorization failed: %w", err)
		}
	}
	a.google = client
	return nil
}

// requestRun queues a run from the dashboard.
func (a *App) requestRun() error {
	if a.running.Load() {
		return web.ErrRunBusy
	}
	select {
	case a.runs <- struct{}{}:
		return nil
	default:
		return web.ErrRunBusy
	}
}

// Run executes the active suite once. With the dashboard enabled it then
// keeps serving and runs again on request until ctx is done.
func (a *App) Run(ctx context.Context) error {
	results := a.RunSuite(ctx)
	if a.server == nil {
		return suiteError(ctx, results)
	}

	a.logger.Info("suite finished, dashboard still serving (Ctrl+C to quit)", "addr", a.cfg.WebAddr)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.runs:
			a.RunSuite(ctx)
		}
	}
}

// RunSuite runs the manager's active suite and writes every report.
func (a *App) RunSuite(ctx context.Context) []*harness.Result {
	a.running.Store(true)
	defer a.running.Store(false)

	name, cases := a.manager.Suite()
	a.printer.Banner = report.SuiteBanner(name, cases)
	a.printer.Footer = nil
	if name == camera.SuiteLowLatency {
		a.printer.Footer = report.RollingShutterNote()
	}
	if a.doc != nil {
		a.doc.Reset()
	}

	results := a.runner.RunSuite(ctx, cases)

	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, report.Table(results))

	if a.cfg.JSONPath != "" {
		if err := report.WriteJSON(a.cfg.JSONPath, name, results); err != nil {
			a.logger.Error("failed to write results", "path", a.cfg.JSONPath, "error", err)
		} else {
			a.logger.Info("results written", "path", a.cfg.JSONPath)
		}
	}

	if a.google != nil && a.doc != nil {
		a.publish(ctx, name)
	}
	return results
}

func (a *App) publish(ctx context.Context, suite string) {
	title := fmt.Sprintf("camlat %s on %s (%s)", suite, a.cfg.Backend, time.Now().Format("2006-01-02 15:04"))
	id, err := a.google.Publish(ctx, a.cfg.DocID, title, a.doc.String())
	if err != nil {
		a.logger.Error("failed to publish report", "error", err)
		return
	}
	a.cfg.DocID = id
	fmt.Fprintf(a.errOut, "Report published: %s\n", gdocs.DocURL(id))
}

// suiteError summarizes failures for the exit status.
func suiteError(ctx context.Context, results []*harness.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d test cases failed", failed, len(results))
	}
	return nil
}

// Shutdown flushes exporters and stops the dashboard.
func (a *App) Shutdown() {
	if err := a.exporter.Close(); err != nil {
		a.logger.Warn("influx close failed", "error", err)
	}
	if a.server != nil {
		a.server.Shutdown()
	}
}
