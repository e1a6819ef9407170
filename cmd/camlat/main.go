// camlat measures capture-to-host latency of a camera pipeline across a
// suite of resolutions, frame rates and pixel formats.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-camlat/internal/config"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/camlat"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
	"github.com/teslashibe/go-camlat/pkg/report"

	_ "github.com/teslashibe/go-camlat/pkg/pipeline/gstreamer"
	_ "github.com/teslashibe/go-camlat/pkg/pipeline/mock"
	_ "github.com/teslashibe/go-camlat/pkg/pipeline/uvc"
	_ "github.com/teslashibe/go-camlat/pkg/video"
)

func main() {
	cfg, cmd := parseFlags()

	switch {
	case cmd.list:
		listSuites()
		return
	case cmd.export:
		exportSuite(cfg)
		return
	case cmd.show != "":
		showResults(cmd.show)
		return
	}

	app, err := camlat.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		os.Exit(1)
	}
	err = app.Run(ctx)
	app.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type command struct {
	list   bool
	export bool
	show   string
}

// parseFlags parses command line flags on top of environment defaults.
func parseFlags() (camlat.Config, command) {
	env := config.FromEnv()
	cfg := camlat.DefaultConfig()
	var cmd command

	suite := flag.String("suite", cfg.Suite, "Built-in suite: "+strings.Join(camera.SuiteNames(), ", "))
	suiteFile := flag.String("config", "", "YAML suite file (overrides -suite)")
	backend := flag.String("backend", env.Backend, "Camera backend: "+strings.Join(pipeline.Backends(), ", "))
	device := flag.String("device", env.Device, "Device index, path, URL or robot IP (backend specific)")
	warmup := flag.Int("warmup", cfg.Warmup, "Warm-up frames discarded per test")
	frames := flag.Int("frames", cfg.Frames, "Measured frames per test")
	pause := flag.Duration("pause", cfg.Pause, "Pause between tests")
	only := flag.String("only", "", "Comma-separated test case names to run")
	interactive := flag.Bool("interactive", false, "Pick test cases interactively")
	jsonPath := flag.String("json", "", "Write results to this JSON file")
	webAddr := flag.String("web", "", "Serve the live dashboard on this address, e.g. :8080")
	influxOn := flag.Bool("influx", env.Influx.Enabled, "Export samples to InfluxDB (INFLUX_HOST, INFLUX_TOKEN, INFLUX_DATABASE)")
	gdoc := flag.Bool("gdoc", false, "Publish the report to Google Docs (GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET)")
	docID := flag.String("gdoc-id", env.DocID, "Existing Google Doc to overwrite instead of creating one")
	logLevel := flag.String("log-level", env.LogLevel, "Log level: debug, info, warn, error")
	flag.BoolVar(&cmd.list, "list", false, "List backends and suites, then exit")
	flag.BoolVar(&cmd.export, "export", false, "Print the selected suite as YAML, then exit")
	flag.StringVar(&cmd.show, "show", "", "Print the comparison table of a results JSON file, then exit")
	flag.Parse()

	cfg.Suite, cfg.SuiteFile = *suite, *suiteFile
	cfg.Backend, cfg.Device = *backend, *device
	cfg.Warmup, cfg.Frames, cfg.Pause = *warmup, *frames, *pause
	cfg.Interactive, cfg.JSONPath, cfg.WebAddr = *interactive, *jsonPath, *webAddr
	cfg.LogLevel = *logLevel

	if *only != "" {
		cfg.Only = strings.Split(*only, ",")
	}

	cfg.Influx = env.Influx
	cfg.Influx.Enabled = *influxOn
	cfg.GDoc, cfg.DocID, cfg.Google = *gdoc, *docID, env.Google
	return cfg, cmd
}

func listSuites() {
	fmt.Println("Backends:")
	for _, b := range pipeline.Backends() {
		fmt.Printf("  %s\n", b)
	}
	for _, name := range camera.SuiteNames() {
		fmt.Printf("\nSuite %s:\n", name)
		for _, c := range camera.GetSuite(name) {
			fmt.Printf("  %-28s %s %s\n", c.Name, c.Describe(), c.Type)
		}
	}
}

func exportSuite(cfg camlat.Config) {
	cases := camera.GetSuite(cfg.Suite)
	if cases == nil {
		fmt.Fprintf(os.Stderr, "unknown suite: %s\n", cfg.Suite)
		os.Exit(2)
	}
	data, err := config.MarshalSuite(cfg.Suite, cases)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(data)
}

func showResults(path string) {
	f, err := report.ReadJSON(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Suite %s on %s, run %s (%s)\n\n", f.Suite, f.Backend, f.RunID, f.Generated.Format("2006-01-02 15:04:05"))
	fmt.Println(report.Table(f.Results))
}
