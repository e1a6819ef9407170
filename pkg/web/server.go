// Package web serves a live dashboard for a latency run: status and results
// over HTTP, per-frame samples and status changes over websockets.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-camlat/internal/log"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/harness"
	"github.com/teslashibe/go-camlat/pkg/hub"
)

// Run states reported by /api/status.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
)

// ErrRunBusy is returned by a RunFunc when a suite is already running.
var ErrRunBusy = errors.New("a suite is already running")

// Status is the current state of the harness.
type Status struct {
	State     string             `json:"state"`
	RunID     string             `json:"run_id,omitempty"`
	Backend   string             `json:"backend"`
	Suite     string             `json:"suite"`
	Case      string             `json:"case,omitempty"`
	CaseIndex int                `json:"case_index"`
	Cases     int                `json:"cases"`
	Completed int                `json:"completed"`
	Failed    int                `json:"failed"`
	Frame     *harness.FrameInfo `json:"frame,omitempty"`
	Progress  *harness.Progress  `json:"progress,omitempty"`
	Started   time.Time          `json:"started,omitempty"`
	Finished  time.Time          `json:"finished,omitempty"`
}

// RunFunc starts a suite run from the manager's active suite.
type RunFunc func() error

// Server is the dashboard. It implements harness.Observer.
type Server struct {
	harness.NopObserver

	app     *fiber.App
	addr    string
	manager *camera.Manager
	logger  *slog.Logger

	status   Status
	statusMu sync.RWMutex

	results   []*harness.Result
	resultsMu sync.RWMutex

	statusHub  *hub.Hub
	samplesHub *hub.Hub

	// OnRun is called by POST /api/run
	OnRun RunFunc
}

// NewServer builds the dashboard for the given manager. addr is a listen
// address such as ":8080".
func NewServer(addr, backend string, manager *camera.Manager) *Server {
	suite, cases := manager.Suite()
	s := &Server{
		addr:    addr,
		manager: manager,
		logger:  log.With("component", "web"),
		status: Status{
			State:   StateIdle,
			Backend: backend,
			Suite:   suite,
			Cases:   len(cases),
		},
		statusHub:  hub.New("status"),
		samplesHub: hub.New("samples"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "camlat",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/results", s.handleResults)
	api.Get("/suite", s.handleGetSuite)
	api.Put("/suite", s.handlePutSuite)
	api.Post("/run", s.handleRun)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/samples", websocket.New(s.serveHub(s.samplesHub)))
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start runs the hubs and blocks serving HTTP until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.samplesHub.Run(ctx)
	go func() {
		<-ctx.Done()
		s.app.ShutdownWithTimeout(5 * time.Second)
	}()

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine, logging any listen error.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// Status returns a copy of the current status.
func (s *Server) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Results returns the results collected so far.
func (s *Server) Results() []*harness.Result {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()
	out := make([]*harness.Result, len(s.results))
	copy(out, s.results)
	return out
}

func (s *Server) updateStatus(kind string, update func(*Status)) {
	s.statusMu.Lock()
	update(&s.status)
	st := s.status
	s.statusMu.Unlock()

	if err := s.statusHub.BroadcastEvent(kind, st); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}

// OnSuiteStart resets results for a new run.
func (s *Server) OnSuiteStart(runID string, cases []camera.Config) {
	s.resultsMu.Lock()
	s.results = nil
	s.resultsMu.Unlock()

	suite, _ := s.manager.Suite()
	s.updateStatus("suite_start", func(st *Status) {
		st.State = StateRunning
		st.RunID = runID
		st.Suite = suite
		st.Cases = len(cases)
		st.CaseIndex = 0
		st.Completed = 0
		st.Failed = 0
		st.Case = ""
		st.Frame = nil
		st.Progress = nil
		st.Started = time.Now()
		st.Finished = time.Time{}
	})
}

func (s *Server) OnCaseStart(_ string, cfg camera.Config) {
	s.updateStatus("case_start", func(st *Status) {
		st.CaseIndex++
		st.Case = cfg.Name
		st.Frame = nil
		st.Progress = nil
	})
}

func (s *Server) OnFrameInfo(_ camera.Config, info harness.FrameInfo) {
	s.updateStatus("frame_info", func(st *Status) {
		st.Frame = &info
	})
}

// OnSample streams every measured frame to /ws/samples.
func (s *Server) OnSample(_ camera.Config, sample harness.Sample) {
	s.samplesHub.BroadcastEvent("sample", sample)
}

func (s *Server) OnProgress(_ camera.Config, p harness.Progress) {
	s.updateStatus("progress", func(st *Status) {
		st.Progress = &p
	})
}

func (s *Server) OnResult(r *harness.Result) {
	s.resultsMu.Lock()
	s.results = append(s.results, r)
	s.resultsMu.Unlock()

	s.updateStatus("result", func(st *Status) {
		st.Completed++
	})
}

func (s *Server) OnError(cfg camera.Config, err error) {
	s.updateStatus("error", func(st *Status) {
		st.Failed++
	})
	s.samplesHub.BroadcastEvent("error", map[string]string{
		"case":  cfg.Name,
		"error": err.Error(),
	})
}

// OnSuiteEnd keeps the harness's results, which include failed cases.
func (s *Server) OnSuiteEnd(_ string, results []*harness.Result) {
	s.resultsMu.Lock()
	s.results = results
	s.resultsMu.Unlock()

	s.updateStatus("suite_end", func(st *Status) {
		st.State = StateDone
		st.Case = ""
		st.Finished = time.Now()
	})
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
