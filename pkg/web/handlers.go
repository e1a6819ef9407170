package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/hub"
)

// handleStatus returns the current run state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleResults returns results of the current or last run
func (s *Server) handleResults(c *fiber.Ctx) error {
	return c.JSON(s.Results())
}

// handleGetSuite returns the active suite
func (s *Server) handleGetSuite(c *fiber.Ctx) error {
	return c.JSON(s.manager.SuiteJSON())
}

// SuiteRequest is the body of PUT /api/suite. Exactly one of the forms is used:
// a built-in suite by name, a full list of cases, or a patch of one case.
type SuiteRequest struct {
	Suite  string                 `json:"suite"`
	Cases  []camera.Config        `json:"cases"`
	Case   string                 `json:"case"`
	Params map[string]interface{} `json:"params"`
	Only   []string               `json:"only"`
}

// handlePutSuite changes the active suite
func (s *Server) handlePutSuite(c *fiber.Ctx) error {
	if s.Status().State == StateRunning {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": ErrRunBusy.Error(),
		})
	}

	var req SuiteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	var err error
	switch {
	case len(req.Cases) > 0:
		name := req.Suite
		if name == "" {
			name = "custom"
		}
		err = s.manager.SetSuite(name, req.Cases)
	case req.Suite != "":
		err = s.manager.SelectSuite(req.Suite)
	case req.Case != "":
		err = s.manager.UpdateCase(req.Case, req.Params)
	case len(req.Only) == 0:
		err = errors.New("request must set suite, cases, case or only")
	}
	if err == nil && len(req.Only) > 0 {
		err = s.manager.Filter(req.Only)
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	suite, cases := s.manager.Suite()
	s.updateStatus("suite", func(st *Status) {
		st.Suite = suite
		st.Cases = len(cases)
	})
	return c.JSON(s.manager.SuiteJSON())
}

// handleRun starts a new run of the active suite
func (s *Server) handleRun(c *fiber.Ctx) error {
	if s.OnRun == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "run trigger not configured",
		})
	}
	if err := s.OnRun(); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrRunBusy) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "started",
	})
}

// serveHub attaches a websocket connection to a hub until it disconnects
func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client, err := hub.NewClient(h, conn)
		if err != nil {
			conn.Close()
			return
		}
		client.Run()
	}
}
