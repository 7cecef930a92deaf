package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
)

// ResearchHandler exposes the single-flight research session over HTTP. It
// owns the handoff channel of the currently running session; the session
// snapshot itself lives in research.Session and is written only by the
// orchestrator goroutine.
type ResearchHandler struct {
	cfg     *config.Config
	svc     research.AgentService
	session *research.Session
	logger  *log.Logger

	mu      sync.Mutex
	handoff *research.Handoff
}

func NewResearchHandler(cfg *config.Config, svc research.AgentService, session *research.Session) *ResearchHandler {
	return &ResearchHandler{
		cfg:     cfg,
		svc:     svc,
		session: session,
		logger:  log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
	}
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.GET("/status", h.status)
	g.POST("/start_research", h.startResearch)
	g.POST("/send_message", h.sendMessage)
	g.GET("/download/:filename", h.download)
}

// status returns the full session snapshot.
//
//	@Summary	Session status
//	@Tags		research
//	@Produce	json
//	@Success	200	{object}	research.Snapshot
//	@Router		/api/status [get]
func (h *ResearchHandler) status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Snapshot())
}

// startResearch launches the background session seeded with the topic.
//
//	@Summary	Start a research session
//	@Tags		research
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		StartResearchRequest	true	"Research topic"
//	@Success	200		{object}	AckResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/start_research [post]
func (h *ResearchHandler) startResearch(c echo.Context) error {
	if h.session.IsRunning() {
		return echo.NewHTTPError(http.StatusBadRequest, "a research session is already running")
	}
	var req StartResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "research topic is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// TryBegin is the authoritative claim; the IsRunning check above only
	// exists to reject early without resetting state
	if !h.session.TryBegin() {
		return echo.NewHTTPError(http.StatusBadRequest, "a research session is already running")
	}
	handoff := research.NewHandoff(h.cfg.Research.HandoffCapacity)
	if err := handoff.Send(topic); err != nil {
		h.session.End()
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.handoff = handoff

	h.logger.Printf("starting research session: %s", topic)
	orch := research.NewOrchestrator(h.cfg, h.svc, h.session, handoff, nil)
	go orch.Run(context.Background())

	return c.JSON(http.StatusOK, AckResponse{Success: true, Message: "research session started"})
}

// sendMessage forwards a human reply to the waiting orchestrator.
//
//	@Summary	Reply to the running session
//	@Tags		research
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		SendMessageRequest	true	"User reply"
//	@Success	200		{object}	AckResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/api/send_message [post]
func (h *ResearchHandler) sendMessage(c echo.Context) error {
	if !h.session.IsRunning() {
		return echo.NewHTTPError(http.StatusBadRequest, "no active research session")
	}
	if !h.session.WaitingForInput() {
		return echo.NewHTTPError(http.StatusBadRequest, "session is not waiting for input")
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	h.mu.Lock()
	handoff := h.handoff
	h.mu.Unlock()
	if handoff == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "no active research session")
	}
	if err := handoff.Send(message); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	h.logger.Printf("user message relayed: %s", message)
	return c.JSON(http.StatusOK, AckResponse{Success: true, Message: "message sent"})
}

// download streams a generated report as an attachment. Filenames are
// flattened to their base name and resolved against the report directory
// only.
//
//	@Summary	Download a report
//	@Tags		research
//	@Param		filename	path	string	true	"Report file name"
//	@Produce	octet-stream
//	@Success	200	{file}		file
//	@Failure	404	{object}	HTTPError
//	@Router		/api/download/{filename} [get]
func (h *ResearchHandler) download(c echo.Context) error {
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == ".." || name == "/" {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	dir := h.cfg.Research.ReportDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		h.logger.Printf("download requested for missing file: %s", name)
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}
	h.logger.Printf("downloading file: %s", name)
	return c.Attachment(path, name)
}
