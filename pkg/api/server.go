// Package api exposes the diagnosis pipeline over HTTP: alert-driven
// session launches and read-only access to persisted session artifacts.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AarenWang/haifa-ai/pkg/alert"
	"github.com/AarenWang/haifa-ai/pkg/audit"
	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/diagnose"
	"github.com/AarenWang/haifa-ai/pkg/evidence"
	"github.com/AarenWang/haifa-ai/pkg/executor"
	"github.com/AarenWang/haifa-ai/pkg/history"
	"github.com/AarenWang/haifa-ai/pkg/orchestrator"
	"github.com/AarenWang/haifa-ai/pkg/planner"
	"github.com/AarenWang/haifa-ai/pkg/version"
)

// Server wires the HTTP API to one configured pipeline.
type Server struct {
	cfg     *config.Config
	exec    executor.Executor
	llm     planner.Client
	engine  *gin.Engine
	history *history.Store
}

// NewServer builds the router. The executor and planner are injected so
// tests can run the full API against scripted fakes.
func NewServer(cfg *config.Config, exec executor.Executor, llm planner.Client) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, exec: exec, llm: llm, engine: gin.New()}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.health)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/diagnose", s.postDiagnose)
	v1.GET("/sessions/:id/evidence", s.sessionIndex("evidence_pack"))
	v1.GET("/sessions/:id/report", s.sessionIndex("diagnosis_report"))
	v1.GET("/sessions/:id/trace", s.sessionIndex("diagnosis_trace"))

	return s
}

// SetHistory enables best-effort session recording in Postgres.
func (s *Server) SetHistory(store *history.Store) {
	s.history = store
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured listen address, blocking until the
// listener fails.
func (s *Server) Run() error {
	addr := s.cfg.Server.Listen
	if addr == "" {
		addr = ":8088"
	}
	slog.Info("api listening", "addr", addr)
	return s.engine.Run(addr)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Full()})
}

func (s *Server) postDiagnose(c *gin.Context) {
	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}

	req := alert.NormalizeAlert(payload)
	if req.Service == "" || !orchestrator.ValidService(req.Service) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid service"})
		return
	}

	octx := orchestrator.Context{
		Host:          req.Host,
		Service:       req.Service,
		Env:           req.Env,
		WindowMinutes: req.WindowMinutes,
		SessionID:     orchestrator.NewSessionID(),
		ExecMode:      stringField(payload, "exec_mode", orchestrator.ExecModeSSH),
		PID:           stringField(payload, "pid", ""),
		Platform:      stringField(payload, "platform", "auto"),
	}
	if octx.PID != "" && !orchestrator.ValidPID(octx.PID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pid"})
		return
	}

	res, err := diagnose.Run(context.Background(), s.cfg, octx, s.exec, s.llm, diagnose.DefaultBudget())
	if err != nil {
		slog.Error("diagnose failed", "session_id", octx.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "diagnose failed",
			"session_id": octx.SessionID,
		})
		return
	}

	if s.history != nil {
		if err := s.history.SaveSession(c.Request.Context(), res); err != nil {
			slog.Warn("history save failed", "session_id", octx.SessionID, "error", err)
		} else if entries, err := audit.NewLog(s.cfg.AuditLog).ReadSession(octx.SessionID); err == nil {
			if err := s.history.SaveExecutions(c.Request.Context(), octx.SessionID, entries); err != nil {
				slog.Warn("history executions save failed", "session_id", octx.SessionID, "error", err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":  octx.SessionID,
		"stop_reason": res.Trace.StopReason,
		"report":      res.Report,
	})
}

// sessionIndex serves one named index document from a session's
// evidence tree.
func (s *Server) sessionIndex(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("id")
		// Session ids share the service charset, which also keeps path
		// traversal out of the evidence tree.
		if !orchestrator.ValidService(sessionID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		store := evidence.NewStore(s.cfg.Evidence.BaseDir, sessionID, s.cfg.Evidence.KeepRaw())
		var doc map[string]any
		if err := store.ReadIndex(name, &doc); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func stringField(payload map[string]any, key, fallback string) string {
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
