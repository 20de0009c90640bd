// Package api is CometLocal's HTTP surface: the Plan Builder's
// read-only and persistent endpoints, the guardrailed Executor
// trigger, run summaries, decision packs, and schedule ticks (spec
// §6), grounded on the teacher's internal/api.Server wiring
// (constructor bundling dependencies, manual mux registration, a
// goroutine-driven graceful shutdown).
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/cometlocal/cometlocal/internal/config"
	"github.com/cometlocal/cometlocal/internal/guardrail"
	"github.com/cometlocal/cometlocal/internal/store"
)

// Server bundles every dependency CometLocal's handlers need.
type Server struct {
	cfgManager config.ConfigManager
	store      *store.Store
	temporal   client.Client
	logger     *slog.Logger
	startTime  time.Time
	httpServer *http.Server

	// exports is the process-local export_id -> path index (spec §5,
	// "acceptable for the design; a persistent index is a reasonable
	// later upgrade").
	exportsMu sync.Mutex
	exports   map[string]string
}

// NewServer wires the API's dependencies. temporalClient may be nil
// when no Temporal cluster is reachable; the read-only Plan Builder
// endpoints keep working, and the write-execution endpoints reject
// with a structured error instead of panicking.
func NewServer(cfgManager config.ConfigManager, st *store.Store, temporalClient client.Client, logger *slog.Logger) *Server {
	return &Server{
		cfgManager: cfgManager,
		store:      st,
		temporal:   temporalClient,
		logger:     logger,
		startTime:  time.Now(),
		exports:    make(map[string]string),
	}
}

// Close releases the server's long-lived connections.
func (s *Server) Close() error {
	if s.temporal != nil {
		s.temporal.Close()
	}
	return s.store.Close()
}

// Start registers routes and blocks serving HTTP until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfgManager.Get()
	mux := http.NewServeMux()

	guarded := func(h http.HandlerFunc) http.Handler {
		return guardrail.Middleware(cfg.General.Environment, h)
	}

	// Read-only Plan Builder: never requires the coordination
	// guardrail since it performs no write against shared state; it
	// does not read the coordination headers (spec §4.9).
	mux.HandleFunc("/api/plans/build_submission_plan_readonly", s.handleBuildPlanReadonly)

	// Persistent Plan Builder and downstream write endpoints carry
	// the Context Guardrail (spec §4.15).
	mux.Handle("/api/plans/build_submission_plan", guarded(s.handleBuildPlanPersistent))
	mux.Handle("/api/plans/execute_plan_headful", guarded(s.handleExecutePlanHeadful))
	// Subtree: POST /api/plans/{plan_id}/decision_packs.
	mux.Handle("/api/plans/", guarded(s.handlePlanSubroutes))
	mux.Handle("/api/runs/auto_upload/execute", guarded(s.handleAutoUploadExecute))

	mux.HandleFunc("/api/runs/summary", s.handleRunsSummary)
	mux.HandleFunc("/api/schedules/tick", s.handleSchedulesTick)
	mux.Handle("/api/exports", guarded(s.handleCreateExport))
	mux.HandleFunc("/api/exports/", s.handleExportDownload)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        cfg.API.Bind,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "bind", cfg.API.Bind)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "uptime_seconds": int(time.Since(s.startTime).Seconds())})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "error_code": errCode, "message": msg})
}
