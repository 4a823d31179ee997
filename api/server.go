package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/state"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ADMIN API - Health, status snapshot and the kill switch
// ═══════════════════════════════════════════════════════════════════════════════

// Server exposes the read-only status surface and the admission kill switch
type Server struct {
	state     *state.AgentState
	srv       *http.Server
	onRestart func() // optional
}

// NewServer creates the admin server
func NewServer(port int, st *state.AgentState, onRestart func()) *Server {
	s := &Server{state: st, onRestart: onRestart}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /paper-trades", s.handlePaperTrades)
	mux.HandleFunc("POST /admin/kill-switch", s.handleKillSwitch)
	mux.HandleFunc("POST /admin/restart", s.handleRestart)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves in the background until Shutdown
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("🌐 Admin API listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Admin API server failed")
		}
	}()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handlePaperTrades(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.state.PaperTradeEntries()})
}

func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "body must be {\"enabled\": bool}"})
		return
	}

	s.state.SetKillSwitch(*payload.Enabled)
	s.state.AddEvent("warning", "kill_switch_toggled", map[string]any{"enabled": *payload.Enabled})
	log.Warn().Bool("enabled", *payload.Enabled).Msg("🛑 Kill switch toggled")

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                  true,
		"kill_switch_enabled": s.state.IsKillSwitchEnabled(),
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	if s.onRestart == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]any{"ok": false, "error": "restart not wired"})
		return
	}
	s.state.AddEvent("warning", "agent_restart_requested", map[string]any{})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "restarting": true})

	go func() {
		time.Sleep(400 * time.Millisecond)
		s.onRestart()
	}()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Admin API response encode failed")
	}
}
