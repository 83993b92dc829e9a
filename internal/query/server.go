// Package query implements C8 (§4.8): the read-only HTTP surface exposing
// the aggregator's materialized views.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vitalstream/telemetry-pipeline/internal/aggregator"
)

const defaultRecentAlertsWindowMinutes = 5

// Server wraps an aggregator.Store with health/readiness endpoints in the
// same shape as the teacher's HTTP wrapper (/health, /healthz, /readyz),
// plus the two read-model routes this component owns.
type Server struct {
	store      aggregator.Store
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	addr       string
	startedAt  time.Time
}

// NewServer constructs a query Server bound to addr (e.g. ":8080").
func NewServer(store aggregator.Store, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, addr: addr, logger: logger, startedAt: time.Now()}
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleHealth)
	mux.HandleFunc("/stats/patients/", s.handlePatientSummary)
	mux.HandleFunc("/stats/global/alerts", s.handleGlobalAlerts)

	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("query: listen on %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("query server listening", "addr", s.listener.Addr().String())
	if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the address the server is bound to.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).Seconds(),
	})
}

// handlePatientSummary serves GET /stats/patients/{patient_id}/summary.
func (s *Server) handlePatientSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/stats/patients/")
	patientID, rest, ok := strings.Cut(path, "/")
	if !ok || rest != "summary" || patientID == "" {
		s.writeError(w, http.StatusNotFound, "expected /stats/patients/{patient_id}/summary")
		return
	}

	summary, err := s.store.PatientSummary(r.Context(), patientID)
	if err != nil {
		s.logger.Error("patient summary lookup failed", "patient_id", patientID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read patient summary")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// handleGlobalAlerts serves GET /stats/global/alerts, and the supplemented
// ?window=Nm query parameter (grounded on original_source's
// get_recent_alerts_by_severity), which reports a sum over the last N
// minutes instead of the default current/previous-minute view.
func (s *Server) handleGlobalAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	if windowParam := r.URL.Query().Get("window"); windowParam != "" {
		minutes, err := parseWindowMinutes(windowParam)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		counts, err := s.store.RecentAlerts(r.Context(), now, minutes)
		if err != nil {
			s.logger.Error("recent alerts lookup failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to read recent alerts")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"alerts_per_minute": counts,
			"window_minutes":    minutes,
			"timestamp":         now.UTC().Format(time.RFC3339),
		})
		return
	}

	result, err := s.store.GlobalAlerts(r.Context(), now)
	if err != nil {
		s.logger.Error("global alerts lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read global alerts")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// parseWindowMinutes parses a "?window=" value such as "5m", "15m" or "15"
// into a minute count (the "m" suffix is optional), defaulting to
// defaultRecentAlertsWindowMinutes when no number is given ("" or "m").
func parseWindowMinutes(raw string) (int, error) {
	trimmed := strings.TrimSuffix(raw, "m")
	if trimmed == "" {
		return defaultRecentAlertsWindowMinutes, nil
	}
	minutes, err := strconv.Atoi(trimmed)
	if err != nil || minutes <= 0 {
		return 0, fmt.Errorf("invalid window parameter %q: expected a positive minute count like \"5m\"", raw)
	}
	return minutes, nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
