// Package server provides the HTTP and WebSocket API for the dashboard.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/gridsec-dashboard/internal/config"
	"github.com/invisible-tech/gridsec-dashboard/internal/dashboard"
	"github.com/invisible-tech/gridsec-dashboard/internal/version"
	"github.com/invisible-tech/gridsec-dashboard/pkg/analytics"
)

// Exporter is the subset of the analytics client the pass-through routes use.
type Exporter interface {
	ExportCSV(ctx context.Context) ([]byte, error)
	FilterEvents(ctx context.Context, attackType, threatLevel string) (*analytics.FilteredEventsResponse, error)
}

// Server is the HTTP server for the dashboard API.
type Server struct {
	cfg        config.DashboardConfig
	dash       *dashboard.Dashboard
	exporter   Exporter
	log        *logrus.Logger
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates the HTTP server around the given dashboard.
func New(cfg config.DashboardConfig, dash *dashboard.Dashboard, exporter Exporter, log *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		dash:     dash,
		exporter: exporter,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Dashboard is served from arbitrary origins in dev setups.
				return true
			},
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/dashboard", s.handleDashboard).Methods(http.MethodGet)
	router.HandleFunc("/api/dashboard/events", s.handleEvents).Methods(http.MethodGet)
	router.HandleFunc("/api/dashboard/model", s.handleModel).Methods(http.MethodGet)
	router.HandleFunc("/api/events/filter", s.handleFilterEvents).Methods(http.MethodGet)
	router.HandleFunc("/api/export/csv", s.handleExportCSV).Methods(http.MethodGet)
	router.HandleFunc("/ws/dashboard", s.handleStream).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server. It blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.HTTPAddr).Info("Dashboard listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap := s.dash.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":            snap.State,
		"events":           snap.Events,
		"total_events":     snap.TotalEvents,
		"suspicious_count": snap.SuspiciousCount,
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	snap := s.dash.Snapshot()
	if snap.Model == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	}
	writeJSON(w, http.StatusOK, snap.Model)
}

func (s *Server) handleFilterEvents(w http.ResponseWriter, r *http.Request) {
	attackType := r.URL.Query().Get("attack_type")
	threatLevel := r.URL.Query().Get("threat_level")

	resp, err := s.exporter.FilterEvents(r.Context(), attackType, threatLevel)
	if err != nil {
		s.log.WithError(err).Warn("Event filter pass-through failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := s.exporter.ExportCSV(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("CSV export pass-through failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_events.csv"`)
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"state":   string(s.dash.State()),
		"version": version.Version,
	})
}

// handleStream pushes a snapshot to the client after every successful
// refresh cycle. The client does not send application messages; reads only
// drain control frames and detect disconnect.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.log.WithField("remote", r.RemoteAddr).Info("Dashboard stream connected")

	snapshots, cancel := s.dash.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current view immediately so the client does not wait for the
	// next poll cycle.
	if err := conn.WriteJSON(s.dash.Snapshot()); err != nil {
		return
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			s.log.WithField("remote", r.RemoteAddr).Debug("Dashboard stream disconnected")
			return
		case snap, ok := <-snapshots:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				s.log.WithError(err).Debug("Dashboard stream write failed")
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
