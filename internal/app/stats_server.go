package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket upgrader for real-time stats
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatsServer exposes health checks and pipeline statistics over HTTP.
type StatsServer struct {
	logger *zap.Logger
	runner *Runner
	port   int

	server *http.Server
}

// NewStatsServer creates a stats server for the given runner.
func NewStatsServer(logger *zap.Logger, runner *Runner, port int) *StatsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsServer{
		logger: logger.Named("stats"),
		runner: runner,
		port:   port,
	}
}

// Run serves until the context is cancelled.
func (s *StatsServer) Run(ctx context.Context) {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// JSON stats endpoint
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		stats := s.runner.GetStats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(stats)
	})

	// Pending confirmation count, for operator visibility
	mux.HandleFunc("/pending", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]int{
			"pending": s.runner.confirm.PendingCount(),
		})
	})

	// WebSocket endpoint for real-time stats
	mux.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, req, nil)
		if err != nil {
			s.logger.Error("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		// Send stats every second
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-req.Context().Done():
				return
			case <-ticker.C:
				stats := s.runner.GetStats()
				if err := conn.WriteJSON(stats); err != nil {
					return // Client disconnected
				}
			}
		}
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.logger.Info("stats server listening", zap.Int("port", s.port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("stats server shutdown", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("stats server error", zap.Error(err))
	}
}
