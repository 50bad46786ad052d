package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
)

// Server is the HTTP API server together with its event feed
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	hub        *EventHub
	hubCtx     context.Context
	stopHub    context.CancelFunc
	logger     *logger.Logger
	config     *config.Config
}

// New creates a new API server. hub may be nil when the feed is disabled.
func New(cfg *config.Config, log *logger.Logger, router http.Handler, hub *EventHub) *Server {
	hubCtx, stopHub := context.WithCancel(context.Background())
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second, // evaluations walk full price histories
			IdleTimeout:       60 * time.Second,
		},
		hub:     hub,
		hubCtx:  hubCtx,
		stopHub: stopHub,
		logger:  log.WithComponent("api"),
		config:  cfg,
	}
}

// Start runs the event feed and blocks serving HTTP until Shutdown
func (s *Server) Start() error {
	if s.hub != nil {
		go s.hub.Run(s.hubCtx)
	}

	s.logger.WithFields(map[string]interface{}{
		"port": s.config.Port,
		"env":  s.config.Env,
	}).Info("Starting API server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and closes feed clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	s.stopHub()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
