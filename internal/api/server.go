// Package api exposes a read-only status/control HTTP surface over the
// sync process, the live supervisor, and the trade executor: health,
// current status, the latest TradingState, and a WebSocket stream of
// status transitions. It mirrors the teacher's echo-based server shape,
// repointed at this system's own status model.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/lnm-trading/agent/internal/api/middleware"
	"github.com/lnm-trading/agent/internal/api/websocket"
	"github.com/lnm-trading/agent/internal/execution"
	"github.com/lnm-trading/agent/internal/live"
	"github.com/lnm-trading/agent/internal/metrics"
	"github.com/lnm-trading/agent/internal/sync"
)

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     []string{"*"},
	}
}

// Server is the status/control HTTP surface. Supervisor and Executor may
// be nil (e.g. a sync-only process never constructs them).
type Server struct {
	config     *ServerConfig
	echo       *echo.Echo
	syncCtl    *sync.Controller
	supervisor *live.Supervisor
	executor   execution.Executor
	wsHub      *websocket.Hub
}

func NewServer(config *ServerConfig, syncCtl *sync.Controller, supervisor *live.Supervisor, executor execution.Executor) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		config:     config,
		echo:       e,
		syncCtl:    syncCtl,
		supervisor: supervisor,
		executor:   executor,
		wsHub:      websocket.NewHub(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echoMiddleware.Recover())
	s.echo.Use(middleware.Logger())
	s.echo.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: s.config.CORSOrigins,
		AllowMethods: []string{http.MethodGet},
	}))
	s.echo.Use(echoMiddleware.RequestID())
	s.echo.Use(echoMiddleware.Gzip())
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/sync/status", s.getSyncStatus)
	v1.GET("/trading/state", s.getTradingState)
	s.echo.GET("/ws", s.handleWebSocket)
}

func (s *Server) getSyncStatus(c echo.Context) error {
	if s.syncCtl == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "sync not configured"})
	}
	st := s.syncCtl.Status()
	return c.JSON(http.StatusOK, map[string]any{"status": st.String()})
}

func (s *Server) getTradingState(c echo.Context) error {
	if s.executor == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "executor not configured"})
	}
	state := s.executor.TradingState()
	return c.JSON(http.StatusOK, map[string]any{
		"market_price":  state.MarketPrice.Float64(),
		"balance_sats":  state.Balance.Uint64(),
		"running_count": len(state.Running),
		"closed_count":  len(state.Closed),
		"realized_pl":   state.RealizedPL,
		"unrealized_pl": state.UnrealizedPL,
		"fees_paid":     state.FeesPaid.Uint64(),
	})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	var snapshot any
	if s.executor != nil {
		snapshot = s.executor.TradingState()
	}
	return websocket.HandleConnection(c, s.wsHub, snapshot)
}

// Start runs the hub, forwards supervisor status to it, and serves HTTP
// until Shutdown is called.
func (s *Server) Start() error {
	go s.wsHub.Run()
	go s.forwardStatus()

	log.Info().Str("port", s.config.Port).Msg("starting status API server")
	return s.echo.Start(s.config.Port)
}

func (s *Server) forwardStatus() {
	if s.supervisor == nil {
		return
	}
	ch, unsubscribe := s.supervisor.Subscribe(64)
	defer unsubscribe()
	for v := range ch {
		s.wsHub.Broadcast(map[string]any{"type": "live_status", "data": v})
	}
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.wsHub.Close()
	log.Info().Msg("shutting down status API server")
	return s.echo.Shutdown(ctx)
}
