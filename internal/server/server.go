// Package server wires the HTTP layer: sync submission, the viewer
// websocket endpoint, and the read-only projections of store and registry
// state.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/FadhilAkbarC/roblox-sync-backend/internal/config"
	apperrors "github.com/FadhilAkbarC/roblox-sync-backend/internal/errors"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/hub"
	"github.com/FadhilAkbarC/roblox-sync-backend/internal/store"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	store     *store.Store
	hub       *hub.Hub
	limits    *ConnectionLimits
	upgrader  websocket.Upgrader
	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, st *store.Store, h *hub.Hub, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Origins(),
	}))
	e.Use(apperrors.Middleware(cfg.Production()))

	srv := &Server{
		echo:      e,
		config:    cfg,
		store:     st,
		hub:       h,
		limits:    NewConnectionLimits(cfg.MaxConnections, cfg.MaxPerIP, cfg.ConnectsPerSecond, cfg.ConnectBurst),
		clock:     clock,
		startTime: clock.Now(),
	}

	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.checkOrigin,
	}

	srv.registerRoutes()
	return srv
}

// checkOrigin admits websocket upgrades from the configured origins.
// Requests without an Origin header (non-browser clients) are allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.Origins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) Start() error {
	return s.echo.Start(net.JoinHostPort(s.config.BindAddr, s.config.Port))
}

// Shutdown stops accepting new connections and waits for in-flight
// requests up to the context deadline. Viewer connections are closed by
// the hub afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
