// Package server assembles the driverhub HTTP surface: middleware, CORS,
// base-path mounting, and the protocol routes. The server owns no sockets;
// the Router is a pure handler and process lifetime is managed by the
// caller.
package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driverhub/driverhub/internal/common/middleware"
	"github.com/driverhub/driverhub/internal/config"
	"github.com/driverhub/driverhub/internal/dispatch"
	"github.com/driverhub/driverhub/internal/session"
	"github.com/driverhub/driverhub/pkg/driver"
)

// Version is the server build version reported by /status.
var Version = "0.1.0"

// Server is the driverhub protocol server over one driver.
type Server struct {
	Router *chi.Mux

	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
}

// New creates a server over the given driver using the active configuration
// and mounts all handlers.
func New(drv driver.Driver) (*Server, error) {
	cfg := config.Config()
	if cfg == nil {
		return nil, fmt.Errorf("configuration is not loaded")
	}

	mgr := session.NewManager(drv, cfg.NewCommandTimeout())
	s := &Server{
		Router:     chi.NewRouter(),
		dispatcher: dispatch.New(drv, mgr, cfg.IdempotencyHeader),
		sessions:   mgr,
	}
	s.mountHandlers(cfg)
	return s, nil
}

// Sessions returns the server's session manager, for graceful shutdown.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

func (s *Server) mountHandlers(cfg *config.ConfigParam) {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	s.Router.Use(middleware.SetTimeout(cfg.RequestTimeout()))
	if cfg.HandleCORS {
		s.Router.Use(s.handleCORS)
	}
	s.Router.NotFound(s.dispatcher.NotFoundHandler())
	s.Router.MethodNotAllowed(s.dispatcher.MethodNotAllowedHandler())

	if cfg.BasePath != "" && cfg.BasePath != "/" {
		s.Router.Route(cfg.BasePath, func(r chi.Router) {
			s.mountProtocolHandlers(r)
		})
	} else {
		s.mountProtocolHandlers(s.Router)
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		fmt.Println("Routes in driverhub router")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("Error walking router")
		}
	}
}

// mountProtocolHandlers registers the session lifecycle endpoints and every
// command route.
func (s *Server) mountProtocolHandlers(r chi.Router) {
	d := s.dispatcher

	r.Get("/status", d.StatusHandler(Version))
	r.Post("/session", d.CreateSessionHandler())
	r.Get("/sessions", d.GetSessionsHandler())
	r.Get("/session/{sessionId}", d.GetSessionHandler())
	r.Delete("/session/{sessionId}", d.DeleteSessionHandler())
	r.Get("/session/{sessionId}/events", d.GetEventsHandler())

	for _, rt := range dispatch.Routes {
		r.MethodFunc(rt.Method, rt.Pattern, d.CommandHandler(rt))
	}
}

// handleCORS provides CORS middleware for cross-origin requests.
func (s *Server) handleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{"Link", "Location", middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
