package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mensahub/mensa/internal/auth"
	"github.com/mensahub/mensa/internal/database"
	"github.com/mensahub/mensa/internal/notification"
	"github.com/mensahub/mensa/internal/planner"
	"github.com/mensahub/mensa/internal/web/handlers"
	"github.com/mensahub/mensa/internal/web/live"
	"github.com/mensahub/mensa/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	db          *database.DB
	port        int
	bind        string
	allowedNet  *net.IPNet
	router      *chi.Mux
	authService *auth.TenantAuthService
	broker      *live.Broker
	planner     *planner.Planner
	handlers    *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(db *database.DB, port int, bind string, allowedNet *net.IPNet) *Server {
	s := &Server{
		db:          db,
		port:        port,
		bind:        bind,
		allowedNet:  allowedNet,
		router:      chi.NewRouter(),
		authService: auth.NewTenantAuthService(db),
		broker:      live.NewBroker(),
		planner:     planner.New(db),
	}

	s.setupRoutes()
	return s
}

// Broker returns the live broker for broadcasting events
func (s *Server) Broker() *live.Broker {
	return s.broker
}

// Planner returns the meal planner
func (s *Server) Planner() *planner.Planner {
	return s.planner
}

// SetNotificationManager sets the notification manager and updates handlers
func (s *Server) SetNotificationManager(mgr *notification.Manager) {
	if s.handlers != nil {
		s.handlers.SetNotificationManager(mgr)
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware (applied to all routes, except timeout which is per-group)
	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	h := handlers.New(s.db, s.planner, s.broker)
	s.handlers = h

	// Health check - no auth, no tenant
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(10 * time.Second))
		r.Get("/healthz", h.Health)
	})

	// Live board websocket - tenant auth but no timeout (long-lived connections)
	r.Group(func(r chi.Router) {
		r.Use(middleware.TenantAuth(s.authService))
		r.Get("/api/live", func(w http.ResponseWriter, r *http.Request) {
			tenant := middleware.GetTenant(r.Context())
			s.broker.ServeHTTP(w, r, tenant.TenantID)
		})
	})

	// API routes (tenant auth via x-tenant-id / x-api-key headers)
	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Use(middleware.TenantAuth(s.authService))

		r.Route("/{resource}", func(r chi.Router) {
			r.Get("/", h.ListResource)
			r.Post("/", h.CreateResource)
			r.Get("/{id}", h.GetResource)
			r.Put("/{id}", h.UpdateResource)
			r.Delete("/{id}", h.DeleteResource)
		})

		r.Post("/orders/{id}/submit", h.SubmitOrder)

		r.Route("/ai", func(r chi.Router) {
			r.Post("/suggest-meals", h.SuggestMeals)
			r.Post("/optimize-plan", h.OptimizePlan)
			r.Post("/save-plan", h.SavePlan)
		})
	})
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow long-lived websocket connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop the broker first to close all live connections gracefully
		s.broker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
