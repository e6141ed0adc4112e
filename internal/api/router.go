package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"careAlert/internal/api/handlers/http/incidents"
	"careAlert/internal/api/handlers/http/notifications"
	"careAlert/internal/api/handlers/http/staff"
	"careAlert/internal/api/handlers/http/system"
	"careAlert/internal/config"
	"careAlert/internal/middleware"
	"careAlert/internal/service"
)

type Server struct {
	logger *slog.Logger
	router *chi.Mux
	cfg    config.Config
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Incidents     *incidents.Handler
	Notifications *notifications.Handler
	Staff         *staff.Handler
	System        *system.Handler
	Metrics       http.Handler
	Realtime      http.Handler
}

func NewServer(cfg *config.Config, logger *slog.Logger, svc *service.Service, metrics, realtime http.Handler, checks map[string]system.Check) *Server {
	// keep a nil dispatcher a nil interface
	var dispatcher notifications.Dispatcher
	if svc.Dispatcher != nil {
		dispatcher = svc.Dispatcher
	}

	h := Handlers{
		Incidents:     incidents.NewHandler(logger, svc.Incidents),
		Notifications: notifications.NewHandler(logger, svc.Subscriptions, dispatcher, cfg.Push.VAPIDPublicKey),
		Staff:         staff.NewHandler(logger, svc.Staff),
		System:        system.NewHandler(logger, checks),
		Metrics:       metrics,
		Realtime:      realtime,
	}

	return &Server{
		logger: logger,
		router: InitRouter(cfg, h, logger),
		cfg:    *cfg,
	}
}

func InitRouter(cfg *config.Config, h Handlers, logger *slog.Logger) *chi.Mux {
	r := chi.NewMux()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Http.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.Disabled, logger)

	r.Route("/api/v1", func(api chi.Router) {
		// SYSTEM
		api.Get("/health", h.System.SystemHealth)
		if h.Metrics != nil {
			api.Handle("/metrics", h.Metrics)
		}
		if h.Realtime != nil {
			api.With(middleware.Limit(5, 10, 10*time.Minute, logger)).Handle("/ws", h.Realtime)
		}

		api.Route("/notifications", func(nr chi.Router) {
			nr.Group(h.Notifications.PublicRoutes)
			nr.Group(func(pr chi.Router) {
				pr.Use(authenticate)
				pr.Use(middleware.Limit(10, 20, 5*time.Minute, logger))
				h.Notifications.Routes(pr)
			})
		})

		api.Group(func(pr chi.Router) {
			pr.Use(authenticate)
			pr.Use(middleware.Limit(20, 40, 5*time.Minute, logger))

			pr.Route("/incidents", h.Incidents.Routes)
			pr.Route("/professionals", h.Staff.Routes)
		})
	})

	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.Http.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	srv := &http.Server{
		Addr:         port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Http.ReadTimeout,
		WriteTimeout: s.cfg.Http.WriteTimeout,
		IdleTimeout:  30 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("Starting HTTP server",
			slog.String("addr", srv.Addr),
			slog.Duration("read_timeout", s.cfg.Http.ReadTimeout),
			slog.Duration("write_timeout", s.cfg.Http.WriteTimeout),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("ListenAndServe error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server", slog.String("reason", ctx.Err().Error()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Http.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Server shutdown failed", slog.Any("error", err))
			return err
		}
		return nil

	case err := <-errChan:
		return err
	}
}
