// Package api is the local HTTP interface to the logbook.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/importer"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

// Router is the API router
type Router struct {
	handler            *Handler
	middleware         *Middleware
	corsAllowedOrigins []string
	logger             *logger.Logger
}

// NewRouter creates the API router
func NewRouter(flights *sqlite.FlightStorage, imp *importer.Importer, registry *airports.Registry, corsAllowedOrigins []string, log *logger.Logger) *Router {
	return &Router{
		handler:            NewHandler(flights, imp, registry, log),
		middleware:         NewMiddleware(log),
		corsAllowedOrigins: corsAllowedOrigins,
		logger:             log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.corsAllowedOrigins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)

		router.Get("/flights", r.handler.ListFlights)
		router.Get("/flights/{id}", r.handler.GetFlight)
		router.Delete("/flights/{id}", r.handler.DeleteFlight)

		router.Get("/totals", r.handler.GetTotals)
		router.Post("/imports", r.handler.Import)
		router.Post("/crew-time", r.handler.CrewTime)
		router.Get("/airports/{code}", r.handler.GetAirport)
	})

	r.logger.Debug("API routes registered", logger.Strings("cors_allowed_origins", r.corsAllowedOrigins))
	return router
}

// ListenAndServe serves the API on addr until ctx is cancelled
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("API listening", logger.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
