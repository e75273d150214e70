// Package httpapi exposes the analysis service as a JSON API
package httpapi

import (
	"context"
	"net/http"
	"time"

	"cellscope/app"
	"cellscope/domain/core"
	"cellscope/domain/cycling"
	"cellscope/internal"
	"cellscope/internal/errors"
	"cellscope/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// Analyzer is the subset of the analysis service the API serves
type Analyzer interface {
	AnalyzeCell(ctx context.Context, id core.CellID) (*app.CellResult, error)
	AnalyzeData(data cycling.CellData) (*app.CellResult, error)
	AnalyzeCohort(ctx context.Context, scope ports.CohortScope) (*app.CohortResult, error)
	Porosity(ctx context.Context, id core.CellID) (*app.PorosityResult, error)
	LatestAnalysis(ctx context.Context, id core.CellID) (*ports.AnalysisRecord, error)
}

// Server routes HTTP requests to an Analyzer
type Server struct {
	analyzer Analyzer
	router   *chi.Mux
	validate *validator.Validate
	metrics  *Metrics
	logger   *internal.Logger
}

// NewServer creates the API server and its routes
func NewServer(analyzer Analyzer) *Server {
	s := &Server{
		analyzer: analyzer,
		router:   chi.NewRouter(),
		validate: newValidator(),
		metrics:  NewMetrics(),
		logger:   internal.DefaultLogger.WithComponent("http"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.metrics.Middleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Post("/analysis", s.handleAnalyzeData)
		r.Post("/porosity", s.handlePorosityRequest)

		r.Route("/cells/{id}", func(r chi.Router) {
			r.Get("/analysis", s.handleAnalyzeCell)
			r.Get("/analysis/latest", s.handleLatestAnalysis)
			r.Get("/porosity", s.handleCellPorosity)
		})

		r.Get("/cohorts/analysis", s.handleAnalyzeCohort)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request %s failed: %v", middleware.GetReqID(r.Context()), err)
	}
	s.writeJSON(w, r, status, errorResponse{Error: err.Error(), Code: errors.GetCode(err)})
}
