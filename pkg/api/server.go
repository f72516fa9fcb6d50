// Package api exposes the HTTP surface: analysis intake and retrieval under
// /api/v1 behind API key auth and rate limiting, plus unauthenticated health
// endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/database"
	"github.com/dshield-labs/coordengine/pkg/llm"
	"github.com/dshield-labs/coordengine/pkg/queue"
	"github.com/dshield-labs/coordengine/pkg/services"
	"github.com/dshield-labs/coordengine/pkg/state"
)

// Server is the HTTP API server.
type Server struct {
	cfg             *config.Config
	dbClient        *database.Client
	analysisService *services.AnalysisService
	store           *state.Store
	resultCache     *cache.Cache
	limiter         *cache.Limiter
	llmClient       *llm.Client
	workerPool      *queue.WorkerPool

	echo       *echo.Echo
	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates the API server and registers all routes.
// limiter, llmClient, and workerPool may be nil; the corresponding
// middleware or checks are skipped.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	analysisService *services.AnalysisService,
	store *state.Store,
	resultCache *cache.Cache,
	limiter *cache.Limiter,
	llmClient *llm.Client,
	workerPool *queue.WorkerPool,
) *Server {
	if cfg == nil {
		panic("api.NewServer: cfg must not be nil")
	}
	if dbClient == nil {
		panic("api.NewServer: dbClient must not be nil")
	}
	if analysisService == nil {
		panic("api.NewServer: analysisService must not be nil")
	}
	if store == nil {
		panic("api.NewServer: store must not be nil")
	}
	if resultCache == nil {
		panic("api.NewServer: resultCache must not be nil")
	}

	s := &Server{
		cfg:             cfg,
		dbClient:        dbClient,
		analysisService: analysisService,
		store:           store,
		resultCache:     resultCache,
		limiter:         limiter,
		llmClient:       llmClient,
		workerPool:      workerPool,
		echo:            echo.New(),
		startTime:       time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.HTTPErrorHandler = httpErrorHandler
	e.Use(securityHeaders())

	// Health endpoints: unauthenticated, unlimited, safe for orchestrators.
	e.GET("/health", s.healthHandler)
	e.GET("/health/live", s.livenessHandler)
	e.GET("/health/ready", s.readinessHandler)

	v1 := e.Group("/api/v1")
	v1.Use(rateLimit(s.limiter))
	v1.Use(apiKeyAuth(s.cfg.Server))

	v1.POST("/analyses", s.submitAnalysisHandler)
	v1.POST("/analyses/bulk", s.bulkSubmitHandler)
	v1.GET("/analyses/:id", s.getAnalysisHandler)
	v1.GET("/analyses/:id/progress", s.getProgressHandler)
	v1.POST("/analyses/:id/cancel", s.cancelAnalysisHandler)
}

// Echo exposes the router for handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves HTTP on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
