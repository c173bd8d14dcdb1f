// Package api provides the resolver's minimal HTTP surface: a health
// endpoint and a debug pipeline-invocation endpoint used by integration
// tests to exercise the search pipeline over HTTP. The chat transport and
// ERP webhook admin surface belong to out-of-scope collaborators (see
// pkg/ingest) and are not served here.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/database"
	"github.com/wholesale-bot/resolver/pkg/dialog"
)

// Server is the resolver's HTTP API server.
type Server struct {
	engine   *gin.Engine
	dbClient *database.Client
	handler  *dialog.Handler
}

// NewServer builds a Server wired to dbClient (for the health check) and
// handler (for the debug pipeline endpoint). handler may be nil, in which
// case /pipeline/run responds 503.
func NewServer(dbClient *database.Client, handler *dialog.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{engine: e, dbClient: dbClient, handler: handler}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.POST("/pipeline/run", s.pipelineRunHandler)
}

// Engine exposes the underlying gin engine, e.g. for httptest.NewServer.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server on addr, blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("http server shutdown did not complete cleanly")
		}
		return nil
	case err := <-errCh:
		return err
	}
}
