// Package httpserver exposes the feed/media/admin HTTP surface over gin.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"anypod/internal/config"
	"anypod/internal/db"
	"anypod/internal/media"
	"anypod/internal/pipeline"
	"anypod/internal/rss"
	"anypod/internal/submission"
)

// Server wraps the HTTP server serving feeds, media, and admin operations.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
}

// Dependencies bundles everything the routers need, resolved once at
// startup by the caller that also owns the scheduler and reconciler.
type Dependencies struct {
	Feeds      *db.FeedStore
	Downloads  *db.DownloadStore
	Paths      *media.PathManager
	Files      *media.FileManager
	RSSGen     *rss.Generator
	Submission *submission.Service
	Enqueuer   *pipeline.Enqueuer

	// FeedConfig looks up a feed's current YAML configuration, nil if
	// the feed id is not (or no longer) present in the loaded document.
	FeedConfig func(feedID string) *config.FeedConfig
	// ManualTrigger notifies the manual runner that feedID has new
	// QUEUED work ready to process; nil-safe no-op if unset.
	ManualTrigger func(ctx context.Context, feedID string)

	Version string
}

// NewServer builds the gin engine and wraps it in an *http.Server
// listening on port.
func NewServer(port string, deps Dependencies) *Server {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	registerHealthRoutes(router, deps)
	registerFeedRoutes(router, deps)
	registerMediaRoutes(router, deps)
	registerAdminRoutes(router, deps)
	registerMetricsRoute(router)

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // media streaming can run long
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "address", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
