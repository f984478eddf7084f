package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func registerHealthRoutes(r *gin.Engine, deps Dependencies) {
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   "anypod",
			"version":   deps.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}
