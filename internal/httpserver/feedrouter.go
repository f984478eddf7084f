package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"anypod/internal/apperrors"
)

func registerFeedRoutes(r *gin.Engine, deps Dependencies) {
	handler := func(c *gin.Context) {
		feedFile := c.Param("feedFile")
		feedID := strings.TrimSuffix(feedFile, ".xml")
		if feedID == feedFile {
			c.Status(http.StatusNotFound)
			return
		}

		feed, err := deps.Feeds.GetFeedByID(c.Request.Context(), feedID)
		if err != nil {
			if errors.Is(err, apperrors.ErrFeedNotFound) {
				c.Status(http.StatusNotFound)
				return
			}
			c.Status(http.StatusInternalServerError)
			return
		}

		xmlBytes, err := deps.RSSGen.GetFeedXML(c.Request.Context(), feed)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}

		c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", xmlBytes)
	}

	r.GET("/feeds/:feedFile", handler)
	r.HEAD("/feeds/:feedFile", handler)
}
