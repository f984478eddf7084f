package httpserver

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"anypod/internal/apperrors"
)

func registerMediaRoutes(r *gin.Engine, deps Dependencies) {
	handler := func(c *gin.Context) {
		feedID := c.Param("feed_id")
		file := c.Param("file")

		dot := strings.LastIndex(file, ".")
		if dot <= 0 {
			c.Status(http.StatusNotFound)
			return
		}
		downloadID, ext := file[:dot], file[dot+1:]

		if _, err := deps.Downloads.GetDownloadByID(c.Request.Context(), feedID, downloadID); err != nil {
			if errors.Is(err, apperrors.ErrDownloadNotFound) {
				c.Status(http.StatusNotFound)
				return
			}
			c.Status(http.StatusInternalServerError)
			return
		}

		path := deps.Paths.MediaPath(feedID, downloadID, ext)
		f, err := os.Open(path)
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}

		http.ServeContent(c.Writer, c.Request, file, info.ModTime(), f)
	}

	r.GET("/media/:feed_id/:file", handler)
	r.HEAD("/media/:feed_id/:file", handler)
}
