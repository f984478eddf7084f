package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"anypod/internal/apperrors"
	"anypod/internal/db"
)

func registerAdminRoutes(r *gin.Engine, deps Dependencies) {
	admin := r.Group("/admin/feeds")
	admin.POST("/:feed_id/reset-errors", handleResetErrors(deps))
	admin.POST("/:feed_id/downloads", handleManualSubmission(deps))
	admin.POST("/:feed_id/downloads/:download_id/refresh-metadata", handleRefreshMetadata(deps))
	admin.DELETE("/:feed_id/downloads/:download_id", handleDeleteDownload(deps))
}

func handleResetErrors(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		feedID := c.Param("feed_id")
		ctx := c.Request.Context()

		if _, err := deps.Feeds.GetFeedByID(ctx, feedID); err != nil {
			if errors.Is(err, apperrors.ErrFeedNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		errored, err := deps.Downloads.GetDownloadsByStatus(ctx, db.StatusError, db.GetDownloadsByStatusOpts{FeedID: feedID, Limit: -1})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		ids := make([]string, len(errored))
		for i, d := range errored {
			ids[i] = d.ID
		}

		fromStatus := db.StatusError
		n, err := deps.Downloads.RequeueDownloads(ctx, feedID, ids, &fromStatus)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"feed_id": feedID, "reset_count": n})
	}
}

type manualSubmissionRequest struct {
	URL string `json:"url"`
}

func handleManualSubmission(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		feedID := c.Param("feed_id")
		ctx := c.Request.Context()

		fc := deps.FeedConfig(feedID)
		if fc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "feed not configured"})
			return
		}
		if !fc.IsEnabled() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "feed is disabled"})
			return
		}
		if !fc.IsManual() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "feed is not manual"})
			return
		}

		var req manualSubmissionRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}

		result, err := deps.Submission.Submit(ctx, feedID, fc, req.URL)
		if err != nil {
			var unsupported *apperrors.ManualSubmissionUnsupportedURLError
			var unavailable *apperrors.ManualSubmissionUnavailableError
			switch {
			case errors.As(err, &unsupported):
				c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported url"})
			case errors.As(err, &unavailable):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "temporarily unavailable"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		if deps.ManualTrigger != nil {
			deps.ManualTrigger(ctx, feedID)
		}

		c.JSON(http.StatusOK, gin.H{
			"feed_id":     feedID,
			"download_id": result.Download.ID,
			"new":         result.IsNew,
			"status":      string(result.Download.Status),
			"message":     "queued",
		})
	}
}

type refreshMetadataRequest struct {
	RefreshTranscript bool `json:"refresh_transcript"`
}

func handleRefreshMetadata(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		feedID := c.Param("feed_id")
		downloadID := c.Param("download_id")
		ctx := c.Request.Context()

		var req refreshMetadataRequest
		_ = c.ShouldBindJSON(&req)

		fc := deps.FeedConfig(feedID)
		if fc == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "feed not configured"})
			return
		}

		d, err := deps.Downloads.GetDownloadByID(ctx, feedID, downloadID)
		if err != nil {
			if errors.Is(err, apperrors.ErrDownloadNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		result, err := deps.Enqueuer.RefreshMetadata(ctx, d, fc, "", req.RefreshTranscript)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "temporarily unavailable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"feed_id":                     feedID,
			"download_id":                 downloadID,
			"changed_fields":              result.ChangedFields,
			"thumbnail_url_changed":       result.ThumbnailURLChanged,
			"transcript_metadata_changed": result.TranscriptMetadataChanged,
		})
	}
}

func handleDeleteDownload(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		feedID := c.Param("feed_id")
		downloadID := c.Param("download_id")
		ctx := c.Request.Context()

		d, err := deps.Downloads.GetDownloadByID(ctx, feedID, downloadID)
		if err != nil {
			if errors.Is(err, apperrors.ErrDownloadNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if d.Status == db.StatusDownloaded {
			path := deps.Paths.MediaPath(feedID, downloadID, d.Ext)
			if _, err := deps.Files.Delete(path); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
		}
		if err := deps.Downloads.ArchiveDownload(ctx, feedID, downloadID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
