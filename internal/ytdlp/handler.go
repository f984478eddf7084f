package ytdlp

import (
	"context"
	"strings"

	"anypod/internal/db"
)

// Handler implements the per-site mapping from RawEntry to db.Download
// and the URL-classification rules for its site.
type Handler interface {
	// Matches reports whether this handler owns sourceURL.
	Matches(sourceURL string) bool

	// ClassifySource determines the resolved URL and source type for a
	// bare configured URL (channel root -> videos tab, playlist as-is,
	// single video -> SINGLE_VIDEO).
	ClassifySource(ctx context.Context, core *ExtractorCore, sourceURL string) (resolvedURL string, sourceType db.SourceType, err error)

	// ToDownload maps one raw JSON entry to a Download row. Returning
	// apperrors.ErrFiltered signals "skip, not an error".
	ToDownload(ctx context.Context, core *ExtractorCore, feedID string, entry RawEntry) (db.Download, error)
}

// handlers is the ordered list consulted by Resolve; the generic
// handler is always last as the catch-all.
var handlers []Handler

func register(h Handler) { handlers = append(handlers, h) }

// Resolve returns the handler owning sourceURL.
func Resolve(sourceURL string) Handler {
	for _, h := range handlers {
		if h.Matches(sourceURL) {
			return h
		}
	}
	return genericHandlerInstance
}

func hostContains(url string, substrs ...string) bool {
	lower := strings.ToLower(url)
	for _, s := range substrs {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
