// Package media owns the on-disk layout rooted at BASE_DATA_DIR:
// per-feed media/thumbnail/transcript files, the per-feed RSS file, and
// the feed cover-art image directory.
package media

import (
	"fmt"
	"path/filepath"
)

// PathManager computes on-disk paths; it performs no I/O itself.
type PathManager struct {
	BaseDataDir string
}

func NewPathManager(baseDataDir string) *PathManager {
	return &PathManager{BaseDataDir: baseDataDir}
}

// FeedDir is the root directory for a feed's media, thumbnails,
// transcripts, and generated RSS file.
func (p *PathManager) FeedDir(feedID string) string {
	return filepath.Join(p.BaseDataDir, feedID)
}

func (p *PathManager) MediaPath(feedID, downloadID, ext string) string {
	return filepath.Join(p.FeedDir(feedID), fmt.Sprintf("%s.%s", downloadID, ext))
}

func (p *PathManager) ThumbnailPath(feedID, downloadID, ext string) string {
	return filepath.Join(p.FeedDir(feedID), fmt.Sprintf("%s.%s", downloadID, ext))
}

func (p *PathManager) TranscriptPath(feedID, downloadID, ext string) string {
	return filepath.Join(p.FeedDir(feedID), fmt.Sprintf("%s.%s", downloadID, ext))
}

func (p *PathManager) FeedXMLPath(feedID string) string {
	return filepath.Join(p.FeedDir(feedID), "feed.xml")
}

// ImageDir is the shared directory for feed cover art, keyed by feed id
// rather than nested under each feed's own directory: image/{feed_id}.jpg
// at the data root.
func (p *PathManager) ImageDir() string {
	return filepath.Join(p.BaseDataDir, "image")
}

func (p *PathManager) FeedImagePath(feedID, ext string) string {
	return filepath.Join(p.ImageDir(), fmt.Sprintf("%s.%s", feedID, ext))
}
