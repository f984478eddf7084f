package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"anypod/internal/apperrors"
)

// FileManager performs atomic writes (via a .incomplete sidecar) and
// best-effort deletes (missing file treated as success) against the
// on-disk tree PathManager describes.
type FileManager struct {
	paths *PathManager
}

func NewFileManager(paths *PathManager) *FileManager {
	return &FileManager{paths: paths}
}

// WriteAtomic writes content to path via a .incomplete sidecar, renaming
// into place only after the write succeeds.
func (m *FileManager) WriteAtomic(path string, content io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &apperrors.FileOperationError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}

	incomplete := path + ".incomplete"
	f, err := os.Create(incomplete)
	if err != nil {
		return &apperrors.FileOperationError{Op: "create", Path: incomplete, Err: err}
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(incomplete)
		return &apperrors.FileOperationError{Op: "write", Path: incomplete, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(incomplete)
		return &apperrors.FileOperationError{Op: "close", Path: incomplete, Err: err}
	}

	if err := os.Rename(incomplete, path); err != nil {
		return &apperrors.FileOperationError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// MoveInto renames srcPath to dstPath, creating dstPath's parent
// directory as needed.
func (m *FileManager) MoveInto(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return &apperrors.FileOperationError{Op: "mkdir", Path: filepath.Dir(dstPath), Err: err}
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return &apperrors.FileOperationError{Op: "rename", Path: dstPath, Err: err}
	}
	return nil
}

// Delete removes path; an already-absent file counts as success, per
// the pruner's "already gone" tolerance.
func (m *FileManager) Delete(path string) (deleted bool, err error) {
	err = os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, &apperrors.FileOperationError{Op: "delete", Path: path, Err: err}
}

// DeleteFeedDir removes a feed's entire media directory, used by
// archive_feed when a feed is dropped from configuration entirely.
func (m *FileManager) DeleteFeedDir(feedID string) error {
	dir := m.paths.FeedDir(feedID)
	if err := os.RemoveAll(dir); err != nil {
		return &apperrors.FileOperationError{Op: "delete_tree", Path: dir, Err: err}
	}
	return nil
}

// Exists reports whether path is present (and not a lingering
// .incomplete sidecar, which must never be treated as the final file).
func (m *FileManager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns the size of an existing file, for mark_as_downloaded's
// filesize argument.
func (m *FileManager) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &apperrors.FileOperationError{Op: "stat", Path: path, Err: fmt.Errorf("%w", err)}
	}
	return info.Size(), nil
}
