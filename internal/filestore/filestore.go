// Package filestore provides raw document file access with atomic writes.
//
// Documents are UTF-8 JSON files. Writes go to a uniquely-named temporary
// file in the destination directory followed by a rename, so a reader sees
// either the fully-old or fully-new content, never a partial write.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound indicates the document file does not exist. Callers recover
// from it locally (synthesized defaults); every other read error signals
// corruption and must propagate.
var ErrNotFound = errors.New("document not found")

// tempMarker is the infix of in-flight write files: <name>.tmp.<pid>.<nanos>.
// Files carrying it must never be read as documents.
const tempMarker = ".tmp."

// ParseError indicates a file exists but does not hold valid JSON.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Store performs raw file operations for the project-state store.
type Store struct {
	logger *zap.Logger
}

// New creates a file store. A nil logger disables logging.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// Exists reports whether a document file exists at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ReadRaw reads and parses the document at path.
//
// Returns ErrNotFound if the file is absent and *ParseError if the content
// is not valid JSON. A malformed file signals corruption, not absence, so it
// is never silently defaulted.
func (s *Store) ReadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return doc, nil
}

// WriteAtomic serializes value and writes it to path atomically.
//
// The value is written to <path>.tmp.<pid>.<nanos> in the same directory,
// synced, then renamed over the destination. Parent directories are created
// if missing. A crash between temp-file creation and rename leaves an orphan
// temp file; SweepTemp removes those at startup.
func (s *Store) WriteAtomic(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp := fmt.Sprintf("%s%s%d.%d", path, tempMarker, os.Getpid(), time.Now().UnixNano())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}

	// Rename is the atomicity boundary.
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}

	s.logger.Debug("wrote document", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Remove deletes the document at path. Returns ErrNotFound if it is absent.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// SweepTemp removes orphaned write-temp files under root older than
// olderThan. The age gate avoids racing a live write in another process.
// Returns the number of files removed.
func (s *Store) SweepTemp(root string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.Contains(d.Name(), tempMarker) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove orphaned temp file",
				zap.String("path", path), zap.Error(err))
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep temp files under %s: %w", root, err)
	}

	if removed > 0 {
		s.logger.Info("removed orphaned temp files",
			zap.String("root", root), zap.Int("count", removed))
	}
	return removed, nil
}
