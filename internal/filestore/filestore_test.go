package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteAtomicAndReadRaw(t *testing.T) {
	s := New(nil)
	path := filepath.Join(t.TempDir(), "doc.json")

	doc := map[string]any{
		"goal":  "Learn X",
		"count": float64(3),
	}
	require.NoError(t, s.WriteAtomic(path, doc))

	got, err := s.ReadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "Learn X", got["goal"])
	assert.Equal(t, float64(3), got["count"])
}

func TestStore_WriteAtomic_CreatesParentDirectories(t *testing.T) {
	s := New(nil)
	path := filepath.Join(t.TempDir(), "projects", "proj1", "paths", "deep", "doc.json")

	require.NoError(t, s.WriteAtomic(path, map[string]any{"a": float64(1)}))
	assert.True(t, s.Exists(path))
}

func TestStore_WriteAtomic_LeavesNoTempFiles(t *testing.T) {
	s := New(nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, s.WriteAtomic(path, map[string]any{"a": float64(1)}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json", entries[0].Name())
}

func TestStore_WriteAtomic_ReplacesExistingContent(t *testing.T) {
	s := New(nil)
	path := filepath.Join(t.TempDir(), "doc.json")

	require.NoError(t, s.WriteAtomic(path, map[string]any{"v": "old"}))
	require.NoError(t, s.WriteAtomic(path, map[string]any{"v": "new"}))

	got, err := s.ReadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "new", got["v"])
	_, hasOld := got["old"]
	assert.False(t, hasOld)
}

func TestStore_ReadRaw_NotFound(t *testing.T) {
	s := New(nil)

	_, err := s.ReadRaw(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReadRaw_ParseError(t *testing.T) {
	s := New(nil)
	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := s.ReadRaw(path)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, path, parseErr.Path)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStore_Exists(t *testing.T) {
	s := New(nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	assert.False(t, s.Exists(path))
	require.NoError(t, s.WriteAtomic(path, map[string]any{}))
	assert.True(t, s.Exists(path))

	// Directories are not documents.
	assert.False(t, s.Exists(dir))
}

func TestStore_Remove(t *testing.T) {
	s := New(nil)
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, s.WriteAtomic(path, map[string]any{}))

	require.NoError(t, s.Remove(path))
	assert.False(t, s.Exists(path))

	err := s.Remove(path)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SweepTemp(t *testing.T) {
	s := New(nil)
	dir := t.TempDir()
	docPath := filepath.Join(dir, "doc.json")
	require.NoError(t, s.WriteAtomic(docPath, map[string]any{"keep": true}))

	// Orphan from a crashed write, long past the age gate.
	stale := filepath.Join(dir, "doc.json.tmp.1234.567890")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	// In-flight write from a live process, too fresh to touch.
	fresh := filepath.Join(dir, "doc.json.tmp.5678.123456")
	require.NoError(t, os.WriteFile(fresh, []byte("partial"), 0o644))

	removed, err := s.SweepTemp(dir, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, docPath)
}

func TestStore_SweepTemp_MissingRoot(t *testing.T) {
	s := New(nil)

	removed, err := s.SweepTemp(filepath.Join(t.TempDir(), "nope"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestParseError_Unwrap(t *testing.T) {
	inner := errors.New("bad token")
	err := &ParseError{Path: "/x/y.json", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.True(t, strings.Contains(err.Error(), "/x/y.json"))
}
