package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Common errors.
var (
	ErrInvalidProjectID    = errors.New("invalid project ID")
	ErrInvalidPathName     = errors.New("invalid path name")
	ErrInvalidDocumentName = errors.New("invalid document name")
)

// Scope identifies which level of the on-disk hierarchy a document lives in.
type Scope string

const (
	// ScopeGlobal stores documents directly under the data directory.
	ScopeGlobal Scope = "global"
	// ScopeProject stores documents under projects/{projectID}/.
	ScopeProject Scope = "project"
	// ScopePath stores documents under projects/{projectID}/paths/{pathName}/.
	ScopePath Scope = "path"
)

// globalLockID is the write-queue scope for global-document mutations.
const globalLockID = "__global__"

// ScopeKey is the composite identity of one stored document. It maps to an
// on-disk path and a cache key. Name is an open vocabulary; the store does
// not enumerate document kinds.
type ScopeKey struct {
	Scope     Scope
	ProjectID string
	PathName  string
	Name      string
}

// GlobalKey addresses a global document.
func GlobalKey(name string) ScopeKey {
	return ScopeKey{Scope: ScopeGlobal, Name: name}
}

// ProjectKey addresses a project-scoped document.
func ProjectKey(projectID, name string) ScopeKey {
	return ScopeKey{Scope: ScopeProject, ProjectID: projectID, Name: name}
}

// PathKey addresses a sub-path-scoped document.
func PathKey(projectID, pathName, name string) ScopeKey {
	return ScopeKey{Scope: ScopePath, ProjectID: projectID, PathName: pathName, Name: name}
}

// Validate rejects identifiers that could escape the data directory.
func (k ScopeKey) Validate() error {
	if !safeSegment(k.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidDocumentName, k.Name)
	}
	switch k.Scope {
	case ScopeGlobal:
		return nil
	case ScopeProject:
		if !safeSegment(k.ProjectID) {
			return fmt.Errorf("%w: %q", ErrInvalidProjectID, k.ProjectID)
		}
		return nil
	case ScopePath:
		if !safeSegment(k.ProjectID) {
			return fmt.Errorf("%w: %q", ErrInvalidProjectID, k.ProjectID)
		}
		if !safeSegment(k.PathName) {
			return fmt.Errorf("%w: %q", ErrInvalidPathName, k.PathName)
		}
		return nil
	default:
		return fmt.Errorf("unknown scope %q", k.Scope)
	}
}

// FilePath returns the document's location under dataDir.
func (k ScopeKey) FilePath(dataDir string) string {
	file := fileName(k.Name)
	switch k.Scope {
	case ScopeProject:
		return filepath.Join(dataDir, "projects", k.ProjectID, file)
	case ScopePath:
		return filepath.Join(dataDir, "projects", k.ProjectID, "paths", k.PathName, file)
	default:
		return filepath.Join(dataDir, file)
	}
}

// CacheKey returns the scope-prefixed cache key for this document.
func (k ScopeKey) CacheKey() string {
	switch k.Scope {
	case ScopeProject:
		return fmt.Sprintf("project:%s:%s", k.ProjectID, k.Name)
	case ScopePath:
		return fmt.Sprintf("path:%s:%s:%s", k.ProjectID, k.PathName, k.Name)
	default:
		return fmt.Sprintf("global:%s", k.Name)
	}
}

// LockID returns the write-queue scope for this key. All mutations for one
// project share one FIFO chain, including different sub-paths and document
// names.
func (k ScopeKey) LockID() string {
	if k.Scope == ScopeGlobal {
		return globalLockID
	}
	return k.ProjectID
}

// fileName appends the .json extension when the document name lacks one.
func fileName(name string) string {
	if strings.HasSuffix(name, ".json") {
		return name
	}
	return name + ".json"
}

// safeSegment reports whether s is usable as a single path segment.
func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	if strings.ContainsAny(s, `/\`) {
		return false
	}
	return true
}
