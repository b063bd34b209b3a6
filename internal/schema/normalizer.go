// Package schema reconciles historically inconsistent document shapes.
//
// Persisted documents accumulated snake_case field names over time while the
// canonical shape is camelCase. A single normalization pass at the read and
// write boundary migrates legacy aliases, synthesizes missing containers, and
// coerces known scalar fields, so internal logic only ever sees exactly one
// canonical name per concept.
package schema

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Version is stamped into every written document so future readers can
// detect which generation produced it.
const Version = 2

// Canonical keys of the hierarchical task document.
const (
	KeyFrontierNodes     = "frontierNodes"
	KeyStrategicBranches = "strategicBranches"
	KeyCompletedNodes    = "completedNodes"
	KeyHierarchyMetadata = "hierarchyMetadata"
	KeyLastModified      = "lastModified"
	KeySchemaVersion     = "schemaVersion"
	KeyNodeID            = "id"
	KeyNodeCompleted     = "completed"
)

// containerAliases maps legacy top-level keys to their canonical names.
// The legacy key is deleted on every pass; both spellings never coexist in a
// persisted document.
var containerAliases = map[string]string{
	"frontier_nodes":     KeyFrontierNodes,
	"strategic_branches": KeyStrategicBranches,
	"completed_nodes":    KeyCompletedNodes,
	"hierarchy_metadata": KeyHierarchyMetadata,
}

// nodeAliases maps legacy node-level keys to their canonical names.
var nodeAliases = map[string]string{
	"is_completed": KeyNodeCompleted,
}

// arrayContainers are the top-level keys that must always hold an array.
var arrayContainers = []string{KeyFrontierNodes, KeyStrategicBranches, KeyCompletedNodes}

// nodeContainers are the containers whose elements are task nodes.
var nodeContainers = []string{KeyFrontierNodes, KeyCompletedNodes}

// Normalizer applies alias migration and structural repair to documents.
type Normalizer struct {
	logger *zap.Logger
	now    func() time.Time
}

// New creates a normalizer. A nil logger disables logging.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

// NormalizeForRead maps legacy aliases onto canonical keys, ensures expected
// containers exist, and coerces known scalar fields. The document is
// normalized in place and returned.
func (n *Normalizer) NormalizeForRead(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	n.migrateAliases(raw)
	if isTaskDocument(raw) {
		n.ensureContainers(raw)
		n.normalizeNodes(raw)
	}
	return raw
}

// NormalizeForWrite applies read normalization, then stamps the
// last-modified timestamp and format-version marker.
func (n *Normalizer) NormalizeForWrite(doc map[string]any) map[string]any {
	doc = n.NormalizeForRead(doc)
	doc[KeyLastModified] = n.now().UTC().Format(time.RFC3339Nano)
	doc[KeySchemaVersion] = Version
	return doc
}

// migrateAliases moves legacy keys onto canonical ones and deletes the
// legacy spelling. When both are present the canonical value wins.
func (n *Normalizer) migrateAliases(doc map[string]any) {
	for legacy, canonical := range containerAliases {
		v, ok := doc[legacy]
		if !ok {
			continue
		}
		if _, exists := doc[canonical]; exists {
			n.logger.Warn("document carries both legacy and canonical key, dropping legacy",
				zap.String("legacy", legacy), zap.String("canonical", canonical))
		} else {
			doc[canonical] = v
		}
		delete(doc, legacy)
	}
}

// ensureContainers synthesizes missing containers and repairs null or
// wrong-typed ones.
func (n *Normalizer) ensureContainers(doc map[string]any) {
	for _, key := range arrayContainers {
		if _, ok := doc[key].([]any); !ok {
			if v, present := doc[key]; present && v != nil {
				n.logger.Warn("container is not an array, resetting",
					zap.String("key", key))
			}
			doc[key] = []any{}
		}
	}
	if _, ok := doc[KeyHierarchyMetadata].(map[string]any); !ok {
		doc[KeyHierarchyMetadata] = map[string]any{}
	}
}

// normalizeNodes migrates node-level aliases and coerces the completion flag
// to a boolean on every task node.
func (n *Normalizer) normalizeNodes(doc map[string]any) {
	for _, key := range nodeContainers {
		nodes, ok := doc[key].([]any)
		if !ok {
			continue
		}
		for _, item := range nodes {
			node, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for legacy, canonical := range nodeAliases {
				if v, present := node[legacy]; present {
					if _, exists := node[canonical]; !exists {
						node[canonical] = v
					}
					delete(node, legacy)
				}
			}
			node[KeyNodeCompleted] = coerceBool(node[KeyNodeCompleted])
		}
	}
}

// coerceBool converts historically loose completion values to a boolean.
func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}

// isTaskDocument reports whether the document carries any hierarchical task
// container. Plain documents (project config, settings) are left untouched
// by container synthesis.
func isTaskDocument(doc map[string]any) bool {
	for _, key := range arrayContainers {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	_, ok := doc[KeyHierarchyMetadata]
	return ok
}

// DefaultDocument synthesizes the type-appropriate default for a document
// that has never been saved: the canonical empty task shape for task
// documents, an empty object for everything else.
func DefaultDocument(name string) map[string]any {
	if IsTaskDocumentName(name) {
		return map[string]any{
			KeyFrontierNodes:     []any{},
			KeyStrategicBranches: []any{},
			KeyCompletedNodes:    []any{},
			KeyHierarchyMetadata: map[string]any{},
		}
	}
	return map[string]any{}
}

// IsTaskDocumentName reports whether a document name denotes a hierarchical
// task document. The store keeps the name vocabulary open; only the default
// shape depends on this.
func IsTaskDocumentName(name string) bool {
	base := name
	if len(base) > 5 && base[len(base)-5:] == ".json" {
		base = base[:len(base)-5]
	}
	return base == "hta" || (len(base) > 4 && base[:4] == "hta_") || (len(base) > 4 && base[:4] == "hta-")
}

// Result is the outcome of an advisory validation pass.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks structural invariants of a task document. Validation only
// annotates: historical documents may already violate invariants and must
// still be loadable, so failures are logged by the caller, never used to
// block a write.
func (n *Normalizer) Validate(doc map[string]any) Result {
	res := Result{Valid: true}
	if doc == nil {
		res.Errors = append(res.Errors, "document is nil")
		res.Valid = false
		return res
	}
	if !isTaskDocument(doc) {
		return res
	}

	for _, key := range arrayContainers {
		if _, ok := doc[key].([]any); !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("missing required container %q", key))
		}
	}

	seen := make(map[string]bool)
	for _, key := range nodeContainers {
		nodes, ok := doc[key].([]any)
		if !ok {
			continue
		}
		for i, item := range nodes {
			node, ok := item.(map[string]any)
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s[%d] is not an object", key, i))
				continue
			}
			id, _ := node[KeyNodeID].(string)
			if id == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("%s[%d] has no id", key, i))
				continue
			}
			if seen[id] {
				res.Warnings = append(res.Warnings, fmt.Sprintf("duplicate node id %q", id))
			}
			seen[id] = true
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}
