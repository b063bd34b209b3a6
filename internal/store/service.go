package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stated/internal/cache"
	"github.com/fyrsmithlabs/stated/internal/filestore"
	"github.com/fyrsmithlabs/stated/internal/schema"
	"github.com/fyrsmithlabs/stated/internal/writequeue"
)

const instrumentationName = "github.com/fyrsmithlabs/stated/internal/store"

// Service is the boundary contract consumed by all higher-level modules.
//
// Load operations return usable data (including synthesized defaults) or a
// typed error on genuine corruption. Save operations always return a boolean
// and never raise; a single failed persistence call cannot abort a calling
// workflow, so callers must check the return value.
//
// Loaded documents may share storage with the internal cache: mutating a
// returned map is visible to later loads of the same document until the next
// save replaces it. Callers that need a private copy must make one.
type Service interface {
	// LoadGlobalData loads a global document. Returns (nil, nil) when the
	// document has never been saved; callers handle "not yet configured"
	// explicitly at this scope.
	LoadGlobalData(ctx context.Context, name string) (map[string]any, error)

	// SaveGlobalData persists a global document.
	SaveGlobalData(ctx context.Context, name string, value map[string]any) bool

	// LoadProjectData loads a project-scoped document, synthesizing a
	// type-appropriate default when it has never been saved.
	LoadProjectData(ctx context.Context, projectID, name string) (map[string]any, error)

	// SaveProjectData persists a project-scoped document.
	SaveProjectData(ctx context.Context, projectID, name string, value map[string]any) bool

	// LoadPathData loads a sub-path-scoped document, synthesizing a default
	// when absent.
	LoadPathData(ctx context.Context, projectID, pathName, name string) (map[string]any, error)

	// SavePathData persists a sub-path-scoped document.
	SavePathData(ctx context.Context, projectID, pathName, name string, value map[string]any) bool

	// DeleteProjectData removes a project-scoped document. Deleting an
	// absent document succeeds.
	DeleteProjectData(ctx context.Context, projectID, name string) bool

	// ValidateDocument runs the advisory structural validation pass.
	ValidateDocument(doc map[string]any) schema.Result

	// LogError appends to the store's error log, best effort.
	LogError(ctx context.Context, operation string, err error, errCtx map[string]any)

	// CacheStats returns a snapshot of cache counters.
	CacheStats() cache.Stats

	// Close stops background maintenance and releases resources.
	Close() error
}

// Config configures the project-state store.
type Config struct {
	// DataDir is the root of the on-disk document hierarchy.
	DataDir string `koanf:"data_dir"`

	// Cache configures the in-memory document cache.
	Cache *cache.Config `koanf:"cache"`

	// TempMaxAge gates the startup sweep: orphaned write-temp files older
	// than this are removed (default: 1h).
	TempMaxAge time.Duration `koanf:"temp_max_age"`
}

// DefaultServiceConfig returns sensible defaults. DataDir must still be set.
func DefaultServiceConfig() *Config {
	return &Config{
		Cache:      cache.DefaultConfig(),
		TempMaxAge: time.Hour,
	}
}

// service implements the Service interface.
type service struct {
	config     *Config
	files      *filestore.Store
	cache      *cache.Cache
	queue      *writequeue.Coordinator
	normalizer *schema.Normalizer
	errlog     *errorLog
	logger     *zap.Logger

	// Telemetry
	tracer      trace.Tracer
	meter       metric.Meter
	loadCounter   metric.Int64Counter
	saveCounter   metric.Int64Counter
	deleteCounter metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewService creates a project-state store rooted at cfg.DataDir.
//
// The data directory is created if missing and orphaned write-temp files
// left by a crashed process are swept before the store accepts operations.
func NewService(cfg *Config, logger *zap.Logger) (Service, error) {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.DefaultConfig()
	}
	if cfg.TempMaxAge <= 0 {
		cfg.TempMaxAge = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &service{
		config:     cfg,
		files:      filestore.New(logger),
		cache:      cache.New(cfg.Cache, logger),
		queue:      writequeue.New(),
		normalizer: schema.New(logger),
		errlog:     newErrorLog(cfg.DataDir),
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}

	s.cache.SetMetrics(cache.NewMetrics())
	s.initMetrics()

	if removed, err := s.files.SweepTemp(cfg.DataDir, cfg.TempMaxAge); err != nil {
		logger.Warn("startup temp sweep failed", zap.Error(err))
	} else if removed > 0 {
		logger.Info("startup temp sweep complete", zap.Int("removed", removed))
	}

	s.cache.Start()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.loadCounter, err = s.meter.Int64Counter(
		"stated.store.loads_total",
		metric.WithDescription("Total number of document loads"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		s.logger.Warn("failed to create load counter", zap.Error(err))
	}

	s.saveCounter, err = s.meter.Int64Counter(
		"stated.store.saves_total",
		metric.WithDescription("Total number of document saves"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		s.logger.Warn("failed to create save counter", zap.Error(err))
	}

	s.deleteCounter, err = s.meter.Int64Counter(
		"stated.store.deletes_total",
		metric.WithDescription("Total number of document deletions"),
		metric.WithUnit("{delete}"),
	)
	if err != nil {
		s.logger.Warn("failed to create delete counter", zap.Error(err))
	}
}

// LoadGlobalData loads a global document.
func (s *service) LoadGlobalData(ctx context.Context, name string) (map[string]any, error) {
	return s.load(ctx, "store.load_global", GlobalKey(name))
}

// SaveGlobalData persists a global document.
func (s *service) SaveGlobalData(ctx context.Context, name string, value map[string]any) bool {
	return s.save(ctx, "store.save_global", GlobalKey(name), value)
}

// LoadProjectData loads a project-scoped document.
func (s *service) LoadProjectData(ctx context.Context, projectID, name string) (map[string]any, error) {
	return s.load(ctx, "store.load_project", ProjectKey(projectID, name))
}

// SaveProjectData persists a project-scoped document.
func (s *service) SaveProjectData(ctx context.Context, projectID, name string, value map[string]any) bool {
	return s.save(ctx, "store.save_project", ProjectKey(projectID, name), value)
}

// LoadPathData loads a sub-path-scoped document.
func (s *service) LoadPathData(ctx context.Context, projectID, pathName, name string) (map[string]any, error) {
	return s.load(ctx, "store.load_path", PathKey(projectID, pathName, name))
}

// SavePathData persists a sub-path-scoped document.
func (s *service) SavePathData(ctx context.Context, projectID, pathName, name string, value map[string]any) bool {
	return s.save(ctx, "store.save_path", PathKey(projectID, pathName, name), value)
}

// load is the shared read path: cache lookup, file read, normalization,
// cache populate. Reads never pass through the write queue and may race
// ahead of a pending write.
func (s *service) load(ctx context.Context, op string, key ScopeKey) (map[string]any, error) {
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	span.SetAttributes(
		attribute.String("scope", string(key.Scope)),
		attribute.String("document", key.Name),
	)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, errors.New("store is closed")
	}
	s.mu.RUnlock()

	if err := key.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if doc, ok := s.cache.Get(key.CacheKey()); ok {
		s.countLoad(ctx, key, "cache_hit")
		return doc, nil
	}

	raw, err := s.files.ReadRaw(key.FilePath(s.config.DataDir))
	switch {
	case errors.Is(err, filestore.ErrNotFound):
		// A document springs into existence on first save; before that,
		// project and path scopes synthesize a default while the global
		// scope surfaces absence.
		if key.Scope == ScopeGlobal {
			s.countLoad(ctx, key, "absent")
			return nil, nil
		}
		def := schema.DefaultDocument(key.Name)
		s.cache.Set(key.CacheKey(), def)
		s.countLoad(ctx, key, "default")
		return def, nil

	case err != nil:
		// Malformed content signals corruption, not absence. Defaulting
		// here would mask it, so the typed error propagates.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.LogError(ctx, op, err, map[string]any{"cache_key": key.CacheKey()})
		s.countLoad(ctx, key, "error")
		return nil, err
	}

	doc := s.normalizer.NormalizeForRead(raw)
	s.cache.Set(key.CacheKey(), doc)
	s.countLoad(ctx, key, "disk")
	return doc, nil
}

// save is the shared write path: acquire the per-project FIFO chain,
// normalize, persist atomically, invalidate the cache, release. Any failure
// is logged and converted to false.
func (s *service) save(ctx context.Context, op string, key ScopeKey, value map[string]any) bool {
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	span.SetAttributes(
		attribute.String("scope", string(key.Scope)),
		attribute.String("document", key.Name),
	)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.LogError(ctx, op, errors.New("store is closed"), nil)
		return false
	}
	s.mu.RUnlock()

	if err := key.Validate(); err != nil {
		span.RecordError(err)
		s.LogError(ctx, op, err, nil)
		s.countSave(ctx, key, "invalid")
		return false
	}
	if value == nil {
		s.LogError(ctx, op, errors.New("nil document"), map[string]any{"cache_key": key.CacheKey()})
		s.countSave(ctx, key, "invalid")
		return false
	}

	release := s.queue.Acquire(key.LockID())
	defer release()

	doc := s.normalizer.NormalizeForWrite(value)

	// Validation only annotates. Historical documents may already violate
	// invariants and must still be persistable.
	if res := s.normalizer.Validate(doc); !res.Valid || len(res.Warnings) > 0 {
		s.logger.Warn("document failed validation, persisting anyway",
			zap.String("cache_key", key.CacheKey()),
			zap.Strings("errors", res.Errors),
			zap.Strings("warnings", res.Warnings),
		)
	}

	if err := s.files.WriteAtomic(key.FilePath(s.config.DataDir), doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.LogError(ctx, op, err, map[string]any{"cache_key": key.CacheKey()})
		s.countSave(ctx, key, "failure")
		return false
	}

	s.cache.Invalidate(key.CacheKey())
	s.countSave(ctx, key, "success")

	s.logger.Debug("saved document",
		zap.String("scope", string(key.Scope)),
		zap.String("document", key.Name),
	)
	return true
}

// DeleteProjectData removes a project-scoped document. Goes through the
// write queue like any other mutation; deleting an absent document succeeds.
func (s *service) DeleteProjectData(ctx context.Context, projectID, name string) bool {
	ctx, span := s.tracer.Start(ctx, "store.delete_project")
	defer span.End()

	key := ProjectKey(projectID, name)
	span.SetAttributes(attribute.String("document", name))

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	s.mu.RUnlock()

	if err := key.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.LogError(ctx, "store.delete_project", err, nil)
		s.countDelete(ctx, key, "invalid")
		return false
	}

	release := s.queue.Acquire(key.LockID())
	defer release()

	if err := s.files.Remove(key.FilePath(s.config.DataDir)); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.LogError(ctx, "store.delete_project", err, map[string]any{"cache_key": key.CacheKey()})
		s.countDelete(ctx, key, "failure")
		return false
	}

	s.cache.Invalidate(key.CacheKey())
	s.countDelete(ctx, key, "success")
	return true
}

// ValidateDocument runs the advisory structural validation pass.
func (s *service) ValidateDocument(doc map[string]any) schema.Result {
	return s.normalizer.Validate(doc)
}

// LogError appends an operation failure to the error log. Best effort:
// failures to log are swallowed.
func (s *service) LogError(ctx context.Context, operation string, err error, errCtx map[string]any) {
	s.logger.Error("store operation failed",
		zap.String("operation", operation),
		zap.Error(err),
		zap.Any("context", errCtx),
	)
	s.errlog.append(operation, err, errCtx)
}

// CacheStats returns a snapshot of cache counters.
func (s *service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Close stops background maintenance. Safe to call once.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Stop()
	return s.errlog.close()
}

func (s *service) countLoad(ctx context.Context, key ScopeKey, outcome string) {
	if s.loadCounter != nil {
		s.loadCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", string(key.Scope)),
			attribute.String("outcome", outcome),
		))
	}
}

func (s *service) countSave(ctx context.Context, key ScopeKey, outcome string) {
	if s.saveCounter != nil {
		s.saveCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", string(key.Scope)),
			attribute.String("outcome", outcome),
		))
	}
}

func (s *service) countDelete(ctx context.Context, key ScopeKey, outcome string) {
	if s.deleteCounter != nil {
		s.deleteCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", string(key.Scope)),
			attribute.String("outcome", outcome),
		))
	}
}
