// Package connpool provides a process-wide registry of database connection
// pools. Pools are keyed by configuration: logically distinct consumers whose
// configurations compare equal by value share one pool engine, and each pool
// is reference-counted by its consumer set so it is torn down exactly when
// the last consumer releases it.
//
// The registry is safe for concurrent use. Lookups of already-established
// consumer identifiers take a lock-free fast path; pool creation and
// teardown, which are rare next to connection use, serialize on a single
// mutex.
//
// Two interchangeable pool engines back the registry: pgxpool for
// PostgreSQL-native pooling with a draining close, and database/sql for
// driver-agnostic pooling with an immediate close. Each engine carries its
// own option setter table; an option the selected engine has no setter for
// fails fast before any pool is created.
package connpool

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NeilCooper1314/snappydata/pkg/errors"
	"github.com/NeilCooper1314/snappydata/pkg/logger"
	"github.com/NeilCooper1314/snappydata/pkg/metrics"
)

const tracerName = "github.com/NeilCooper1314/snappydata/pkg/connpool"

// entry owns one live pool engine, the Key it was created from, and the set
// of consumer identifiers currently referencing it. An entry is never
// revived: once its consumer set empties it is removed and the engine
// closed, and a later Acquire with the same Key builds a fresh entry.
type entry struct {
	key       Key
	engine    Engine
	consumers map[string]struct{}
}

// Registry deduplicates and reference-counts connection pools. The zero
// value is not usable; construct instances with NewRegistry.
//
// Internally the identifier index (sync.Map) serves lock-free reads for the
// Acquire fast path and Has, while every mutation of the index, the pool
// table, and the consumer sets happens under one mutex, so no two
// bookkeeping mutations ever interleave.
type Registry struct {
	mu    sync.Mutex
	index sync.Map // consumer identifier -> *entry
	pools map[Key]*entry

	build  EngineFactory
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRegistry creates a registry that builds real pool engines.
func NewRegistry() *Registry {
	return NewRegistryWithFactory(BuildEngine)
}

// NewRegistryWithFactory creates a registry with a custom engine factory.
// Tests use this to count constructions and inject teardown failures.
func NewRegistryWithFactory(build EngineFactory) *Registry {
	return &Registry{
		pools:  make(map[Key]*entry),
		build:  build,
		logger: logger.Get().With(zap.String("component", "connpool_registry")),
		tracer: otel.Tracer(tracerName),
	}
}

// Acquire returns the pool engine for the given consumer identifier,
// creating it if no pool exists yet for the configuration's Key.
//
// Identifiers already bound to a pool take the lock-free fast path: if the
// supplied configuration derives the same Key the bound engine is returned
// (re-acquire is idempotent), otherwise Acquire fails with a conflict error
// because the identifier is live under a different configuration.
//
// Creation is the slow path: all bookkeeping serializes on the registry
// mutex, the index is re-checked under the lock, and a new engine is built
// only when no entry exists for the Key. Engine construction is the
// expensive step (driver and network initialization) and blocks only callers
// racing on the same new Key, not holders of unrelated identifiers.
func (r *Registry) Acquire(ctx context.Context, id string, cfg Config) (Engine, error) {
	if id == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "consumer identifier must not be empty")
	}

	// Key derivation is eager: it is a pure canonicalization of two small
	// maps, and having it up front lets the fast path verify that a live
	// identifier is being re-acquired with a matching configuration.
	key := DeriveKey(cfg)

	if v, ok := r.index.Load(id); ok {
		return r.reacquire(id, v.(*entry), key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have bound this identifier since the fast path.
	if v, ok := r.index.Load(id); ok {
		return r.reacquire(id, v.(*entry), key)
	}

	if e, ok := r.pools[key]; ok {
		e.consumers[id] = struct{}{}
		r.index.Store(id, e)
		metrics.RecordConsumerBound()
		r.logger.Debug("consumer joined existing pool",
			zap.String("id", id),
			zap.Stringer("key", key),
			zap.Int("consumers", len(e.consumers)))
		return e.engine, nil
	}

	eng, err := r.buildEngine(ctx, cfg, key)
	if err != nil {
		// No entry is registered on failure; a later Acquire with the same
		// identifier starts clean.
		return nil, err
	}

	e := &entry{
		key:       key,
		engine:    eng,
		consumers: map[string]struct{}{id: {}},
	}
	r.pools[key] = e
	r.index.Store(id, e)
	metrics.RecordConsumerBound()
	r.logger.Info("connection pool created",
		zap.String("id", id),
		zap.Stringer("key", key),
		zap.String("backend", eng.Backend().String()))
	return eng, nil
}

func (r *Registry) reacquire(id string, e *entry, key Key) (Engine, error) {
	if e.key != key {
		return nil, errors.New(errors.ErrorTypeConflict, "identifier already bound to a different pool configuration").
			WithDetail("id", id).
			WithDetail("bound_key", e.key.String()).
			WithDetail("requested_key", key.String())
	}
	return e.engine, nil
}

func (r *Registry) buildEngine(ctx context.Context, cfg Config, key Key) (Engine, error) {
	ctx, span := r.tracer.Start(ctx, "connpool.build_engine",
		trace.WithAttributes(
			attribute.String("pool.backend", cfg.Backend().String()),
			attribute.String("pool.key", key.String()),
		))
	defer span.End()

	start := time.Now()
	eng, err := r.build(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine construction failed")
		return nil, err
	}
	metrics.RecordPoolCreated(eng.Backend().String(), time.Since(start))
	return eng, nil
}

// Release detaches the identifier from its pool and reports whether the pool
// was torn down as a result. Releasing an unknown identifier is a no-op
// returning false, so double-release is harmless.
//
// When the consumer set empties, the entry is removed from both tables
// before the engine is closed; a close failure surfaces as a teardown error
// but the bookkeeping has already committed, so the registry never holds a
// half-removed entry.
func (r *Registry) Release(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.index.Load(id)
	if !ok {
		return false, nil
	}
	e := v.(*entry)

	r.index.Delete(id)
	delete(e.consumers, id)
	metrics.RecordConsumerReleased()

	if len(e.consumers) > 0 {
		r.logger.Debug("consumer released pool",
			zap.String("id", id),
			zap.Stringer("key", e.key),
			zap.Int("consumers", len(e.consumers)))
		return false, nil
	}

	delete(r.pools, e.key)
	metrics.RecordPoolDestroyed(e.engine.Backend().String())
	if err := e.engine.Close(true); err != nil {
		return true, errors.Wrap(err, errors.ErrorTypeTeardown, "pool engine close failed").
			WithDetail("key", e.key.String())
	}
	r.logger.Info("connection pool destroyed",
		zap.String("id", id),
		zap.Stringer("key", e.key),
		zap.String("backend", e.engine.Backend().String()))
	return true, nil
}

// Has reports whether the identifier is currently bound to a pool. Like the
// Acquire fast path, Has never blocks on a concurrent slow-path mutation.
func (r *Registry) Has(id string) bool {
	_, ok := r.index.Load(id)
	return ok
}

// Pools returns the number of live pool entries.
func (r *Registry) Pools() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Consumers returns the number of identifiers bound to the given
// configuration's pool, or zero when no such pool exists.
func (r *Registry) Consumers(cfg Config) int {
	key := DeriveKey(cfg)
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.pools[key]; ok {
		return len(e.consumers)
	}
	return 0
}

// Clear releases every identifier and closes every engine. The first close
// failure is returned; teardown continues past failures so the registry
// always ends empty. Intended for process shutdown and tests.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for key, e := range r.pools {
		for id := range e.consumers {
			r.index.Delete(id)
			metrics.RecordConsumerReleased()
		}
		delete(r.pools, key)
		metrics.RecordPoolDestroyed(e.engine.Backend().String())
		if err := e.engine.Close(true); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.ErrorTypeTeardown, "pool engine close failed").
				WithDetail("key", key.String())
		}
	}
	return firstErr
}

// Default process-wide registry. Callers that need isolation (tests,
// embedded use) construct their own instances instead.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Acquire acquires from the process-wide registry.
func Acquire(ctx context.Context, id string, cfg Config) (Engine, error) {
	return defaultRegistry.Acquire(ctx, id, cfg)
}

// Release releases from the process-wide registry.
func Release(id string) (bool, error) {
	return defaultRegistry.Release(id)
}
