package connpool

import (
	"context"

	"github.com/NeilCooper1314/snappydata/pkg/errors"
)

// Backend tags one of the two interchangeable pool engine implementations.
type Backend int

const (
	// BackendSQL is the database/sql engine: driver-agnostic, immediate close
	BackendSQL Backend = iota
	// BackendPgx is the pgxpool engine: PostgreSQL-native, graceful drain
	BackendPgx
)

// String returns the backend name used in logs and metric labels.
func (b Backend) String() string {
	if b == BackendPgx {
		return "pgx"
	}
	return "sql"
}

// EngineStats is a point-in-time snapshot of a live engine's connections.
type EngineStats struct {
	ActiveConnections int64 `json:"active_connections"`
	IdleConnections   int64 `json:"idle_connections"`
	TotalConnections  int64 `json:"total_connections"`
}

// Engine is a live pool engine handle. The registry never obtains physical
// connections itself; callers reach the underlying pool through the concrete
// types (*PgxEngine).Pool() and (*SQLEngine).DB().
type Engine interface {
	// Backend identifies which engine implementation this is
	Backend() Backend
	// Ping verifies the engine can reach its database
	Ping(ctx context.Context) error
	// Stats snapshots the engine's connection counts
	Stats() EngineStats
	// Close shuts the engine down. The pgx backend drains acquired
	// connections when graceful is set; the sql backend always closes
	// immediately. Close must be called at most once.
	Close(graceful bool) error
}

// EngineFactory constructs a live Engine from a Config. The Registry uses
// BuildEngine by default; tests substitute counting fakes.
type EngineFactory func(ctx context.Context, cfg Config) (Engine, error)

// BuildEngine validates cfg, checks every supplied option against the
// selected backend's setter table, and constructs the engine. A recognized
// option with no setter for the chosen backend fails with a capability error
// before any pool is created.
func BuildEngine(ctx context.Context, cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := checkCapability(cfg); err != nil {
		return nil, err
	}
	if cfg.Pgx {
		return buildPgxEngine(ctx, cfg)
	}
	return buildSQLEngine(ctx, cfg)
}

// Supported reports whether the backend has a setter for the given option.
// The setter tables are the authoritative source of capability; there is no
// separate support matrix to drift out of sync.
func Supported(b Backend, opt Option) bool {
	if b == BackendPgx {
		_, ok := pgxSetters[opt]
		return ok
	}
	_, ok := sqlSetters[opt]
	return ok
}

func checkCapability(cfg Config) error {
	backend := cfg.Backend()
	for opt := range cfg.PoolProps {
		if !Supported(backend, opt) {
			return errors.New(errors.ErrorTypeCapability, "pool option not supported by backend").
				WithDetail("option", string(opt)).
				WithDetail("backend", backend.String())
		}
	}
	return nil
}
