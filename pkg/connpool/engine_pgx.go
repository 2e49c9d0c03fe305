package connpool

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/NeilCooper1314/snappydata/pkg/errors"
	"github.com/NeilCooper1314/snappydata/pkg/logger"
)

// pgxSetter applies one recognized option to a parsed pgxpool configuration.
type pgxSetter func(*pgxpool.Config, string) error

// pgxSetters is the pgx backend's option table. Missing entries (driver,
// max-idle, auto-commit) are options pgxpool has no knob for; their absence
// drives the capability error in checkCapability.
var pgxSetters = map[Option]pgxSetter{
	// url seeds pgxpool.ParseConfig before the table is applied
	OptionURL: func(*pgxpool.Config, string) error { return nil },
	OptionUsername: func(pc *pgxpool.Config, v string) error {
		pc.ConnConfig.User = v
		return nil
	},
	OptionPassword: func(pc *pgxpool.Config, v string) error {
		pc.ConnConfig.Password = v
		return nil
	},
	OptionMaxPoolSize: func(pc *pgxpool.Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "invalid max-pool-size").
				WithDetail("value", v)
		}
		pc.MaxConns = int32(n)
		return nil
	},
	OptionMinIdle: func(pc *pgxpool.Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "invalid min-idle").
				WithDetail("value", v)
		}
		pc.MinConns = int32(n)
		return nil
	},
	OptionIsolation: func(pc *pgxpool.Config, v string) error {
		pc.ConnConfig.RuntimeParams["default_transaction_isolation"] = normalizeIsolation(v)
		return nil
	},
}

// normalizeIsolation converts JDBC-style level names (READ_COMMITTED,
// repeatable-read) into the spelling PostgreSQL expects.
func normalizeIsolation(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, "_", " ")
	v = strings.ReplaceAll(v, "-", " ")
	return v
}

// PgxEngine is the pgxpool-backed pool engine.
type PgxEngine struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func buildPgxEngine(ctx context.Context, cfg Config) (Engine, error) {
	pc, err := pgxpool.ParseConfig(cfg.PoolProps[OptionURL])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to parse pgx connection url")
	}

	// Raw connection properties become server runtime parameters; recognized
	// options applied after win over a property with the same name.
	for k, v := range cfg.ConnProps {
		pc.ConnConfig.RuntimeParams[k] = v
	}
	for opt, v := range cfg.PoolProps {
		if err := pgxSetters[opt](pc, v); err != nil {
			return nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create pgx pool")
	}

	eng := &PgxEngine{
		pool:   pool,
		logger: logger.Get().With(zap.String("component", "pgx_engine")),
	}
	eng.logger.Debug("pgx pool created",
		zap.Int32("max_conns", pc.MaxConns),
		zap.Int32("min_conns", pc.MinConns))
	return eng, nil
}

// Backend identifies this engine as the pgx implementation.
func (e *PgxEngine) Backend() Backend { return BackendPgx }

// Pool exposes the underlying pgxpool.Pool for obtaining connections.
func (e *PgxEngine) Pool() *pgxpool.Pool { return e.pool }

// Ping verifies connectivity to the database.
func (e *PgxEngine) Ping(ctx context.Context) error {
	if err := e.pool.Ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "pgx pool ping failed")
	}
	return nil
}

// Stats snapshots the pool's connection counts.
func (e *PgxEngine) Stats() EngineStats {
	s := e.pool.Stat()
	return EngineStats{
		ActiveConnections: int64(s.AcquiredConns()),
		IdleConnections:   int64(s.IdleConns()),
		TotalConnections:  int64(s.TotalConns()),
	}
}

// Close shuts the pool down. pgxpool only offers a draining close, which
// waits for acquired connections to be released, so the graceful flag is a
// no-op here.
func (e *PgxEngine) Close(graceful bool) error {
	e.pool.Close()
	e.logger.Debug("pgx pool closed", zap.Bool("graceful", graceful))
	return nil
}
