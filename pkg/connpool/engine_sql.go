package connpool

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/NeilCooper1314/snappydata/pkg/errors"
	"github.com/NeilCooper1314/snappydata/pkg/logger"
)

// defaultSQLDriver is used when a config selects the sql backend without an
// explicit driver option. The MySQL driver is registered by cmd/poolctl.
const defaultSQLDriver = "mysql"

// sqlBuilder accumulates option values before sql.Open, since database/sql
// takes the driver name and DSN as constructor inputs rather than setters.
type sqlBuilder struct {
	driver  string
	dsn     string
	maxOpen int
	maxIdle int

	hasMaxOpen bool
	hasMaxIdle bool
}

// sqlSetter applies one recognized option to the builder.
type sqlSetter func(*sqlBuilder, string) error

// sqlSetters is the sql backend's option table. database/sql has no knobs
// for username, password (both belong in the DSN), min-idle, auto-commit,
// or isolation; those options fail the capability check.
var sqlSetters = map[Option]sqlSetter{
	OptionURL: func(b *sqlBuilder, v string) error {
		b.dsn = v
		return nil
	},
	OptionDriver: func(b *sqlBuilder, v string) error {
		b.driver = v
		return nil
	},
	OptionMaxPoolSize: func(b *sqlBuilder, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "invalid max-pool-size").
				WithDetail("value", v)
		}
		b.maxOpen = n
		b.hasMaxOpen = true
		return nil
	},
	OptionMaxIdle: func(b *sqlBuilder, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "invalid max-idle").
				WithDetail("value", v)
		}
		b.maxIdle = n
		b.hasMaxIdle = true
		return nil
	},
}

// SQLEngine is the database/sql-backed pool engine.
type SQLEngine struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func buildSQLEngine(_ context.Context, cfg Config) (Engine, error) {
	b := &sqlBuilder{driver: defaultSQLDriver}
	for opt, v := range cfg.PoolProps {
		if err := sqlSetters[opt](b, v); err != nil {
			return nil, err
		}
	}

	dsn := b.dsn
	if len(cfg.ConnProps) > 0 {
		vals := url.Values{}
		for k, v := range cfg.ConnProps {
			vals.Set(k, v)
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + vals.Encode()
	}

	db, err := sql.Open(b.driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open sql pool").
			WithDetail("driver", b.driver)
	}
	if b.hasMaxOpen {
		db.SetMaxOpenConns(b.maxOpen)
	}
	if b.hasMaxIdle {
		db.SetMaxIdleConns(b.maxIdle)
	}

	eng := &SQLEngine{
		db:     db,
		driver: b.driver,
		logger: logger.Get().With(zap.String("component", "sql_engine")),
	}
	eng.logger.Debug("sql pool opened",
		zap.String("driver", b.driver),
		zap.Int("max_open", b.maxOpen),
		zap.Int("max_idle", b.maxIdle))
	return eng, nil
}

// Backend identifies this engine as the database/sql implementation.
func (e *SQLEngine) Backend() Backend { return BackendSQL }

// DB exposes the underlying sql.DB for obtaining connections.
func (e *SQLEngine) DB() *sql.DB { return e.db }

// Driver returns the driver name the pool was opened with.
func (e *SQLEngine) Driver() string { return e.driver }

// Ping verifies connectivity to the database.
func (e *SQLEngine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "sql pool ping failed").
			WithDetail("driver", e.driver)
	}
	return nil
}

// Stats snapshots the pool's connection counts.
func (e *SQLEngine) Stats() EngineStats {
	s := e.db.Stats()
	return EngineStats{
		ActiveConnections: int64(s.InUse),
		IdleConnections:   int64(s.Idle),
		TotalConnections:  int64(s.OpenConnections),
	}
}

// Close shuts the pool down immediately; database/sql has no draining
// variant, so the graceful flag is ignored.
func (e *SQLEngine) Close(graceful bool) error {
	if err := e.db.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "sql pool close failed").
			WithDetail("driver", e.driver)
	}
	e.logger.Debug("sql pool closed", zap.Bool("graceful", graceful))
	return nil
}
