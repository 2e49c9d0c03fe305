// Package snappydata provides a process-wide pooled-connection registry for
// SQL execution engines.
//
// The registry hands out database connection pools keyed by configuration:
// logically distinct consumers (for example, per-table data sources) whose
// configurations compare equal by value share a single pool engine. Each
// pool is reference-counted by its consumer set and torn down exactly when
// the last consumer releases it, under concurrent access from many
// goroutines with a lock-free fast path for already-established consumers.
//
// # Packages
//
//   - pkg/connpool: the registry, pool key derivation, and the two pool
//     engine backends (pgxpool and database/sql)
//   - pkg/config: YAML pool document loading with environment substitution
//   - pkg/errors: structured, categorized errors
//   - pkg/logger: zap-based structured logging
//   - pkg/metrics: Prometheus collectors for pool lifecycle events
//   - cmd/poolctl: CLI for validating and probing pool documents
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/NeilCooper1314/snappydata/pkg/connpool"
//	)
//
//	cfg := connpool.Config{
//	    PoolProps: map[connpool.Option]string{
//	        connpool.OptionURL:         "postgres://app@db:5432/orders",
//	        connpool.OptionMaxPoolSize: "20",
//	    },
//	    Pgx: true,
//	}
//
//	eng, err := connpool.Acquire(context.Background(), "orders", cfg)
//	if err != nil {
//	    // handle
//	}
//	defer connpool.Release("orders")
//
//	pool := eng.(*connpool.PgxEngine).Pool() // obtain physical connections
package snappydata
