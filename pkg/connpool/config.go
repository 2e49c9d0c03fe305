package connpool

import (
	"github.com/NeilCooper1314/snappydata/pkg/errors"
)

// Option names a recognized pool-tuning option. The recognized set is fixed;
// backend-specific connection parameters go in Config.ConnProps instead.
type Option string

const (
	// OptionURL is the connection URL (pgx) or DSN (database/sql)
	OptionURL Option = "url"
	// OptionDriver is the database/sql driver name; meaningless for pgx
	OptionDriver Option = "driver"
	// OptionUsername overrides the connection user
	OptionUsername Option = "username"
	// OptionPassword overrides the connection password
	OptionPassword Option = "password"
	// OptionMaxPoolSize caps the number of open connections
	OptionMaxPoolSize Option = "max-pool-size"
	// OptionMinIdle is the minimum number of idle connections kept warm
	OptionMinIdle Option = "min-idle"
	// OptionMaxIdle caps the number of idle connections retained
	OptionMaxIdle Option = "max-idle"
	// OptionAutoCommit toggles auto-commit; neither Go backend exposes a
	// setter for it, so its presence always fails with a capability error
	OptionAutoCommit Option = "auto-commit"
	// OptionIsolation sets the default transaction isolation level
	OptionIsolation Option = "isolation"
)

var recognizedOptions = map[Option]struct{}{
	OptionURL:         {},
	OptionDriver:      {},
	OptionUsername:    {},
	OptionPassword:    {},
	OptionMaxPoolSize: {},
	OptionMinIdle:     {},
	OptionMaxIdle:     {},
	OptionAutoCommit:  {},
	OptionIsolation:   {},
}

// Recognized reports whether o is a member of the fixed option set.
func (o Option) Recognized() bool {
	_, ok := recognizedOptions[o]
	return ok
}

// Options returns the recognized option set in no particular order.
func Options() []Option {
	opts := make([]Option, 0, len(recognizedOptions))
	for o := range recognizedOptions {
		opts = append(opts, o)
	}
	return opts
}

// Config describes one pool: recognized tuning options, a bag of raw
// backend connection properties, and the backend selector. Two Configs that
// compare equal by value deduplicate onto the same pool (see DeriveKey).
//
// Config is treated as immutable once handed to a Registry.
type Config struct {
	// PoolProps holds recognized pool-tuning options as string values
	PoolProps map[Option]string
	// ConnProps holds arbitrary backend-specific connection properties
	ConnProps map[string]string
	// Pgx selects the pgxpool backend instead of the database/sql backend
	Pgx bool
}

// Backend returns the pool engine backend this Config selects.
func (c Config) Backend() Backend {
	if c.Pgx {
		return BackendPgx
	}
	return BackendSQL
}

// Validate checks that every pool option is recognized and that the
// connection URL is present. It does not check backend capability; that is
// the setter tables' job during engine construction.
func (c Config) Validate() error {
	for opt := range c.PoolProps {
		if !opt.Recognized() {
			return errors.New(errors.ErrorTypeValidation, "unrecognized pool option").
				WithDetail("option", string(opt))
		}
	}
	if c.PoolProps[OptionURL] == "" {
		return errors.New(errors.ErrorTypeValidation, "pool option url is required")
	}
	return nil
}

// Clone returns a deep copy of the Config. Callers that mutate option maps
// after an Acquire must hand the registry its own copy.
func (c Config) Clone() Config {
	out := Config{Pgx: c.Pgx}
	if c.PoolProps != nil {
		out.PoolProps = make(map[Option]string, len(c.PoolProps))
		for k, v := range c.PoolProps {
			out.PoolProps[k] = v
		}
	}
	if c.ConnProps != nil {
		out.ConnProps = make(map[string]string, len(c.ConnProps))
		for k, v := range c.ConnProps {
			out.ConnProps[k] = v
		}
	}
	return out
}
