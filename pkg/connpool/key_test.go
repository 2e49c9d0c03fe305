package connpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKeyEquality(t *testing.T) {
	a := Config{
		PoolProps: map[Option]string{OptionURL: "postgres://db/x", OptionMaxPoolSize: "8"},
		ConnProps: map[string]string{"application_name": "snappy"},
		Pgx:       true,
	}
	b := Config{
		PoolProps: map[Option]string{OptionMaxPoolSize: "8", OptionURL: "postgres://db/x"},
		ConnProps: map[string]string{"application_name": "snappy"},
		Pgx:       true,
	}

	assert.Equal(t, DeriveKey(a), DeriveKey(b), "key is value equality, not map order")
	assert.Equal(t, DeriveKey(a), DeriveKey(a.Clone()))
}

func TestDeriveKeyInequality(t *testing.T) {
	base := Config{
		PoolProps: map[Option]string{OptionURL: "postgres://db/x", OptionMaxPoolSize: "8"},
		ConnProps: map[string]string{"application_name": "snappy"},
		Pgx:       true,
	}

	tests := []struct {
		name   string
		mutate func(Config) Config
	}{
		{"different option value", func(c Config) Config {
			c.PoolProps[OptionMaxPoolSize] = "9"
			return c
		}},
		{"extra option", func(c Config) Config {
			c.PoolProps[OptionMinIdle] = "1"
			return c
		}},
		{"different connection property", func(c Config) Config {
			c.ConnProps["application_name"] = "other"
			return c
		}},
		{"extra connection property", func(c Config) Config {
			c.ConnProps["search_path"] = "public"
			return c
		}},
		{"different backend", func(c Config) Config {
			c.Pgx = false
			return c
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := tt.mutate(base.Clone())
			assert.NotEqual(t, DeriveKey(base), DeriveKey(other))
		})
	}
}

func TestKeyFingerprintStable(t *testing.T) {
	cfg := Config{PoolProps: map[Option]string{OptionURL: "postgres://db/x"}}
	k1 := DeriveKey(cfg)
	k2 := DeriveKey(cfg)
	assert.Equal(t, k1.Hash(), k2.Hash())
	assert.Len(t, k1.String(), 16)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{PoolProps: map[Option]string{OptionURL: "postgres://db/x"}}
	assert.NoError(t, valid.Validate())

	missing := Config{PoolProps: map[Option]string{OptionMaxPoolSize: "8"}}
	assert.Error(t, missing.Validate())

	unknown := Config{PoolProps: map[Option]string{OptionURL: "postgres://db/x", Option("socket-timeout"): "5"}}
	assert.Error(t, unknown.Validate())
}
