package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeilCooper1314/snappydata/pkg/connpool"
)

const sampleDoc = `
sources:
  orders:
    backend: pgx
    pool:
      url: postgres://app:${ORDERS_DB_PASSWORD}@db:5432/orders
      max-pool-size: "20"
    properties:
      application_name: snappydata
  audit:
    backend: sql
    pool:
      url: audit:secret@tcp(db:3306)/audit
      driver: mysql
      max-idle: "4"
`

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("ORDERS_DB_PASSWORD", "s3cret")

	doc, err := Load(writeDoc(t, sampleDoc))
	require.NoError(t, err)
	require.Len(t, doc.Sources, 2)

	orders := doc.Sources["orders"]
	assert.Equal(t, "pgx", orders.Backend)
	assert.Equal(t, "postgres://app:s3cret@db:5432/orders", orders.Pool["url"])
	assert.Equal(t, "snappydata", orders.Properties["application_name"])
}

func TestLoadEmptyDocument(t *testing.T) {
	_, err := Load(writeDoc(t, "sources: {}\n"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestSourcePoolConfig(t *testing.T) {
	src := Source{
		Backend:    "pgx",
		Pool:       map[string]string{"url": "postgres://db/x", "min-idle": "2"},
		Properties: map[string]string{"application_name": "snappy"},
	}

	cfg, err := src.PoolConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Pgx)
	assert.Equal(t, "postgres://db/x", cfg.PoolProps[connpool.OptionURL])
	assert.Equal(t, "2", cfg.PoolProps[connpool.OptionMinIdle])
	assert.Equal(t, "snappy", cfg.ConnProps["application_name"])
}

func TestSourcePoolConfigDefaultsToSQL(t *testing.T) {
	src := Source{Pool: map[string]string{"url": "app@tcp(db)/x"}}
	cfg, err := src.PoolConfig()
	require.NoError(t, err)
	assert.False(t, cfg.Pgx)
	assert.Equal(t, connpool.BackendSQL, cfg.Backend())
}

func TestSourcePoolConfigRejectsUnknownBackend(t *testing.T) {
	src := Source{Backend: "hikari", Pool: map[string]string{"url": "x"}}
	_, err := src.PoolConfig()
	require.Error(t, err)
}

func TestSourcePoolConfigRejectsUnknownOption(t *testing.T) {
	src := Source{Pool: map[string]string{"url": "x", "socket-timeout": "5"}}
	_, err := src.PoolConfig()
	require.Error(t, err)
}
