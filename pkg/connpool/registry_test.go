package connpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeilCooper1314/snappydata/pkg/errors"
)

// fakeEngine counts closes and optionally fails them, letting tests assert
// the exactly-once teardown property without a database.
type fakeEngine struct {
	backend  Backend
	closes   atomic.Int32
	closeErr error
}

func (f *fakeEngine) Backend() Backend { return f.backend }

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

func (f *fakeEngine) Stats() EngineStats { return EngineStats{} }

func (f *fakeEngine) Close(graceful bool) error {
	f.closes.Add(1)
	return f.closeErr
}

// countingFactory records every engine it builds in order.
type countingFactory struct {
	mu       sync.Mutex
	engines  []*fakeEngine
	closeErr error
}

func (cf *countingFactory) build(ctx context.Context, cfg Config) (Engine, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	eng := &fakeEngine{backend: cfg.Backend(), closeErr: cf.closeErr}
	cf.engines = append(cf.engines, eng)
	return eng, nil
}

func (cf *countingFactory) created() int {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return len(cf.engines)
}

func testConfig(extra map[Option]string) Config {
	props := map[Option]string{
		OptionURL:         "postgres://app@localhost:5432/orders",
		OptionMaxPoolSize: "10",
	}
	for k, v := range extra {
		props[k] = v
	}
	return Config{PoolProps: props, Pgx: true}
}

func TestAcquireSharesPoolAcrossConsumers(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)
	cfg := testConfig(nil)

	h1, err := r.Acquire(context.Background(), "ds1", cfg)
	require.NoError(t, err)
	h2, err := r.Acquire(context.Background(), "ds2", cfg)
	require.NoError(t, err)

	assert.Same(t, h1, h2, "equal configs must share one engine")
	assert.Equal(t, 1, cf.created())
	assert.Equal(t, 1, r.Pools())
	assert.Equal(t, 2, r.Consumers(cfg))

	torn, err := r.Release("ds1")
	require.NoError(t, err)
	assert.False(t, torn, "ds2 still references the pool")
	assert.Equal(t, int32(0), cf.engines[0].closes.Load())

	torn, err = r.Release("ds2")
	require.NoError(t, err)
	assert.True(t, torn, "last release tears the pool down")
	assert.Equal(t, int32(1), cf.engines[0].closes.Load())
	assert.Equal(t, 0, r.Pools())
}

func TestAcquireDistinctConfigsDistinctPools(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)

	h1, err := r.Acquire(context.Background(), "ds1", testConfig(nil))
	require.NoError(t, err)
	h2, err := r.Acquire(context.Background(), "ds2", testConfig(map[Option]string{OptionMinIdle: "2"}))
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, 2, cf.created())
	assert.Equal(t, 2, r.Pools())
}

func TestBackendSelectorSeparatesPools(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)

	cfg := testConfig(nil)
	sqlCfg := cfg.Clone()
	sqlCfg.Pgx = false

	h1, err := r.Acquire(context.Background(), "ds1", cfg)
	require.NoError(t, err)
	h2, err := r.Acquire(context.Background(), "ds2", sqlCfg)
	require.NoError(t, err)

	assert.NotSame(t, h1, h2, "backend choice is part of the pool key")
	assert.Equal(t, 2, cf.created())
}

func TestReleaseUnknownIdentifierIsNoop(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)

	torn, err := r.Release("never-registered")
	require.NoError(t, err)
	assert.False(t, torn)

	// A live entry must be unaffected by stray releases
	_, err = r.Acquire(context.Background(), "ds1", testConfig(nil))
	require.NoError(t, err)
	torn, err = r.Release("still-unknown")
	require.NoError(t, err)
	assert.False(t, torn)
	assert.True(t, r.Has("ds1"))
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)

	_, err := r.Acquire(context.Background(), "ds1", testConfig(nil))
	require.NoError(t, err)

	torn, err := r.Release("ds1")
	require.NoError(t, err)
	assert.True(t, torn)

	torn, err = r.Release("ds1")
	require.NoError(t, err)
	assert.False(t, torn)
	assert.Equal(t, int32(1), cf.engines[0].closes.Load(), "engine closed exactly once")
}

func TestReacquireSameIdentifier(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)
	cfg := testConfig(nil)

	h1, err := r.Acquire(context.Background(), "ds1", cfg)
	require.NoError(t, err)

	// Same config: idempotent, no new consumer reference
	h2, err := r.Acquire(context.Background(), "ds1", cfg)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, r.Consumers(cfg))

	// Different config for a live identifier: caller bug
	_, err = r.Acquire(context.Background(), "ds1", testConfig(map[Option]string{OptionMinIdle: "5"}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	torn, err := r.Release("ds1")
	require.NoError(t, err)
	assert.True(t, torn, "one release suffices after idempotent re-acquire")
}

func TestConcurrentAcquireCreatesOnePool(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)
	cfg := testConfig(nil)

	const n = 64
	handles := make([]Engine, n)
	ids := make([]string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		ids[i] = "ds-" + string(rune('a'+i%26)) + "-" + string(rune('0'+i/26))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Acquire(context.Background(), ids[i], cfg)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, cf.created(), "racing acquires must not duplicate the pool")
	for i := 1; i < n; i++ {
		assert.Same(t, handles[0], handles[i])
	}
	assert.Equal(t, n, r.Consumers(cfg))

	var teardowns atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			torn, err := r.Release(ids[i])
			assert.NoError(t, err)
			if torn {
				teardowns.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), teardowns.Load(), "exactly one release observes the teardown")
	assert.Equal(t, int32(1), cf.engines[0].closes.Load())
	assert.Equal(t, 0, r.Pools())
}

func TestTornDownPoolIsNotRevived(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)
	cfg := testConfig(nil)

	h1, err := r.Acquire(context.Background(), "ds1", cfg)
	require.NoError(t, err)
	torn, err := r.Release("ds1")
	require.NoError(t, err)
	require.True(t, torn)

	h2, err := r.Acquire(context.Background(), "ds2", cfg)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2, "same key after teardown builds a fresh engine")
	assert.Equal(t, 2, cf.created())
}

func TestTeardownFailureCommitsBookkeeping(t *testing.T) {
	cf := &countingFactory{closeErr: errors.New(errors.ErrorTypeConnection, "drain timed out")}
	r := NewRegistryWithFactory(cf.build)
	cfg := testConfig(nil)

	_, err := r.Acquire(context.Background(), "ds1", cfg)
	require.NoError(t, err)

	torn, err := r.Release("ds1")
	assert.True(t, torn, "pool was removed even though close failed")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTeardown))

	assert.False(t, r.Has("ds1"))
	assert.Equal(t, 0, r.Pools())

	// The registry stays usable; the same key builds a fresh engine
	_, err = r.Acquire(context.Background(), "ds1", cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, cf.created())
}

func TestUnsupportedOptionLeavesNoState(t *testing.T) {
	// Real factory: the pgx setter table has no max-idle entry
	r := NewRegistry()
	bad := testConfig(map[Option]string{OptionMaxIdle: "4"})

	_, err := r.Acquire(context.Background(), "ds3", bad)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
	assert.False(t, r.Has("ds3"))
	assert.Equal(t, 0, r.Pools())

	// The identifier is free to acquire with a valid config afterwards
	_, err = r.Acquire(context.Background(), "ds3", testConfig(nil))
	require.NoError(t, err)
	torn, err := r.Release("ds3")
	require.NoError(t, err)
	assert.True(t, torn)
}

func TestAcquireEmptyIdentifier(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)

	_, err := r.Acquire(context.Background(), "", testConfig(nil))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, 0, cf.created())
}

func TestClearTearsDownEverything(t *testing.T) {
	cf := &countingFactory{}
	r := NewRegistryWithFactory(cf.build)

	_, err := r.Acquire(context.Background(), "ds1", testConfig(nil))
	require.NoError(t, err)
	_, err = r.Acquire(context.Background(), "ds2", testConfig(map[Option]string{OptionMinIdle: "1"}))
	require.NoError(t, err)

	require.NoError(t, r.Clear())
	assert.Equal(t, 0, r.Pools())
	assert.False(t, r.Has("ds1"))
	assert.False(t, r.Has("ds2"))
	for _, eng := range cf.engines {
		assert.Equal(t, int32(1), eng.closes.Load())
	}
}
