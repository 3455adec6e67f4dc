package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDriver struct {
	mu       sync.Mutex
	data     map[string][]byte
	writeErr error
	closed   bool
}

func newMemDriver() *memDriver {
	return &memDriver{data: make(map[string][]byte)}
}

func (m *memDriver) Read(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memDriver) Write(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memDriver) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memDriver) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *memDriver) Close() error {
	m.closed = true
	return nil
}

func openerFor(d Driver) Opener {
	return func(context.Context) (Driver, error) { return d, nil }
}

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (r *recordingObserver) ObserveStorageWrite(key, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, key+":"+result)
}

func TestStoreInitSelectsPrimary(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(Options{
		Primary:  SQLiteOpener(filepath.Join(dir, "repota.db")),
		Fallback: FileOpener(filepath.Join(dir, "local"), 0),
	})
	defer store.Close() //nolint:errcheck

	backend, err := store.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, backend)
	assert.False(t, store.Has(context.Background(), probeKey))

	require.NoError(t, store.Put(context.Background(), "settings", map[string]string{"level": "JHS"}))
	var got map[string]string
	require.True(t, store.Get(context.Background(), "settings", &got))
	assert.Equal(t, "JHS", got["level"])
}

func TestStoreFallsBackWhenPrimaryCannotOpen(t *testing.T) {
	fallback := newMemDriver()
	store := NewStore(Options{
		Primary: func(context.Context) (Driver, error) {
			return nil, errors.New("database blocked")
		},
		Fallback: openerFor(fallback),
	})

	backend, err := store.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendFile, backend)

	require.NoError(t, store.Put(context.Background(), "students", []string{"a"}))
	assert.Contains(t, fallback.data, "students")
}

func TestStoreFallsBackWhenProbeWriteFails(t *testing.T) {
	primary := newMemDriver()
	primary.writeErr = errors.New("read-only")
	store := NewStore(Options{Primary: openerFor(primary), Fallback: openerFor(newMemDriver())})

	backend, err := store.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendFile, backend)
	assert.True(t, primary.closed)
}

func TestStoreInitIsIdempotent(t *testing.T) {
	calls := 0
	store := NewStore(Options{
		Primary: func(context.Context) (Driver, error) {
			calls++
			return newMemDriver(), nil
		},
	})

	for i := 0; i < 3; i++ {
		backend, err := store.Init(context.Background())
		require.NoError(t, err)
		assert.Equal(t, BackendSQLite, backend)
	}
	assert.Equal(t, 1, calls)
}

func TestStoreInitWithoutUsableBackend(t *testing.T) {
	calls := 0
	store := NewStore(Options{
		Primary: func(context.Context) (Driver, error) {
			calls++
			return nil, errors.New("unavailable")
		},
	})

	_, err := store.Init(context.Background())
	require.Error(t, err)
	_, err = store.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, BackendUnprobed, store.Backend())
}

func TestStoreBeforeInit(t *testing.T) {
	store := NewStore(Options{})
	var dest []string
	assert.False(t, store.Get(context.Background(), "students", &dest))
	assert.ErrorIs(t, store.Put(context.Background(), "students", dest), ErrNotReady)
	assert.ErrorIs(t, store.Remove(context.Background(), "students"), ErrNotReady)
}

func TestStoreGetSoftFailsOnCorruptValue(t *testing.T) {
	driver := newMemDriver()
	driver.data["students"] = []byte("{not json")
	store := NewStore(Options{Primary: openerFor(driver)})
	_, err := store.Init(context.Background())
	require.NoError(t, err)

	var dest []string
	assert.False(t, store.Get(context.Background(), "students", &dest))
	assert.Nil(t, dest)
}

func TestStorePutQuotaExceeded(t *testing.T) {
	observer := &recordingObserver{}
	store := NewStore(Options{
		Fallback: FileOpener(t.TempDir(), 64),
		Observer: observer,
	})
	_, err := store.Init(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "small", "ok"))
	err = store.Put(context.Background(), "large", make([]int, 100))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.False(t, store.Has(context.Background(), "large"))
	assert.True(t, store.Has(context.Background(), "small"))
	assert.Equal(t, []string{"small:ok", "large:quota"}, observer.results)
}

func TestStorePutWrapsDriverQuotaErrors(t *testing.T) {
	driver := newMemDriver()
	store := NewStore(Options{Primary: openerFor(driver)})
	_, err := store.Init(context.Background())
	require.NoError(t, err)

	driver.writeErr = errors.New("database or disk is full")
	err = store.Put(context.Background(), "students", []string{"a"})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	driver.writeErr = errors.New("boom")
	err = store.Put(context.Background(), "students", []string{"a"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrQuotaExceeded))
}

func TestStoreRemoveAndClear(t *testing.T) {
	store := NewStore(Options{Primary: openerFor(newMemDriver())})
	_, err := store.Init(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", 1))
	require.NoError(t, store.Put(ctx, "b", 2))
	require.NoError(t, store.Remove(ctx, "a"))
	assert.False(t, store.Has(ctx, "a"))
	require.NoError(t, store.Clear(ctx))
	assert.False(t, store.Has(ctx, "b"))
}

func TestStorePutRejectsEmptyKey(t *testing.T) {
	store := NewStore(Options{Primary: openerFor(newMemDriver())})
	_, err := store.Init(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, store.Put(context.Background(), "", 1), ErrEmptyKey)
}
