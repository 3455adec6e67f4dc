package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend is the probe state of a Store.
type Backend string

const (
	BackendUnprobed Backend = "unprobed"
	BackendProbing  Backend = "probing"
	BackendSQLite   Backend = "sqlite"
	BackendFile     Backend = "file"
)

const probeKey = "__repota_probe__"

// WriteObserver receives the outcome of every Put.
type WriteObserver interface {
	ObserveStorageWrite(key, result string, duration time.Duration)
}

// Write outcomes reported to a WriteObserver.
const (
	WriteOK    = "ok"
	WriteQuota = "quota"
	WriteError = "error"
)

// Options configures a Store. Either opener may be nil to force the other.
type Options struct {
	Primary  Opener
	Fallback Opener
	Logger   *zap.Logger
	Observer WriteObserver
}

// Store is the process-wide key/value service. Init probes the primary
// database once; any failure selects the file fallback for the rest of the
// session.
type Store struct {
	primary  Opener
	fallback Opener
	logger   *zap.Logger
	observer WriteObserver

	mu      sync.RWMutex
	probed  bool
	state   Backend
	driver  Driver
	initErr error
}

// NewStore builds an unprobed Store.
func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		primary:  opts.Primary,
		fallback: opts.Fallback,
		logger:   opts.Logger,
		observer: opts.Observer,
		state:    BackendUnprobed,
	}
}

// Init selects the backend. Repeated calls return the first outcome.
func (s *Store) Init(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.probed {
		return s.state, s.initErr
	}
	s.probed = true
	s.state = BackendProbing

	if s.primary != nil {
		driver, err := s.probe(ctx)
		if err == nil {
			s.driver = driver
			s.state = BackendSQLite
			s.logger.Info("storage ready", zap.String("backend", string(s.state)))
			return s.state, nil
		}
		s.logger.Warn("storage probe failed, using file fallback", zap.Error(err))
	}

	if s.fallback == nil {
		s.state = BackendUnprobed
		s.initErr = fmt.Errorf("no usable storage backend")
		return s.state, s.initErr
	}
	driver, err := s.fallback(ctx)
	if err != nil {
		s.state = BackendUnprobed
		s.initErr = fmt.Errorf("open fallback storage: %w", err)
		return s.state, s.initErr
	}
	s.driver = driver
	s.state = BackendFile
	s.logger.Info("storage ready", zap.String("backend", string(s.state)))
	return s.state, nil
}

func (s *Store) probe(ctx context.Context) (Driver, error) {
	driver, err := s.primary(ctx)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := driver.Write(ctx, probeKey, []byte(`"probe"`)); err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("write probe: %w", err)
	}
	if err := driver.Delete(ctx, probeKey); err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("delete probe: %w", err)
	}
	return driver, nil
}

// Backend returns the current probe state.
func (s *Store) Backend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) current() Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driver
}

// Get decodes the value stored under key into dest. Any failure is logged
// and reported as a miss, since an empty start is a recoverable state.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, ok := s.GetRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn("storage value unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// GetRaw returns the stored JSON document for key.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, bool) {
	driver := s.current()
	if driver == nil {
		s.logger.Warn("storage read before init", zap.String("key", key))
		return nil, false
	}
	raw, found, err := driver.Read(ctx, key)
	if err != nil {
		s.logger.Warn("storage read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, found
}

// Has reports whether key holds a value.
func (s *Store) Has(ctx context.Context, key string) bool {
	_, ok := s.GetRaw(ctx, key)
	return ok
}

// Put stores value as JSON. A full store yields an error matching
// ErrQuotaExceeded; other failures are logged and returned wrapped.
func (s *Store) Put(ctx context.Context, key string, value interface{}) error {
	if key == "" {
		return ErrEmptyKey
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	driver := s.current()
	if driver == nil {
		return ErrNotReady
	}

	start := time.Now()
	err = driver.Write(ctx, key, payload)
	duration := time.Since(start)
	switch {
	case err == nil:
		s.observe(key, WriteOK, duration)
		return nil
	case IsQuotaError(err):
		s.observe(key, WriteQuota, duration)
		s.logger.Error("storage quota exceeded", zap.String("key", key), zap.Int("bytes", len(payload)), zap.Error(err))
		if errors.Is(err, ErrQuotaExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	default:
		s.observe(key, WriteError, duration)
		s.logger.Warn("storage write failed", zap.String("key", key), zap.Error(err))
		return err
	}
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	driver := s.current()
	if driver == nil {
		return ErrNotReady
	}
	if err := driver.Delete(ctx, key); err != nil {
		s.logger.Warn("storage delete failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Clear deletes every key.
func (s *Store) Clear(ctx context.Context) error {
	driver := s.current()
	if driver == nil {
		return ErrNotReady
	}
	if err := driver.Clear(ctx); err != nil {
		s.logger.Warn("storage clear failed", zap.Error(err))
		return err
	}
	return nil
}

// Close releases the backend at process exit.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close()
	s.driver = nil
	return err
}

func (s *Store) observe(key, result string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveStorageWrite(key, result, d)
	}
}
