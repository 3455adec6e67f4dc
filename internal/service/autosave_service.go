package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
)

// ErrAutoSaveClosed is returned by Update after Close.
var ErrAutoSaveClosed = errors.New("autosave coordinator closed")

type snapshotWriter interface {
	Put(ctx context.Context, key string, value interface{}) error
}

type coalesceRecorder interface {
	RecordAutoSaveCoalesced(key string)
}

// HeartbeatToucher is refreshed after every successful write.
type HeartbeatToucher interface {
	Touch(at time.Time) error
}

// AutoSaveConfig configures one coordinator. Heartbeat may be nil.
type AutoSaveConfig struct {
	Key          string
	Debounce     time.Duration
	Heartbeat    HeartbeatToucher
	WriteTimeout time.Duration
}

// AutoSaveCoordinator debounces snapshots of one in-memory value and writes
// only the settled one. Every Update resets a single timer; when it fires the
// latest snapshot is handed to the store and the pending flag is cleared.
type AutoSaveCoordinator struct {
	store    snapshotWriter
	metrics  coalesceRecorder
	logger   *zap.Logger
	cfg      AutoSaveConfig
	now      func() time.Time
	afterFn  func(time.Duration, func()) *time.Timer
	writeMux sync.Mutex

	mu         sync.Mutex
	pending    interface{}
	hasPending bool
	seq        uint64
	inFlight   bool
	timer      *time.Timer
	lastSaved  time.Time
	lastErr    error
	closed     bool
}

// NewAutoSaveCoordinator builds a coordinator for cfg.Key.
func NewAutoSaveCoordinator(store snapshotWriter, cfg AutoSaveConfig, metrics coalesceRecorder, logger *zap.Logger) *AutoSaveCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &AutoSaveCoordinator{
		store:   store,
		metrics: metrics,
		logger:  logger.With(zap.String("key", cfg.Key)),
		cfg:     cfg,
		now:     time.Now,
		afterFn: time.AfterFunc,
	}
}

// Key returns the storage key the coordinator writes.
func (c *AutoSaveCoordinator) Key() string {
	return c.cfg.Key
}

// Update records a new snapshot and restarts the quiet period. The caller
// must not mutate value afterwards.
func (c *AutoSaveCoordinator) Update(value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrAutoSaveClosed
	}
	if c.hasPending && c.metrics != nil {
		c.metrics.RecordAutoSaveCoalesced(c.cfg.Key)
	}
	c.pending = value
	c.hasPending = true
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.afterFn(c.cfg.Debounce, c.fire)
	return nil
}

func (c *AutoSaveCoordinator) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	_ = c.write(ctx)
}

// Flush writes any pending snapshot now instead of waiting for the timer.
func (c *AutoSaveCoordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	return c.write(ctx)
}

// write hands the latest snapshot to the store. writeMux keeps a single
// write in flight per key, so writes land in the order they were taken.
// A failed snapshot stays pending unless a newer one replaced it.
func (c *AutoSaveCoordinator) write(ctx context.Context) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()

	c.mu.Lock()
	if !c.hasPending {
		c.mu.Unlock()
		return nil
	}
	value := c.pending
	seq := c.seq
	c.pending = nil
	c.hasPending = false
	c.inFlight = true
	c.mu.Unlock()

	err := c.store.Put(ctx, c.cfg.Key, value)
	if err == nil && c.cfg.Heartbeat != nil {
		if hbErr := c.cfg.Heartbeat.Touch(c.now().UTC()); hbErr != nil {
			c.logger.Warn("heartbeat write failed", zap.Error(hbErr))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		c.lastErr = err
		if c.seq == seq {
			c.pending = value
			c.hasPending = true
		}
		c.logger.Error("autosave failed", zap.Uint64("seq", seq), zap.Error(err))
		return err
	}
	c.lastErr = nil
	if completed := c.now(); completed.After(c.lastSaved) {
		c.lastSaved = completed
	}
	return nil
}

// IsSaving reports whether a snapshot is waiting for its timer or being written.
func (c *AutoSaveCoordinator) IsSaving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasPending || c.inFlight
}

// LastSaved returns when the most recent successful write completed.
func (c *AutoSaveCoordinator) LastSaved() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved, !c.lastSaved.IsZero()
}

// LastError returns the error of the most recent write, if it failed.
func (c *AutoSaveCoordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Status snapshots the coordinator for the status endpoint.
func (c *AutoSaveCoordinator) Status() models.SaveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := models.SaveStatus{
		Key:      c.cfg.Key,
		IsSaving: c.hasPending || c.inFlight,
	}
	if !c.lastSaved.IsZero() {
		saved := c.lastSaved.UTC()
		status.LastSaved = &saved
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// Close flushes the pending snapshot and rejects further updates. It
// returns the write error when the last snapshot could not be saved.
func (c *AutoSaveCoordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Flush(ctx)
}
