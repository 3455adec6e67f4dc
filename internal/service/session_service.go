package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/storage"
)

type storageInitializer interface {
	Init(ctx context.Context) (storage.Backend, error)
	Backend() storage.Backend
	Get(ctx context.Context, key string, dest interface{}) bool
}

type migrator interface {
	Migrate(ctx context.Context) models.MigrationResult
}

type rosterLoader interface {
	Load(ctx context.Context) (int, bool)
}

type settingsLoader interface {
	Load(ctx context.Context) bool
}

type saveStatusSource interface {
	Status() models.SaveStatus
}

type heartbeatRecord interface {
	Read() (storage.Heartbeat, bool, error)
	Mark(backend storage.Backend, at time.Time) error
}

// SessionService runs the boot sequence and reports storage health.
type SessionService struct {
	store    storageInitializer
	migrator migrator
	roster   rosterLoader
	settings settingsLoader
	pulse    heartbeatRecord
	savers   []saveStatusSource
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.RWMutex
	boot *models.BootReport
}

// NewSessionService constructs the session service. migrator and pulse may
// be nil.
func NewSessionService(store storageInitializer, migrator migrator, roster rosterLoader, settings settingsLoader, pulse heartbeatRecord, logger *zap.Logger, savers ...saveStatusSource) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		store:    store,
		migrator: migrator,
		roster:   roster,
		settings: settings,
		pulse:    pulse,
		savers:   savers,
		logger:   logger,
		now:      time.Now,
	}
}

// Start probes storage, reads the heartbeat, migrates fallback data when
// the database has not been used yet, and loads the roster and settings.
// A heartbeat whose store comes up empty is reported as suspected data loss.
func (s *SessionService) Start(ctx context.Context) (*models.BootReport, error) {
	backend, err := s.store.Init(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
	}
	report := &models.BootReport{Backend: string(backend)}

	heartbeat, hasHeartbeat := s.readHeartbeat()
	if hasHeartbeat {
		hb := heartbeat.SavedAt.UTC()
		report.LastHeartbeat = &hb
	}

	if backend == storage.BackendSQLite && s.migrator != nil {
		var result models.MigrationResult
		if hasHeartbeat && heartbeat.Backend == storage.BackendSQLite {
			result = models.MigrationResult{Success: true, Error: appErrors.ErrAlreadyMigrated.Message}
		} else {
			result = s.migrator.Migrate(ctx)
			if movedData(result) {
				s.markHeartbeat(backend)
			} else if hasHeartbeat && heartbeat.Backend == storage.BackendFile && result.Error == appErrors.ErrAlreadyMigrated.Message {
				s.logger.Warn("saves from the last fallback session were not merged into the database; they remain in the fallback store",
					zap.Time("last_heartbeat", heartbeat.SavedAt),
				)
			}
		}
		report.Migration = &result
	}

	count, studentsFound := s.roster.Load(ctx)
	settingsFound := s.settings.Load(ctx)
	report.StudentsLoaded = count
	report.SettingsLoaded = settingsFound

	if hasHeartbeat && !studentsFound && !settingsFound {
		if heartbeat.Backend == storage.BackendSQLite && backend != storage.BackendSQLite {
			s.logger.Warn("database unavailable; its data is kept but not loaded this session",
				zap.Time("last_heartbeat", heartbeat.SavedAt),
			)
		} else {
			report.DataLossSuspected = true
			s.logger.Error("stored data missing since last save; the store may have been cleared",
				zap.Time("last_heartbeat", heartbeat.SavedAt),
				zap.String("last_backend", string(heartbeat.Backend)),
				zap.String("backend", report.Backend),
			)
		}
	}

	s.logger.Info("session started",
		zap.String("backend", report.Backend),
		zap.Int("students", count),
		zap.Bool("settings", settingsFound),
	)

	s.mu.Lock()
	s.boot = report
	s.mu.Unlock()
	return report, nil
}

func (s *SessionService) readHeartbeat() (storage.Heartbeat, bool) {
	if s.pulse == nil {
		return storage.Heartbeat{}, false
	}
	hb, found, err := s.pulse.Read()
	if err != nil {
		s.logger.Warn("heartbeat unreadable", zap.Error(err))
		return storage.Heartbeat{}, false
	}
	return hb, found
}

func (s *SessionService) markHeartbeat(backend storage.Backend) {
	if s.pulse == nil {
		return
	}
	if err := s.pulse.Mark(backend, s.now()); err != nil {
		s.logger.Warn("heartbeat write failed", zap.Error(err))
	}
}

func movedData(result models.MigrationResult) bool {
	if !result.Success {
		return false
	}
	return result.SettingsMigrated || (result.StudentsCount != nil && *result.StudentsCount > 0)
}

// Status reports the active backend, the boot outcome and every
// coordinator's save state.
func (s *SessionService) Status() models.StorageStatus {
	s.mu.RLock()
	boot := s.boot
	s.mu.RUnlock()

	status := models.StorageStatus{
		Backend: string(s.store.Backend()),
		Boot:    boot,
		Saves:   make([]models.SaveStatus, 0, len(s.savers)),
	}
	for _, saver := range s.savers {
		status.Saves = append(status.Saves, saver.Status())
	}
	return status
}
