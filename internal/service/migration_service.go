package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/storage"
)

type keyValueStore interface {
	Backend() storage.Backend
	Get(ctx context.Context, key string, dest interface{}) bool
	Has(ctx context.Context, key string) bool
	Put(ctx context.Context, key string, value interface{}) error
}

type legacySource interface {
	Read(ctx context.Context, key string) ([]byte, bool, error)
}

// MigrationService copies data written by the legacy file store into the
// primary database.
type MigrationService struct {
	store  keyValueStore
	legacy legacySource
	logger *zap.Logger
}

// NewMigrationService constructs the migration service. legacy may be nil
// when no legacy directory exists.
func NewMigrationService(store keyValueStore, legacy legacySource, logger *zap.Logger) *MigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationService{store: store, legacy: legacy, logger: logger}
}

// Migrate moves legacy students and settings into the primary store. It
// only acts on the SQLite backend and never overwrites a destination key
// that already holds data; legacy data is left in place.
func (s *MigrationService) Migrate(ctx context.Context) models.MigrationResult {
	if s.store.Backend() != storage.BackendSQLite {
		return models.MigrationResult{Success: false, Error: "primary database not in use"}
	}
	if s.store.Has(ctx, models.KeyStudents) {
		return models.MigrationResult{Success: true, Error: appErrors.ErrAlreadyMigrated.Message}
	}
	if s.legacy == nil {
		zero := 0
		return models.MigrationResult{Success: true, StudentsCount: &zero}
	}

	var students []models.StudentRecord
	studentsFound, err := s.readLegacy(ctx, models.KeyStudents, &students)
	if err != nil {
		return s.failed(err)
	}
	var settings models.SchoolSettings
	settingsFound, err := s.readLegacy(ctx, models.KeySettings, &settings)
	if err != nil {
		return s.failed(err)
	}

	result := models.MigrationResult{Success: true}
	count := 0
	if studentsFound {
		if students == nil {
			students = []models.StudentRecord{}
		}
		if err := s.store.Put(ctx, models.KeyStudents, students); err != nil {
			return s.failed(fmt.Errorf("write students: %w", err))
		}
		count = len(students)
	}
	result.StudentsCount = &count

	if settingsFound && !s.store.Has(ctx, models.KeySettings) {
		if err := s.store.Put(ctx, models.KeySettings, settings); err != nil {
			return s.failed(fmt.Errorf("write settings: %w", err))
		}
		result.SettingsMigrated = true
	}

	if studentsFound || result.SettingsMigrated {
		s.logger.Info("legacy data migrated",
			zap.Int("students", count),
			zap.Bool("settings", result.SettingsMigrated),
		)
	}
	return result
}

func (s *MigrationService) readLegacy(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, found, err := s.legacy.Read(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read legacy %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode legacy %s: %w", key, err)
	}
	return true, nil
}

func (s *MigrationService) failed(err error) models.MigrationResult {
	s.logger.Error("legacy migration failed", zap.Error(err))
	msg := err.Error()
	if storage.IsQuotaError(err) {
		msg = appErrors.ErrQuotaExceeded.Message
	}
	return models.MigrationResult{Success: false, Error: msg}
}
