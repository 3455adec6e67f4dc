package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/storage"
)

type bootFixture struct {
	store     *storage.Store
	heartbeat *storage.HeartbeatFile
	students  *StudentService
	settings  *SettingsService
	session   *SessionService
	logs      *observer.ObservedLogs
}

func newBootFixture(t *testing.T, store *storage.Store, legacy legacySource) *bootFixture {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	heartbeat := storage.NewHeartbeatFile(filepath.Join(t.TempDir(), "heartbeat.json"), store.Backend)
	settings := NewSettingsService(store, nil, nil, logger)
	students := NewStudentService(store, nil, settings, nil, time.Second, logger)
	session := NewSessionService(store, NewMigrationService(store, legacy, logger), students, settings, heartbeat, logger)
	return &bootFixture{store: store, heartbeat: heartbeat, students: students, settings: settings, session: session, logs: logs}
}

func TestSessionStartOnFreshDevice(t *testing.T) {
	store := storage.NewStore(storage.Options{
		Primary:  storage.SQLiteOpener(t.TempDir() + "/repota.db"),
		Fallback: storage.FileOpener(t.TempDir(), 0),
	})
	defer store.Close() //nolint:errcheck
	fx := newBootFixture(t, store, nil)

	report, err := fx.session.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(storage.BackendSQLite), report.Backend)
	require.NotNil(t, report.Migration)
	assert.True(t, report.Migration.Success)
	assert.False(t, report.DataLossSuspected)
	assert.Nil(t, report.LastHeartbeat)
	assert.Zero(t, report.StudentsLoaded)
	assert.False(t, report.SettingsLoaded)
	assert.Equal(t, models.LevelSHS, fx.settings.Get().Level)
}

func TestSessionStartMigratesAndLoads(t *testing.T) {
	store := newSQLiteStore(t)
	settings := models.DefaultSettings()
	settings.Level = models.LevelPrimary
	legacy := newLegacyDriver(t, []models.StudentRecord{{ID: "1", Name: "Ama", ClassName: "P4"}}, &settings)
	fx := newBootFixture(t, store, legacy)

	report, err := fx.session.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Migration)
	assert.True(t, report.Migration.SettingsMigrated)
	assert.Equal(t, 1, report.StudentsLoaded)
	assert.True(t, report.SettingsLoaded)
	assert.Len(t, fx.students.List(""), 1)
	assert.Equal(t, models.LevelPrimary, fx.settings.Get().Level)
}

func TestSessionStartDetectsWipedStore(t *testing.T) {
	store := storage.NewStore(storage.Options{Fallback: storage.FileOpener(t.TempDir(), 0)})
	fx := newBootFixture(t, store, nil)
	last := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, fx.heartbeat.Mark(storage.BackendFile, last))

	report, err := fx.session.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(storage.BackendFile), report.Backend)
	assert.Nil(t, report.Migration)
	assert.True(t, report.DataLossSuspected)
	require.NotNil(t, report.LastHeartbeat)
	assert.True(t, report.LastHeartbeat.Equal(last))
	assert.Equal(t, 1, fx.logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestSessionStartDetectsWipedDatabaseWithoutRestoringFallback(t *testing.T) {
	store := newSQLiteStore(t)
	stale := newLegacyDriver(t, []models.StudentRecord{{ID: "old", Name: "Yaw", ClassName: "JHS 1"}}, nil)
	fx := newBootFixture(t, store, stale)
	require.NoError(t, fx.heartbeat.Mark(storage.BackendSQLite, time.Now().Add(-time.Hour)))

	report, err := fx.session.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Migration)
	assert.True(t, report.Migration.Success)
	assert.Equal(t, appErrors.ErrAlreadyMigrated.Message, report.Migration.Error)
	assert.True(t, report.DataLossSuspected)
	assert.Zero(t, report.StudentsLoaded)
	assert.False(t, store.Has(context.Background(), models.KeyStudents))
}

func TestSessionStartMigratesFallbackSession(t *testing.T) {
	store := newSQLiteStore(t)
	fallback := newLegacyDriver(t, []models.StudentRecord{{ID: "1", Name: "Ama", ClassName: "JHS 2"}}, nil)
	fx := newBootFixture(t, store, fallback)
	require.NoError(t, fx.heartbeat.Mark(storage.BackendFile, time.Now().Add(-time.Hour)))

	report, err := fx.session.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Migration)
	require.NotNil(t, report.Migration.StudentsCount)
	assert.Equal(t, 1, *report.Migration.StudentsCount)
	assert.Equal(t, 1, report.StudentsLoaded)
	assert.False(t, report.DataLossSuspected)

	hb, found, err := fx.heartbeat.Read()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, storage.BackendSQLite, hb.Backend)
}

func TestSessionStartFallbackAfterDatabaseSessionIsNotDataLoss(t *testing.T) {
	store := storage.NewStore(storage.Options{Fallback: storage.FileOpener(t.TempDir(), 0)})
	fx := newBootFixture(t, store, nil)
	require.NoError(t, fx.heartbeat.Mark(storage.BackendSQLite, time.Now()))

	report, err := fx.session.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, report.DataLossSuspected)
	assert.Equal(t, 1, fx.logs.FilterLevelExact(zap.WarnLevel).Len())
}

func TestSessionStartHeartbeatWithDataIsHealthy(t *testing.T) {
	store := storage.NewStore(storage.Options{Fallback: storage.FileOpener(t.TempDir(), 0)})
	_, err := store.Init(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), models.KeyStudents, []models.StudentRecord{}))
	fx := newBootFixture(t, store, nil)
	require.NoError(t, fx.heartbeat.Mark(storage.BackendFile, time.Now()))

	report, err := fx.session.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, report.DataLossSuspected)
}

func TestSessionStartWithoutStorage(t *testing.T) {
	store := storage.NewStore(storage.Options{
		Primary: func(context.Context) (storage.Driver, error) { return nil, errors.New("denied") },
	})
	fx := newBootFixture(t, store, nil)

	_, err := fx.session.Start(context.Background())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrStorageUnavailable))
}

func TestSessionStatusIncludesSavers(t *testing.T) {
	store := storage.NewStore(storage.Options{Fallback: storage.FileOpener(t.TempDir(), 0)})
	coordinator := NewAutoSaveCoordinator(store, AutoSaveConfig{Key: models.KeyStudents, Debounce: time.Hour}, nil, nil)
	settings := NewSettingsService(store, nil, nil, nil)
	students := NewStudentService(store, coordinator, settings, nil, time.Second, nil)
	session := NewSessionService(store, nil, students, settings, nil, nil, coordinator)

	_, err := session.Start(context.Background())
	require.NoError(t, err)
	_, err = students.Add(context.Background(), StudentInput{Name: "Ama", ClassName: "JHS 1"})
	require.NoError(t, err)

	status := session.Status()
	assert.Equal(t, string(storage.BackendFile), status.Backend)
	require.NotNil(t, status.Boot)
	require.Len(t, status.Saves, 1)
	assert.True(t, status.Saves[0].IsSaving)
}
