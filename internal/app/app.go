package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/repository"
	"github.com/noah-isme/repota/internal/service"
	"github.com/noah-isme/repota/pkg/config"
	"github.com/noah-isme/repota/pkg/jobs"
	"github.com/noah-isme/repota/pkg/storage"
)

// App holds the wired services for one process.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Metrics       *service.MetricsService
	Store         *storage.Store
	Heartbeat     *storage.HeartbeatFile
	StudentSaver  *service.AutoSaveCoordinator
	SettingsSaver *service.AutoSaveCoordinator
	Settings      *service.SettingsService
	Students      *service.StudentService
	Migration     *service.MigrationService
	Session       *service.SessionService
	Gradebook     *service.GradebookService
	Backups       *service.BackupService

	// Set only when reports are enabled.
	Exports     *service.ExportService
	Reports     *service.ReportService
	ReportQueue *jobs.Queue

	Boot *models.BootReport

	legacy *storage.FileDriver
}

// Build wires every service from cfg and runs the boot sequence.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: service.NewMetricsService()}

	a.Store = storage.NewStore(storeOptions(cfg.Storage, logger, a.Metrics))
	a.Heartbeat = storage.NewHeartbeatFile(cfg.Storage.HeartbeatPath, a.Store.Backend)

	validate := service.NewValidator()
	a.StudentSaver = service.NewAutoSaveCoordinator(a.Store, service.AutoSaveConfig{
		Key:       models.KeyStudents,
		Debounce:  cfg.AutoSave.Debounce,
		Heartbeat: a.Heartbeat,
	}, a.Metrics, logger)
	a.SettingsSaver = service.NewAutoSaveCoordinator(a.Store, service.AutoSaveConfig{
		Key:       models.KeySettings,
		Debounce:  cfg.AutoSave.Debounce,
		Heartbeat: a.Heartbeat,
	}, a.Metrics, logger)

	a.Settings = service.NewSettingsService(a.Store, a.SettingsSaver, validate, logger)
	a.Students = service.NewStudentService(a.Store, a.StudentSaver, a.Settings, validate, cfg.Roster.UndoWindow, logger)
	a.Settings.Subscribe(a.Students)

	legacy, err := openLegacy(cfg.Storage.LegacyDir)
	if err != nil {
		logger.Warn("legacy store unavailable, skipping migration", zap.Error(err))
	}
	if legacy != nil {
		a.legacy = legacy
		a.Migration = service.NewMigrationService(a.Store, legacy, logger)
	} else {
		a.Migration = service.NewMigrationService(a.Store, nil, logger)
	}
	a.Session = service.NewSessionService(a.Store, a.Migration, a.Students, a.Settings, a.Heartbeat, logger, a.StudentSaver, a.SettingsSaver)

	boot, err := a.Session.Start(ctx)
	if err != nil {
		if a.legacy != nil {
			_ = a.legacy.Close()
		}
		_ = a.Store.Close()
		return nil, err
	}
	a.Boot = boot
	a.Metrics.SetStorageBackend(a.Store.Backend())

	a.Gradebook = service.NewGradebookService(a.Students, a.Settings)
	a.Backups = service.NewBackupService(a.Students, a.Settings, validate, logger, a.StudentSaver, a.SettingsSaver)

	if cfg.Reports.Enabled {
		if err := a.buildReports(validate); err != nil {
			_ = a.Store.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) buildReports(validate *validator.Validate) error {
	cfg := a.Config.Reports
	dir, err := storage.NewExportDir(cfg.StorageDir)
	if err != nil {
		return err
	}
	signer := storage.NewDownloadSigner(cfg.SignedURLSecret, cfg.SignedURLTTL)
	a.Exports = service.NewExportService(a.Gradebook, a.Settings, dir, signer, service.ExportConfig{
		APIPrefix: a.Config.APIPrefix,
		ResultTTL: cfg.SignedURLTTL,
	}, a.Logger, nil, nil)

	repo := repository.NewReportJobRepository()
	worker := service.NewReportWorker(repo, a.Exports, a.Metrics, cfg.WorkerRetries, a.Logger)
	a.ReportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: time.Second,
		Logger:     a.Logger,
	})
	a.Reports = service.NewReportService(repo, a.Gradebook, a.ReportQueue, a.Exports, validate, a.Logger, service.ReportServiceConfig{
		ResultTTL:       cfg.SignedURLTTL,
		CleanupInterval: cfg.CleanupInterval,
	})
	return nil
}

// StartBackground starts the report workers and cleanup loop. It is a
// no-op when reports are disabled.
func (a *App) StartBackground(ctx context.Context) {
	if a.ReportQueue == nil {
		return
	}
	a.ReportQueue.Start(ctx)
	a.Reports.StartCleanup(ctx)
}

// Close writes pending snapshots, stops the workers and releases storage.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.StudentSaver.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("students autosave: %w", err))
	}
	if err := a.SettingsSaver.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("settings autosave: %w", err))
	}
	if a.ReportQueue != nil {
		a.ReportQueue.Stop()
	}
	if a.legacy != nil {
		_ = a.legacy.Close()
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	return errors.Join(errs...)
}

func storeOptions(cfg config.StorageConfig, logger *zap.Logger, observer storage.WriteObserver) storage.Options {
	opts := storage.Options{Logger: logger, Observer: observer}
	switch cfg.Driver {
	case config.StorageDriverSQLite:
		opts.Primary = storage.SQLiteOpener(cfg.SQLitePath)
	case config.StorageDriverFile:
		opts.Fallback = storage.FileOpener(cfg.FallbackDir, cfg.QuotaBytes)
	default:
		opts.Primary = storage.SQLiteOpener(cfg.SQLitePath)
		opts.Fallback = storage.FileOpener(cfg.FallbackDir, cfg.QuotaBytes)
	}
	return opts
}

// openLegacy opens the migration source, normally the fallback store's
// directory, when it exists.
func openLegacy(dir string) (*storage.FileDriver, error) {
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("legacy path %s is not a directory", dir)
	}
	return storage.NewFileDriver(dir, 0)
}
