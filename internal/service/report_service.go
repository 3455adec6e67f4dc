package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/dto"
	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/repository"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/jobs"
	"github.com/noah-isme/repota/pkg/storage"
)

// JobTypeBroadsheet is the queue job type for class broadsheets.
const JobTypeBroadsheet = "broadsheet"

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
	Delete(ctx context.Context, id string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

type reportFiles interface {
	VerifyToken(token string) (storage.DownloadGrant, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	Cleanup() ([]string, error)
}

type reportRecorder interface {
	RecordReportJob(status string)
}

// ReportServiceConfig governs cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload is a resolved, ready to stream report file.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService manages broadsheet jobs from request to download.
type ReportService struct {
	repo      reportJobStore
	classes   classViewer
	queue     jobDispatcher
	files     reportFiles
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, classes classViewer, queue jobDispatcher, files reportFiles, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	return &ReportService{
		repo:      repo,
		classes:   classes,
		queue:     queue,
		files:     files,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob validates the request, records the job and queues it.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}
	if _, err := s.classes.ClassView(req.ClassName); err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		ClassName: req.ClassName,
		Format:    req.Format,
		Status:    models.ReportStatusQueued,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeBroadsheet}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus returns job progress.
func (s *ReportService) GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrReportJobNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return &dto.ReportStatusResponse{
		ID:        job.ID,
		ClassName: job.ClassName,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
		Error:     job.ErrorMessage,
	}, nil
}

// ResolveDownload checks the token and opens the file it grants.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	grant, err := s.files.VerifyToken(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, grant.ReportID)
	if err != nil {
		if errors.Is(err, repository.ErrReportJobNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished || job.ResultFile != grant.File {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not available")
	}
	file, err := s.files.Open(grant.File)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report file no longer available")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(grant.File),
		Format:    job.Format,
		ExpiresAt: grant.ExpiresAt,
	}, nil
}

// StartCleanup periodically deletes expired report files and their jobs.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired removes jobs finished longer than the result TTL ago,
// their files, and any stray files past the TTL.
func (s *ReportService) CleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 0)
	if err != nil {
		s.logger.Warn("report cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range expired {
		if job.ResultFile != "" {
			if err := s.files.Delete(job.ResultFile); err != nil {
				s.logger.Warn("report cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
		}
		_ = s.repo.Delete(ctx, job.ID)
	}
	if removed, err := s.files.Cleanup(); err != nil {
		s.logger.Warn("report file cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("expired report files removed", zap.Int("count", len(removed)))
	}
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	metrics    reportRecorder
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker. maxRetries should match the queue's.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics reportRecorder, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.ReportStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
			w.record(models.ReportStatusFailed)
		} else {
			queued := models.ReportStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Warn("failed to mark job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
			}
		}
		return err
	}

	finished := models.ReportStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultFile:   &result.File,
		ResultURL:    &result.URL,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.record(models.ReportStatusFinished)
	return nil
}

func (w *ReportWorker) record(status models.ReportStatus) {
	if w.metrics != nil {
		w.metrics.RecordReportJob(string(status))
	}
}
