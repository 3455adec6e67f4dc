package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/repota/internal/models"
)

// ErrReportJobNotFound is returned for unknown job ids.
var ErrReportJobNotFound = errors.New("report job not found")

// UpdateReportJobParams defines the mutable fields.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultFile   *string
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// ReportJobRepository keeps report jobs for the life of the process.
// Rendered files expire quickly, so jobs are not persisted.
type ReportJobRepository struct {
	mu   sync.RWMutex
	jobs map[string]models.ReportJob
	now  func() time.Time
}

// NewReportJobRepository constructs an empty repository.
func NewReportJobRepository() *ReportJobRepository {
	return &ReportJobRepository{jobs: make(map[string]models.ReportJob), now: time.Now}
}

// Create stores a new job, filling id, status and creation time.
func (r *ReportJobRepository) Create(_ context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

// GetByID returns a copy of the job.
func (r *ReportJobRepository) GetByID(_ context.Context, id string) (*models.ReportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrReportJobNotFound
	}
	return &job, nil
}

// Update applies the non-nil fields of params.
func (r *ReportJobRepository) Update(_ context.Context, id string, params UpdateReportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrReportJobNotFound
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultFile != nil {
		job.ResultFile = *params.ResultFile
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.ErrorMessage != nil {
		if *params.ErrorMessage == "" {
			job.ErrorMessage = nil
		} else {
			msg := *params.ErrorMessage
			job.ErrorMessage = &msg
		}
	}
	if params.FinishedAt != nil {
		finished := *params.FinishedAt
		job.FinishedAt = &finished
	}
	r.jobs[id] = job
	return nil
}

// ListFinishedBefore returns finished or failed jobs completed before cutoff,
// oldest first.
func (r *ReportJobRepository) ListFinishedBefore(_ context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ReportJob, 0)
	for _, job := range r.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.Before(*out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete forgets a job.
func (r *ReportJobRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	return nil
}
