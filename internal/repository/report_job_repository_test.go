package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repota/internal/models"
)

func TestReportJobRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewReportJobRepository()

	job := &models.ReportJob{ClassName: "JHS 2", Format: models.ReportFormatCSV}
	require.NoError(t, repo.Create(ctx, job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	status := models.ReportStatusFinished
	progress := 100
	file := "reports/a.csv"
	url := "/api/v1/reports/download/token"
	msg := "transient"
	finished := time.Now().Add(-2 * time.Hour)
	require.NoError(t, repo.Update(ctx, job.ID, UpdateReportJobParams{
		Status: &status, Progress: &progress, ResultFile: &file, ResultURL: &url, ErrorMessage: &msg, FinishedAt: &finished,
	}))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, status, got.Status)
	assert.Equal(t, file, got.ResultFile)
	require.NotNil(t, got.ErrorMessage)

	clear := ""
	require.NoError(t, repo.Update(ctx, job.ID, UpdateReportJobParams{ErrorMessage: &clear}))
	got, err = repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ErrorMessage)

	old, err := repo.ListFinishedBefore(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, old, 1)

	require.NoError(t, repo.Delete(ctx, job.ID))
	_, err = repo.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, ErrReportJobNotFound)
	assert.ErrorIs(t, repo.Update(ctx, job.ID, UpdateReportJobParams{}), ErrReportJobNotFound)
}
