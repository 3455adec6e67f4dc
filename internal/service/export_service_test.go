package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/pkg/export"
	"github.com/noah-isme/repota/pkg/storage"
)

type stubClassViewer struct {
	view models.ClassView
	err  error
}

func (s stubClassViewer) ClassView(string) (models.ClassView, error) {
	return s.view, s.err
}

type failingRenderer struct{}

func (failingRenderer) Render(export.Dataset) ([]byte, error) {
	return nil, errors.New("render failed")
}

func jhsClassView() models.ClassView {
	settings := models.DefaultSettings()
	settings.Level = models.LevelJHS
	roster := []models.StudentRecord{
		scored("1", "Ama", "JHS 2", 90, 80),
		scored("2", "Kofi", "JHS 2", 60, 70),
	}
	return BuildClassView(roster, settings, "JHS 2", time.Now())
}

func newTestExportService(t *testing.T, view models.ClassView) (*ExportService, *storage.ExportDir) {
	t.Helper()
	dir, err := storage.NewExportDir(t.TempDir())
	require.NoError(t, err)
	settings := models.DefaultSettings()
	settings.SchoolName = "Hillside"
	settings.Term = "Term 1"
	svc := NewExportService(
		stubClassViewer{view: view},
		staticSettings{settings: settings},
		dir,
		storage.NewDownloadSigner("secret", time.Hour),
		ExportConfig{APIPrefix: "/api/v1/"},
		nil, nil, nil,
	)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC) }
	return svc, dir
}

func TestBuildBroadsheet(t *testing.T) {
	settings := models.DefaultSettings()
	settings.SchoolName = "Hillside"
	settings.AcademicYear = "2023/2024"

	data := BuildBroadsheet(jhsClassView(), settings)

	assert.Equal(t, "Broadsheet JHS 2", data.Title)
	assert.Equal(t, []string{"Hillside - 2023/2024", "Level JHS, 2 students"}, data.Notes)
	assert.Equal(t, []string{
		"Position", "Name",
		"English Language", "English Language Grade",
		"Mathematics", "Mathematics Grade",
		"Total", "Average", "Aggregate",
	}, data.Headers)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "1st", data.Rows[0]["Position"])
	assert.Equal(t, "Ama", data.Rows[0]["Name"])
	assert.Equal(t, "90", data.Rows[0]["English Language"])
	assert.Equal(t, "1", data.Rows[0]["English Language Grade"])
	assert.Equal(t, "170", data.Rows[0]["Total"])
	assert.Equal(t, "85", data.Rows[0]["Average"])
	assert.NotEmpty(t, data.Rows[0]["Aggregate"])
}

func TestBuildBroadsheetWithoutAggregate(t *testing.T) {
	settings := models.DefaultSettings()
	settings.Level = models.LevelPrimary
	view := BuildClassView([]models.StudentRecord{scored("1", "Ama", "P6", 75)}, settings, "P6", time.Now())

	data := BuildBroadsheet(view, settings)
	assert.NotContains(t, data.Headers, "Aggregate")
	assert.Equal(t, "B", data.Rows[0]["English Language Grade"])
}

func TestExportGenerateCSV(t *testing.T) {
	svc, dir := newTestExportService(t, jhsClassView())
	job := &models.ReportJob{ID: "0123456789abcdef", ClassName: "JHS 2", Format: models.ReportFormatCSV}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "broadsheet_JHS_2_20240601_103000_01234567.csv", result.File)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/reports/download/"))
	assert.Equal(t, models.ReportFormatCSV, result.Format)

	grant, err := svc.VerifyToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, job.ID, grant.ReportID)
	assert.Equal(t, result.File, grant.File)

	file, err := dir.Open(result.File)
	require.NoError(t, err)
	defer file.Close()
	raw, err := io.ReadAll(file)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Position", records[0][0])
	assert.Equal(t, "Ama", records[1][1])
}

func TestExportGeneratePDF(t *testing.T) {
	svc, _ := newTestExportService(t, jhsClassView())
	result, err := svc.Generate(context.Background(), &models.ReportJob{ID: "job", ClassName: "JHS 2", Format: models.ReportFormatPDF})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.File, ".pdf"))
}

func TestExportGenerateFailures(t *testing.T) {
	svc, _ := newTestExportService(t, jhsClassView())
	_, err := svc.Generate(context.Background(), &models.ReportJob{ID: "job", ClassName: "JHS 2", Format: "xlsx"})
	assert.Error(t, err)

	svc.csv = failingRenderer{}
	_, err = svc.Generate(context.Background(), &models.ReportJob{ID: "job", ClassName: "JHS 2", Format: models.ReportFormatCSV})
	assert.EqualError(t, err, "render failed")

	missing := NewExportService(stubClassViewer{err: errors.New("class not found")}, staticSettings{}, nil, nil, ExportConfig{}, nil, nil, nil)
	_, err = missing.Generate(context.Background(), &models.ReportJob{ID: "job", ClassName: "X", Format: models.ReportFormatCSV})
	assert.EqualError(t, err, "class not found")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "class", sanitizeFilename("  "))
	assert.Equal(t, "JHS_1__A_", sanitizeFilename("JHS 1 (A)"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 80)), 60)
}
