package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/pkg/export"
	"github.com/noah-isme/repota/pkg/storage"
)

type classViewer interface {
	ClassView(className string) (models.ClassView, error)
}

type exportFiles interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Remove(name string) error
	Prune(maxAge time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	File      string
	Token     string
	URL       string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ExportService renders class broadsheets and stores the files.
type ExportService struct {
	classes  classViewer
	settings settingsProvider
	files    exportFiles
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.DownloadSigner
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers get the
// defaults from pkg/export.
func NewExportService(classes classViewer, settings settingsProvider, files exportFiles, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		classes:  classes,
		settings: settings,
		files:    files,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Generate renders the job's class broadsheet and returns a signed link.
func (s *ExportService) Generate(_ context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	view, err := s.classes.ClassView(job.ClassName)
	if err != nil {
		return nil, err
	}
	dataset := BuildBroadsheet(view, s.settings.Get())

	var payload []byte
	switch job.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	name, err := s.files.Save(s.filename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Sign(job.ID, name)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		File:      name,
		Token:     token,
		URL:       fmt.Sprintf("%s/reports/download/%s", prefix, token),
		Format:    job.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyToken checks a download token.
func (s *ExportService) VerifyToken(token string) (storage.DownloadGrant, error) {
	return s.signer.Verify(token)
}

// Open returns a handle to a stored file.
func (s *ExportService) Open(name string) (*os.File, error) {
	return s.files.Open(name)
}

// Delete removes a stored file.
func (s *ExportService) Delete(name string) error {
	return s.files.Remove(name)
}

// Cleanup removes files older than the result TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.files.Prune(s.cfg.ResultTTL)
}

func (s *ExportService) filename(job *models.ReportJob) string {
	stamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("broadsheet_%s_%s_%s.%s", sanitizeFilename(job.ClassName), stamp, shortID(job.ID), job.Format)
}

// BuildBroadsheet lays a ranked class view out as one row per student in
// class-position order.
func BuildBroadsheet(view models.ClassView, settings models.SchoolSettings) export.Dataset {
	var subjects []string
	seen := make(map[string]bool)
	for _, student := range view.Students {
		for _, subject := range student.Subjects {
			key := normalizeSubjectName(subject.Name)
			if !seen[key] {
				seen[key] = true
				subjects = append(subjects, subject.Name)
			}
		}
	}

	withAggregate := view.Level == models.LevelJHS || view.Level == models.LevelSHS
	headers := []string{"Position", "Name"}
	for _, subject := range subjects {
		headers = append(headers, subject, subject+" Grade")
	}
	headers = append(headers, "Total", "Average")
	if withAggregate {
		headers = append(headers, "Aggregate")
	}

	rows := make([]map[string]string, 0, len(view.Students))
	for _, student := range view.Students {
		row := map[string]string{
			"Position": student.ClassPosition,
			"Name":     student.Name,
			"Total":    formatScore(student.TotalScore),
			"Average":  formatScore(student.AverageScore),
		}
		for _, subject := range student.Subjects {
			name := canonicalSubject(subjects, subject.Name)
			row[name] = formatScore(subject.TotalScore)
			row[name+" Grade"] = subject.Grade
		}
		if withAggregate && student.Aggregate != nil {
			row["Aggregate"] = strconv.Itoa(*student.Aggregate)
		}
		rows = append(rows, row)
	}

	notes := []string{}
	if header := strings.TrimSpace(strings.Join(nonEmpty(settings.SchoolName, settings.AcademicYear, settings.Term), " - ")); header != "" {
		notes = append(notes, header)
	}
	notes = append(notes, fmt.Sprintf("Level %s, %d students", view.Level, len(view.Students)))

	return export.Dataset{
		Title:   "Broadsheet " + view.ClassName,
		Notes:   notes,
		Headers: headers,
		Rows:    rows,
	}
}

func canonicalSubject(subjects []string, name string) string {
	key := normalizeSubjectName(name)
	for _, subject := range subjects {
		if normalizeSubjectName(subject) == key {
			return subject
		}
	}
	return name
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

func sanitizeFilename(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "class"
	}
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	result := b.String()
	if len(result) > 60 {
		return result[:60]
	}
	return result
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
