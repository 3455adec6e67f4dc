package service

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
)

type rosterReader interface {
	Snapshot() []models.StudentRecord
}

// GradebookService derives ranked class reports from the current roster and
// settings on every call.
type GradebookService struct {
	roster   rosterReader
	settings settingsProvider
	now      func() time.Time
}

// NewGradebookService constructs the gradebook service.
func NewGradebookService(roster rosterReader, settings settingsProvider) *GradebookService {
	return &GradebookService{roster: roster, settings: settings, now: time.Now}
}

// Classes lists every class on the roster with its head count.
func (s *GradebookService) Classes() []models.ClassSummary {
	counts := make(map[string]int)
	names := make(map[string]string)
	for _, record := range s.roster.Snapshot() {
		key := strings.ToLower(strings.TrimSpace(record.ClassName))
		if _, ok := names[key]; !ok {
			names[key] = strings.TrimSpace(record.ClassName)
		}
		counts[key]++
	}
	out := make([]models.ClassSummary, 0, len(counts))
	for key, count := range counts {
		out = append(out, models.ClassSummary{ClassName: names[key], Students: count})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ClassName) < strings.ToLower(out[j].ClassName)
	})
	return out
}

// ClassView returns the ranked report for className.
func (s *GradebookService) ClassView(className string) (models.ClassView, error) {
	if strings.TrimSpace(className) == "" {
		return models.ClassView{}, appErrors.Clone(appErrors.ErrValidation, "class name is required")
	}
	view := BuildClassView(s.roster.Snapshot(), s.settings.Get(), strings.TrimSpace(className), s.now())
	if len(view.Students) == 0 {
		return models.ClassView{}, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return view, nil
}
