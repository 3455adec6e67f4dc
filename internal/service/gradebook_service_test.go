package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
)

type staticRoster []models.StudentRecord

func (r staticRoster) Snapshot() []models.StudentRecord {
	return models.CloneStudents(r)
}

func scored(id, name, class string, scores ...float64) models.StudentRecord {
	record := models.StudentRecord{ID: id, Name: name, ClassName: class}
	subjects := []string{"English Language", "Mathematics"}
	for i, score := range scores {
		record.Subjects = append(record.Subjects, models.SavedSubject{
			ID:         subjects[i],
			Name:       subjects[i],
			ClassScore: score * 0.3,
			ExamScore:  score * 0.7,
		})
	}
	return record
}

func TestGradebookClasses(t *testing.T) {
	roster := staticRoster{
		scored("1", "Ama", "JHS 2"),
		scored("2", "Kofi", "jhs 2 "),
		scored("3", "Yaw", "JHS 1"),
	}
	svc := NewGradebookService(roster, staticSettings{settings: models.DefaultSettings()})

	classes := svc.Classes()
	require.Len(t, classes, 2)
	assert.Equal(t, models.ClassSummary{ClassName: "JHS 1", Students: 1}, classes[0])
	assert.Equal(t, models.ClassSummary{ClassName: "JHS 2", Students: 2}, classes[1])
}

func TestGradebookClassView(t *testing.T) {
	settings := models.DefaultSettings()
	settings.Level = models.LevelJHS
	roster := staticRoster{
		scored("1", "Ama", "JHS 2", 90, 80),
		scored("2", "Kofi", "JHS 2", 60, 70),
		scored("3", "Esi", "JHS 2", 80, 90),
		scored("4", "Yaw", "JHS 1", 100, 100),
	}
	roster[0].DateOfBirth = "2010-03-01"
	svc := NewGradebookService(roster, staticSettings{settings: settings})
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	view, err := svc.ClassView("jhs 2")
	require.NoError(t, err)
	assert.Equal(t, models.LevelJHS, view.Level)
	require.Len(t, view.Students, 3)
	assert.Equal(t, "1st", view.Students[0].ClassPosition)
	assert.Equal(t, "1st", view.Students[1].ClassPosition)
	assert.Equal(t, "2nd", view.Students[2].ClassPosition)
	assert.Equal(t, "Kofi", view.Students[2].Name)
	require.NotNil(t, view.Students[0].Aggregate)

	var ama models.ProcessedStudent
	for _, s := range view.Students {
		if s.ID == "1" {
			ama = s
		}
	}
	require.NotNil(t, ama.Age)
	assert.Equal(t, 14, *ama.Age)
}

func TestGradebookClassViewErrors(t *testing.T) {
	svc := NewGradebookService(staticRoster{scored("1", "Ama", "JHS 1")}, staticSettings{settings: models.DefaultSettings()})

	_, err := svc.ClassView("  ")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.ClassView("SHS 3")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestGradebookClassViewDerivesComponentScores(t *testing.T) {
	settings := models.DefaultSettings()
	settings.ClassScoreMax, settings.ExamScoreMax = 50, 50
	stale := models.StudentRecord{ID: "1", Name: "Ama", ClassName: "SHS 1", Subjects: []models.SavedSubject{{
		ID:                   "m",
		Name:                 "Mathematics",
		ClassScore:           15,
		ExamScore:            50,
		ClassScoreComponents: []models.ClassScoreComponent{{Name: "Quiz", Score: 10, MaxScore: 20}},
	}}}
	svc := NewGradebookService(staticRoster{stale}, staticSettings{settings: settings})

	view, err := svc.ClassView("SHS 1")
	require.NoError(t, err)
	require.Len(t, view.Students, 1)
	subject := view.Students[0].Subjects[0]
	assert.Equal(t, float64(25), subject.ClassScore)
	assert.Equal(t, float64(75), subject.TotalScore)
	assert.Equal(t, "B2", subject.Grade)
}
