package models

// StudentRecord is the authoritative, persisted form of a learner's report data.
type StudentRecord struct {
	ID                string         `json:"id"`
	Name              string         `json:"name" validate:"required,max=120"`
	ClassName         string         `json:"className" validate:"required,max=60"`
	Gender            string         `json:"gender,omitempty" validate:"omitempty,oneof=Male Female"`
	DateOfBirth       string         `json:"dateOfBirth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AttendancePresent *int           `json:"attendancePresent,omitempty" validate:"omitempty,gte=0"`
	Conduct           string         `json:"conduct,omitempty"`
	Interest          string         `json:"interest,omitempty"`
	PictureURL        string         `json:"pictureUrl,omitempty"`
	Subjects          []SavedSubject `json:"subjects" validate:"dive"`
}

// SavedSubject holds the raw scores entered for one subject.
type SavedSubject struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name" validate:"required"`
	ClassScore           float64               `json:"classScore" validate:"gte=0"`
	ExamScore            float64               `json:"examScore" validate:"gte=0"`
	ClassScoreComponents []ClassScoreComponent `json:"classScoreComponents,omitempty" validate:"dive"`
}

// ClassScoreComponent is one SBA sub-assessment rolled into a subject's class score.
type ClassScoreComponent struct {
	ID       string  `json:"id"`
	Name     string  `json:"name" validate:"required"`
	Score    float64 `json:"score" validate:"gte=0"`
	MaxScore float64 `json:"maxScore" validate:"gt=0"`
	Category string  `json:"category,omitempty"`
}

// UsesComponents reports whether the class score is derived from components.
func (s SavedSubject) UsesComponents() bool {
	return len(s.ClassScoreComponents) > 0
}

// Clone returns a deep copy so callers can never mutate a stored record in place.
func (r StudentRecord) Clone() StudentRecord {
	out := r
	if r.AttendancePresent != nil {
		v := *r.AttendancePresent
		out.AttendancePresent = &v
	}
	out.Subjects = make([]SavedSubject, len(r.Subjects))
	for i, subject := range r.Subjects {
		out.Subjects[i] = subject
		if subject.ClassScoreComponents != nil {
			out.Subjects[i].ClassScoreComponents = append([]ClassScoreComponent(nil), subject.ClassScoreComponents...)
		}
	}
	return out
}

// CloneStudents deep copies a roster.
func CloneStudents(records []StudentRecord) []StudentRecord {
	out := make([]StudentRecord, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}
