package models

import "strings"

// SchoolLevel selects the grade band table.
type SchoolLevel string

const (
	LevelKG      SchoolLevel = "KG"
	LevelPrimary SchoolLevel = "PRIMARY"
	LevelJHS     SchoolLevel = "JHS"
	LevelSHS     SchoolLevel = "SHS"
)

// Valid reports whether the level has a band table.
func (l SchoolLevel) Valid() bool {
	switch l {
	case LevelKG, LevelPrimary, LevelJHS, LevelSHS:
		return true
	}
	return false
}

// ParseSchoolLevel normalises user input; unknown values are returned as-is so
// grading can flag them instead of silently picking a table.
func ParseSchoolLevel(raw string) SchoolLevel {
	return SchoolLevel(strings.ToUpper(strings.TrimSpace(raw)))
}

// ComponentTemplate is a reusable SBA component definition.
type ComponentTemplate struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	MaxScore float64 `json:"maxScore" validate:"gt=0"`
	Category string  `json:"category,omitempty"`
}

// SchoolSettings is the per-device grading configuration.
type SchoolSettings struct {
	SchoolName          string              `json:"schoolName,omitempty"`
	AcademicYear        string              `json:"academicYear,omitempty"`
	Term                string              `json:"term,omitempty"`
	Level               SchoolLevel         `json:"level" validate:"required,oneof=KG PRIMARY JHS SHS"`
	ClassScoreMax       float64             `json:"classScoreMax" validate:"gte=0,lte=100"`
	ExamScoreMax        float64             `json:"examScoreMax" validate:"gte=0,lte=100"`
	TotalAttendanceDays int                 `json:"totalAttendanceDays" validate:"gte=0"`
	DefaultSubjects     []string            `json:"defaultSubjects"`
	CoreSubjects        []string            `json:"coreSubjects,omitempty"`
	ComponentLibrary    []ComponentTemplate `json:"componentLibrary" validate:"dive"`
	SubjectComponentMap map[string][]string `json:"subjectComponentMap"`
}

// DefaultSettings returns the configuration used on a fresh device.
func DefaultSettings() SchoolSettings {
	return SchoolSettings{
		Level:               LevelSHS,
		ClassScoreMax:       30,
		ExamScoreMax:        70,
		TotalAttendanceDays: 0,
		DefaultSubjects: []string{
			"English Language",
			"Mathematics",
			"Integrated Science",
			"Social Studies",
		},
		CoreSubjects: []string{
			"English Language",
			"Mathematics",
			"Integrated Science",
			"Social Studies",
		},
		ComponentLibrary:    []ComponentTemplate{},
		SubjectComponentMap: map[string][]string{},
	}
}

// Clone returns a deep copy.
func (s SchoolSettings) Clone() SchoolSettings {
	out := s
	out.DefaultSubjects = append([]string(nil), s.DefaultSubjects...)
	out.CoreSubjects = append([]string(nil), s.CoreSubjects...)
	out.ComponentLibrary = append([]ComponentTemplate(nil), s.ComponentLibrary...)
	out.SubjectComponentMap = make(map[string][]string, len(s.SubjectComponentMap))
	for subject, ids := range s.SubjectComponentMap {
		out.SubjectComponentMap[subject] = append([]string(nil), ids...)
	}
	return out
}
