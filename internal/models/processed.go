package models

// ProcessedSubject is a SavedSubject with its derived grade. Never persisted.
type ProcessedSubject struct {
	SavedSubject
	TotalScore      float64 `json:"totalScore"`
	Grade           string  `json:"grade"`
	Remark          string  `json:"remark"`
	SubjectPosition string  `json:"subjectPosition,omitempty"`
}

// ProcessedStudent is recomputed from a StudentRecord on every read.
type ProcessedStudent struct {
	StudentRecord
	Subjects      []ProcessedSubject `json:"subjects"`
	TotalScore    float64            `json:"totalScore"`
	AverageScore  float64            `json:"averageScore"`
	ClassPosition string             `json:"classPosition"`
	Age           *int               `json:"age,omitempty"`
	Aggregate     *int               `json:"aggregate,omitempty"`
}

// ClassView is the ranked report for one class.
type ClassView struct {
	ClassName string             `json:"className"`
	Level     SchoolLevel        `json:"level"`
	Students  []ProcessedStudent `json:"students"`
}

// ClassSummary lists a class and its size.
type ClassSummary struct {
	ClassName string `json:"className"`
	Students  int    `json:"students"`
}
