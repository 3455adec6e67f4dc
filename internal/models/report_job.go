package models

import "time"

// ReportFormat enumerates broadsheet export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob tracks one broadsheet generation.
type ReportJob struct {
	ID           string       `json:"id"`
	ClassName    string       `json:"className"`
	Format       ReportFormat `json:"format"`
	Status       ReportStatus `json:"status"`
	Progress     int          `json:"progress"`
	ResultFile   string       `json:"-"`
	ResultURL    *string      `json:"resultUrl,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	FinishedAt   *time.Time   `json:"finishedAt,omitempty"`
	ErrorMessage *string      `json:"error,omitempty"`
}
