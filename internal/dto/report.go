package dto

import "github.com/noah-isme/repota/internal/models"

// ReportRequest captures the POST /reports payload.
type ReportRequest struct {
	ClassName string              `json:"className" validate:"required,max=60"`
	Format    models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	ClassName string              `json:"className"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
