package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repota/internal/dto"
	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/response"
)

type reportService interface {
	CreateJob(ctx context.Context, req dto.ReportRequest) (*dto.ReportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler exposes broadsheet generation endpoints.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create godoc
// @Summary Queue a class broadsheet
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.ReportRequest true "Class and format"
// @Success 202 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var req dto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.reports.CreateJob(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Broadsheet job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Status(c *gin.Context) {
	status, err := h.reports.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a generated broadsheet
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.reports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report file unreadable"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), reportContentType(download.Format), download.File, nil)
}

func reportContentType(format models.ReportFormat) string {
	switch format {
	case models.ReportFormatPDF:
		return "application/pdf"
	case models.ReportFormatCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
