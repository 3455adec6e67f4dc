package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/response"
)

// maxBackupBytes bounds an uploaded backup file.
const maxBackupBytes = 32 << 20

type backupService interface {
	Export(ctx context.Context, password, hint string) (*service.BackupFile, error)
	Import(ctx context.Context, raw []byte, password string) (*service.ImportSummary, error)
}

// ExportBackupRequest optionally seals the backup.
type ExportBackupRequest struct {
	Password string `json:"password"`
	Hint     string `json:"hint"`
}

// BackupHandler exposes whole-device export and import.
type BackupHandler struct {
	backups backupService
}

// NewBackupHandler constructs BackupHandler.
func NewBackupHandler(backups backupService) *BackupHandler {
	return &BackupHandler{backups: backups}
}

// Export godoc
// @Summary Download a backup of all students and settings
// @Tags Backup
// @Accept json
// @Produce application/json
// @Param payload body ExportBackupRequest false "Optional password and hint"
// @Success 200 {file} file
// @Router /backup/export [post]
func (h *BackupHandler) Export(c *gin.Context) {
	var req ExportBackupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	file, err := h.backups.Export(c.Request.Context(), req.Password, req.Hint)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/json", file.Body)
}

// Import godoc
// @Summary Restore a backup
// @Description Accepts {"file": <backup>, "password": "..."} or a multipart upload with fields file and password.
// @Tags Backup
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /backup/import [post]
func (h *BackupHandler) Import(c *gin.Context) {
	raw, password, err := readBackupUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.backups.Import(c.Request.Context(), raw, password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func readBackupUpload(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBackupBytes)
	if c.ContentType() == "multipart/form-data" {
		header, err := c.FormFile("file")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "backup file is required")
		}
		f, err := header.Open()
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "backup file unreadable")
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "backup file unreadable")
		}
		return raw, c.PostForm("password"), nil
	}

	var req models.ImportFile
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	if len(req.File) == 0 {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "backup file is required")
	}
	return req.File, req.Password, nil
}
