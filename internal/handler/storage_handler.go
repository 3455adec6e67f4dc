package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/response"
)

type migrationRunner interface {
	Migrate(ctx context.Context) models.MigrationResult
}

type saveFlusher interface {
	Flush(ctx context.Context) error
}

// StorageHandler reports storage health and drives manual saves.
type StorageHandler struct {
	status   storageStatusSource
	migrator migrationRunner
	flushers []saveFlusher
}

// NewStorageHandler constructs StorageHandler.
func NewStorageHandler(status storageStatusSource, migrator migrationRunner, flushers ...saveFlusher) *StorageHandler {
	return &StorageHandler{status: status, migrator: migrator, flushers: flushers}
}

// Status godoc
// @Summary Storage backend, boot report and save state
// @Tags Storage
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /storage [get]
func (h *StorageHandler) Status(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.status.Status(), nil)
}

// Migrate godoc
// @Summary Copy legacy data into the database
// @Tags Storage
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /storage/migrate [post]
func (h *StorageHandler) Migrate(c *gin.Context) {
	if h.migrator == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrStorageUnavailable, "migration not configured"))
		return
	}
	result := h.migrator.Migrate(c.Request.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	response.JSON(c, status, result, nil)
}

// Flush godoc
// @Summary Write pending changes now
// @Tags Storage
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /storage/flush [post]
func (h *StorageHandler) Flush(c *gin.Context) {
	for _, f := range h.flushers {
		if err := f.Flush(c.Request.Context()); err != nil {
			response.Error(c, service.StorageError(err, "failed to save changes"))
			return
		}
	}
	response.JSON(c, http.StatusOK, h.status.Status(), nil)
}
