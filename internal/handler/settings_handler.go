package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repota/internal/models"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/response"
)

type settingsService interface {
	Get() models.SchoolSettings
	Update(ctx context.Context, next models.SchoolSettings) (models.SchoolSettings, error)
}

// SettingsHandler exposes the school settings.
type SettingsHandler struct {
	settings settingsService
}

// NewSettingsHandler constructs SettingsHandler.
func NewSettingsHandler(settings settingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get godoc
// @Summary Current school settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.settings.Get(), nil)
}

// Update godoc
// @Summary Replace school settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body models.SchoolSettings true "Settings"
// @Success 200 {object} response.Envelope
// @Router /settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req models.SchoolSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	updated, err := h.settings.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}
