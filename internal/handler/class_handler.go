package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/response"
)

type gradebookService interface {
	Classes() []models.ClassSummary
	ClassView(className string) (models.ClassView, error)
}

// ClassHandler exposes ranked class reports and the grading tables.
type ClassHandler struct {
	gradebook gradebookService
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(gradebook gradebookService) *ClassHandler {
	return &ClassHandler{gradebook: gradebook}
}

// List godoc
// @Summary List classes on the roster
// @Tags Classes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	classes := h.gradebook.Classes()
	response.JSON(c, http.StatusOK, classes, map[string]interface{}{"total": len(classes)})
}

// View godoc
// @Summary Ranked class report
// @Tags Classes
// @Produce json
// @Param name path string true "Class name"
// @Success 200 {object} response.Envelope
// @Router /classes/{name} [get]
func (h *ClassHandler) View(c *gin.Context) {
	view, err := h.gradebook.ClassView(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Bands godoc
// @Summary Grade bands for a school level
// @Tags Grading
// @Produce json
// @Param level path string true "KG, PRIMARY, JHS or SHS"
// @Success 200 {object} response.Envelope
// @Router /grading/bands/{level} [get]
func (h *ClassHandler) Bands(c *gin.Context) {
	level := models.ParseSchoolLevel(c.Param("level"))
	bands := service.GradeBands(level)
	if bands == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown school level"))
		return
	}
	response.JSON(c, http.StatusOK, bands, nil)
}

// Grade godoc
// @Summary Grade a subject total
// @Tags Grading
// @Produce json
// @Param level path string true "School level"
// @Param total query number true "Subject total"
// @Success 200 {object} response.Envelope
// @Router /grading/bands/{level}/grade [get]
func (h *ClassHandler) Grade(c *gin.Context) {
	total, err := strconv.ParseFloat(c.Query("total"), 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "total must be a number"))
		return
	}
	result := service.GradeFor(total, models.ParseSchoolLevel(c.Param("level")))
	response.JSON(c, http.StatusOK, result, nil)
}
