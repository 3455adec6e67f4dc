package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
	appErrors "github.com/noah-isme/repota/pkg/errors"
	"github.com/noah-isme/repota/pkg/response"
)

type studentService interface {
	List(className string) []models.StudentRecord
	Get(id string) (models.StudentRecord, error)
	Add(ctx context.Context, input service.StudentInput) (models.StudentRecord, error)
	Update(ctx context.Context, id string, input service.StudentInput) (models.StudentRecord, error)
	UpdateSubject(ctx context.Context, id, subjectID string, input service.SubjectScoresInput) (models.StudentRecord, error)
	Delete(ctx context.Context, id string) error
	Undo(ctx context.Context, id string) (models.StudentRecord, error)
}

// StudentHandler exposes roster endpoints.
type StudentHandler struct {
	students studentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param class query string false "Filter by class name"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	students := h.students.List(strings.TrimSpace(c.Query("class")))
	response.JSON(c, http.StatusOK, students, map[string]interface{}{"total": len(students)})
}

// Get godoc
// @Summary Get student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Add student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.StudentInput true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.StudentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Add(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.StudentInput true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.StudentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// UpdateSubject godoc
// @Summary Update one subject's scores
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param subjectId path string true "Subject ID"
// @Param payload body service.SubjectScoresInput true "Scores"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/subjects/{subjectId} [patch]
func (h *StudentHandler) UpdateSubject(c *gin.Context) {
	var req service.SubjectScoresInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.UpdateSubject(c.Request.Context(), c.Param("id"), c.Param("subjectId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student
// @Description The student can be restored until the undo window passes.
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Restore godoc
// @Summary Undo a recent delete
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/restore [post]
func (h *StudentHandler) Restore(c *gin.Context) {
	student, err := h.students.Undo(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
