package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
	appErrors "github.com/noah-isme/repota/pkg/errors"
)

type studentServiceMock struct {
	records   map[string]models.StudentRecord
	lastInput service.StudentInput
	lastScore service.SubjectScoresInput
	addErr    error
	undoErr   error
}

func newStudentServiceMock() *studentServiceMock {
	return &studentServiceMock{records: map[string]models.StudentRecord{
		"s1": {ID: "s1", Name: "Ama", ClassName: "JHS 1"},
	}}
}

func (m *studentServiceMock) List(className string) []models.StudentRecord {
	out := []models.StudentRecord{}
	for _, r := range m.records {
		if className == "" || r.ClassName == className {
			out = append(out, r)
		}
	}
	return out
}

func (m *studentServiceMock) Get(id string) (models.StudentRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return r, nil
}

func (m *studentServiceMock) Add(ctx context.Context, input service.StudentInput) (models.StudentRecord, error) {
	m.lastInput = input
	if m.addErr != nil {
		return models.StudentRecord{}, m.addErr
	}
	return models.StudentRecord{ID: "new", Name: input.Name, ClassName: input.ClassName}, nil
}

func (m *studentServiceMock) Update(ctx context.Context, id string, input service.StudentInput) (models.StudentRecord, error) {
	m.lastInput = input
	if _, ok := m.records[id]; !ok {
		return models.StudentRecord{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return models.StudentRecord{ID: id, Name: input.Name, ClassName: input.ClassName}, nil
}

func (m *studentServiceMock) UpdateSubject(ctx context.Context, id, subjectID string, input service.SubjectScoresInput) (models.StudentRecord, error) {
	m.lastScore = input
	return m.records[id], nil
}

func (m *studentServiceMock) Delete(ctx context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	delete(m.records, id)
	return nil
}

func (m *studentServiceMock) Undo(ctx context.Context, id string) (models.StudentRecord, error) {
	if m.undoErr != nil {
		return models.StudentRecord{}, m.undoErr
	}
	return models.StudentRecord{ID: id}, nil
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, target, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStudentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := newStudentServiceMock()
	handler := NewStudentHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(t, http.MethodPost, "/students", map[string]string{"name": "Kofi", "className": "JHS 2"})

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Kofi", mock.lastInput.Name)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "new", data["id"])
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(newStudentServiceMock())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/students", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerCreateQuotaExceeded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := newStudentServiceMock()
	mock.addErr = appErrors.ErrQuotaExceeded
	handler := NewStudentHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(t, http.MethodPost, "/students", map[string]string{"name": "Kofi", "className": "JHS 2"})

	handler.Create(c)

	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "QUOTA_EXCEEDED", errBody["code"])
}

func TestStudentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(newStudentServiceMock())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/students/zz", nil)
	c.Params = gin.Params{{Key: "id", Value: "zz"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentHandlerUpdateSubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := newStudentServiceMock()
	handler := NewStudentHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(t, http.MethodPatch, "/students/s1/subjects/math", map[string]float64{"examScore": 61.5})
	c.Params = gin.Params{{Key: "id", Value: "s1"}, {Key: "subjectId", Value: "math"}}

	handler.UpdateSubject(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.lastScore.ExamScore)
	assert.Equal(t, 61.5, *mock.lastScore.ExamScore)
	assert.Nil(t, mock.lastScore.ClassScore)
}

func TestStudentHandlerDeleteAndRestore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := newStudentServiceMock()
	handler := NewStudentHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodDelete, "/students/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())

	mock.undoErr = appErrors.ErrUndoExpired
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/students/s1/restore", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Restore(c)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestStudentHandlerListFiltersByClass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := newStudentServiceMock()
	mock.records["s2"] = models.StudentRecord{ID: "s2", Name: "Kofi", ClassName: "JHS 2"}
	handler := NewStudentHandler(mock)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/students?class=JHS+2", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, float64(1), body["meta"].(map[string]interface{})["total"])
}
