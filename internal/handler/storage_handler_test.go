package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/pkg/storage"
)

type flusherStub struct {
	err   error
	calls int
}

func (f *flusherStub) Flush(context.Context) error {
	f.calls++
	return f.err
}

type statusStub struct{}

func (statusStub) Status() models.StorageStatus { return models.StorageStatus{} }

func runFlush(t *testing.T, flushers ...saveFlusher) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewStorageHandler(statusStub{}, nil, flushers...)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodPost, "/storage/flush", nil)
	require.NoError(t, err)
	c.Request = req

	handler.Flush(c)
	return w
}

func TestStorageHandlerFlushQuotaFailure(t *testing.T) {
	first := &flusherStub{err: fmt.Errorf("write students: %w", storage.ErrQuotaExceeded)}
	second := &flusherStub{}

	w := runFlush(t, first, second)

	require.Equal(t, http.StatusInsufficientStorage, w.Code)
	body := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "QUOTA_EXCEEDED", body["code"])
	assert.Zero(t, second.calls)
}

func TestStorageHandlerFlushOtherFailure(t *testing.T) {
	w := runFlush(t, &flusherStub{err: errors.New("disk gone")})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, "failed to save changes", body["message"])
}

func TestStorageHandlerFlushSuccess(t *testing.T) {
	a, b := &flusherStub{}, &flusherStub{}

	w := runFlush(t, a, b)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}
