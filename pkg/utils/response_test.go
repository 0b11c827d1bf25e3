package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		send     func(c *gin.Context)
		status   int
		success  bool
		wantCode string
	}{
		{"success", func(c *gin.Context) { SendSuccess(c, gin.H{"ok": true}) }, http.StatusOK, true, ""},
		{"accepted", func(c *gin.Context) { SendAccepted(c, gin.H{"run_id": "r1"}) }, http.StatusAccepted, true, ""},
		{"validation", func(c *gin.Context) { SendValidationError(c, "bad", "date") }, http.StatusBadRequest, false, ErrCodeValidation},
		{"not found", func(c *gin.Context) { SendNotFound(c, "gone") }, http.StatusNotFound, false, ErrCodeNotFound},
		{"internal", func(c *gin.Context) { SendInternalError(c, "boom") }, http.StatusInternalServerError, false, ErrCodeInternal},
		{"unavailable", func(c *gin.Context) { SendUnavailable(c, "later") }, http.StatusServiceUnavailable, false, ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Set("request_id", "req-9")
			tt.send(c)

			assert.Equal(t, tt.status, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.success, resp.Success)
			assert.Equal(t, "req-9", resp.RequestID)
			if tt.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestAppError(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: run missing", NewAppError(ErrCodeNotFound, "run missing").Error())
	assert.Equal(t, "VALIDATION_ERROR: bad - date", NewAppError(ErrCodeValidation, "bad", "date").Error())
}
