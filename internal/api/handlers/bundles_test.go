package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/bundler/internal/core"
)

type admitAllPipeline struct{}

func (admitAllPipeline) Preflight(ctx context.Context, userID int64) error { return nil }

func (admitAllPipeline) Run(job *core.Job) {}

func newBundleRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewBundleHandler(core.NewAdmissionController(2, admitAllPipeline{}))
	router := gin.New()
	router.POST("/api/bundles", h.Submit)
	return router
}

func postBundle(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/bundles", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitRejectsInvalidUserID(t *testing.T) {
	router := newBundleRouter()

	tests := map[string]struct {
		body string
	}{
		"missing user_id":  {body: `{"name":"bundle"}`},
		"zero user_id":     {body: `{"user_id":0,"name":"bundle"}`},
		"negative user_id": {body: `{"user_id":-5,"name":"bundle"}`},
		"missing name":     {body: `{"user_id":1}`},
		"not json":         {body: `user_id=1`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			w := postBundle(router, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSubmitAcceptsValidRequest(t *testing.T) {
	router := newBundleRouter()

	w := postBundle(router, `{"user_id":1,"name":"holiday"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp SubmitBundleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, string(core.JobStateRunning), resp.State)
}
