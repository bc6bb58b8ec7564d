package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/taskengine/adapters/repository/memory"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/manager"
	"github.com/taskflow-engine/taskflow/internal/taskengine/registry"
)

type testLogger struct{}

func (testLogger) Debug(msg string, fields ...interface{}) {}
func (testLogger) Info(msg string, fields ...interface{})  {}
func (testLogger) Warn(msg string, fields ...interface{})  {}
func (testLogger) Error(msg string, fields ...interface{}) {}
func (testLogger) Fatal(msg string, fields ...interface{}) {}
func (l testLogger) WithFields(fields map[string]interface{}) logger.Logger { return l }
func (l testLogger) WithContext(ctx context.Context) logger.Logger          { return l }

func newTestHandler(t *testing.T) (*Handler, *manager.Manager) {
	t.Helper()
	store := memory.New()
	mgr := manager.New(store, testLogger{}, nil, manager.Config{WorkerID: "worker-1"})
	require.NoError(t, mgr.Use("job", func(ctx context.Context, task *model.Task, spawn registry.SpawnFunc) (interface{}, error) {
		return nil, nil
	}, manager.HandlerOptions{}))
	return New(mgr, testLogger{}), mgr
}

func router(h *Handler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestSubmitAsyncThenGetTask(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	body, _ := json.Marshal(map[string]interface{}{"name": "job", "payload": map[string]int{"x": 1}})
	req := httptest.NewRequest(http.MethodPost, "/tasks/async", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"]
	assert.NotZero(t, id)

	getReq := httptest.NewRequest(http.MethodGet, "/tasks/"+itoa(id), nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var task model.Task
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &task))
	assert.Equal(t, "job", task.Name)
}

func TestGetTaskNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodGet, "/tasks/999", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTaskBadID(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	req := httptest.NewRequest(http.MethodGet, "/tasks/not-a-number", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCronAndPauseResume(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	body, _ := json.Marshal(map[string]interface{}{"name": "job", "cron_expr": "0 0 * * *"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/cron", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"]

	pauseReq := httptest.NewRequest(http.MethodPost, "/tasks/"+itoa(id)+"/pause", nil)
	pauseRec := httptest.NewRecorder()
	r.ServeHTTP(pauseRec, pauseReq)
	assert.Equal(t, http.StatusNoContent, pauseRec.Code)

	resumeReq := httptest.NewRequest(http.MethodPost, "/tasks/"+itoa(id)+"/resume", nil)
	resumeRec := httptest.NewRecorder()
	r.ServeHTTP(resumeRec, resumeReq)
	assert.Equal(t, http.StatusNoContent, resumeRec.Code)
}

func TestSubmitCronRejectsInvalidExpr(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	body, _ := json.Marshal(map[string]interface{}{"name": "job", "cron_expr": "garbage"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/cron", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksFiltersByName(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	body, _ := json.Marshal(map[string]interface{}{"name": "job"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/async", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/tasks?name=job", nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var tasks []*model.Task
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 1)
}

func TestGetStats(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	body, _ := json.Marshal(map[string]interface{}{"name": "job"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/async", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	statsReq := httptest.NewRequest(http.MethodGet, "/stats", nil)
	statsRec := httptest.NewRecorder()
	r.ServeHTTP(statsRec, statsReq)
	assert.Equal(t, http.StatusOK, statsRec.Code)
}

func TestGetChildren(t *testing.T) {
	h, _ := newTestHandler(t)
	r := router(h)

	body, _ := json.Marshal(map[string]interface{}{"name": "job"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/async", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	childReq := httptest.NewRequest(http.MethodGet, "/tasks/"+itoa(created["id"])+"/children", nil)
	childRec := httptest.NewRecorder()
	r.ServeHTTP(childRec, childReq)
	require.Equal(t, http.StatusOK, childRec.Code)

	var children []*model.Task
	require.NoError(t, json.Unmarshal(childRec.Body.Bytes(), &children))
	assert.Empty(t, children)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
