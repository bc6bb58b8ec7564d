// Package http exposes a thin admin surface over the manager: task
// lookups, submission, and pause/resume, following the teacher's
// handler-struct-with-DTOs convention (see execution_handler.go) but
// trimmed to what §6's conceptual CLI/management surface actually needs.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/taskflow-engine/taskflow/internal/platform/logger"
	"github.com/taskflow-engine/taskflow/internal/taskengine/domain/model"
	"github.com/taskflow-engine/taskflow/internal/taskengine/manager"
)

// Handler wires the task manager to an HTTP mux.
type Handler struct {
	mgr *manager.Manager
	log logger.Logger
}

// New creates a task admin Handler.
func New(mgr *manager.Manager, log logger.Logger) *Handler {
	return &Handler{mgr: mgr, log: log}
}

// RegisterRoutes mounts the admin surface under router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tasks/{id}", h.getTask).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{id}/children", h.getChildren).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{id}/pause", h.pauseTask).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{id}/resume", h.resumeTask).Methods(http.MethodPost)
	router.HandleFunc("/tasks", h.listTasks).Methods(http.MethodGet)
	router.HandleFunc("/tasks/async", h.submitAsync).Methods(http.MethodPost)
	router.HandleFunc("/tasks/cron", h.submitCron).Methods(http.MethodPost)
	router.HandleFunc("/stats", h.getStats).Methods(http.MethodGet)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	task, err := h.mgr.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) getChildren(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	children, err := h.mgr.GetChildren(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, children)
}

func (h *Handler) pauseTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.mgr.Pause(r.Context(), id); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) resumeTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.mgr.Resume(r.Context(), id); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters model.Filters
	if v := q.Get("tag"); v != "" {
		filters.Tag = &v
	}
	if v := q.Get("name"); v != "" {
		filters.Name = &v
	}
	if v := q.Get("status"); v != "" {
		status := model.Status(v)
		filters.Status = &status
	}

	tasks, err := h.mgr.GetTasks(r.Context(), filters)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

// submitRequest is the body accepted by both submission endpoints.
type submitRequest struct {
	Name          string          `json:"name"`
	Payload       json.RawMessage `json:"payload"`
	CronExpr      string          `json:"cron_expr,omitempty"`
	DelaySeconds  int64           `json:"delay_seconds,omitempty"`
	Priority      *int            `json:"priority,omitempty"`
	Tag           *string         `json:"tag,omitempty"`
	MaxRetries    *int            `json:"max_retries,omitempty"`
	RetryInterval *int64          `json:"retry_interval,omitempty"`
	TimeoutSecs   *int64          `json:"timeout_seconds,omitempty"`
}

func (req submitRequest) options() manager.SubmitOptions {
	opts := manager.SubmitOptions{
		Priority:      req.Priority,
		Tag:           req.Tag,
		MaxRetries:    req.MaxRetries,
		RetryInterval: req.RetryInterval,
		TimeoutSecs:   req.TimeoutSecs,
	}
	if req.DelaySeconds > 0 {
		opts.Delay = time.Duration(req.DelaySeconds) * time.Second
	}
	return opts
}

func (h *Handler) submitAsync(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.mgr.SubmitAsync(r.Context(), req.Name, req.Payload, req.options())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) submitCron(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := h.mgr.SubmitCron(r.Context(), req.Name, req.CronExpr, req.Payload, req.options())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var tag *string
	var status *model.Status
	if v := q.Get("tag"); v != "" {
		tag = &v
	}
	if v := q.Get("status"); v != "" {
		s := model.Status(v)
		status = &s
	}

	stats, err := h.mgr.GetStatsByTag(r.Context(), tag, status)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}
