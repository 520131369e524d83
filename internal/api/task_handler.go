package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
)

// CreateTask создаёт задачу перевода и запускает её конвейер.
// POST /api/v1/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Title == "" {
		BadRequest(w, "title is required")
		return
	}

	task, err := h.launcher.Submit(r.Context(), pipeline.SubmitRequest{
		Title:    req.Title,
		Username: req.Username,
		Args:     req.Args,
	})
	if err != nil {
		// Дубликат активной задачи — возвращаем существующую.
		if errors.Is(err, pipeline.ErrTaskActive) && task != nil {
			Success(w, TaskFromDomain(*task))
			return
		}
		HandleError(w, h.logger, err, "task not found")
		return
	}

	Created(w, TaskFromDomain(*task))
}

// ListTasks возвращает список задач с фильтрацией.
// GET /api/v1/tasks?status=...&username=...&order_by=...&desc=...&limit=...&offset=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := repo.TaskFilter{
		Username: r.URL.Query().Get("username"),
		OrderBy:  r.URL.Query().Get("order_by"),
		Limit:    parseIntParam(r, "limit", 50),
		Offset:   parseIntParam(r, "offset", 0),
	}
	if desc := r.URL.Query().Get("desc"); desc == "true" || desc == "1" {
		filter.Desc = true
	}
	for _, status := range r.URL.Query()["status"] {
		filter.Statuses = append(filter.Statuses, domain.TaskStatus(status))
	}

	tasks, err := h.store.Tasks.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}

	List(w, result, len(result))
}

// GetTask возвращает задачу со стадиями.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, err := h.store.GetWithStages(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// CancelTask запрашивает отмену задачи.
// POST /api/v1/tasks/{id}/cancel
func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.launcher.Cancel(r.Context(), id); err != nil {
		HandleError(w, h.logger, err, "task not found")
		return
	}

	task, err := h.store.GetWithStages(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// RestartTask перезапускает задачу из терминального статуса.
// POST /api/v1/tasks/{id}/restart
func (h *Handler) RestartTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task, err := h.launcher.Restart(r.Context(), id)
	if HandleError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// parseIntParam парсит числовой query-параметр с default значением.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
