package api

import (
	"context"
	"net/http"
	"time"
)

// healthTimeout — бюджет времени на проверку БД.
const healthTimeout = 2 * time.Second

// HealthResponse — ответ health check.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	ActiveTasks int    `json:"active_tasks"`
}

// Health проверяет доступность сервиса и БД.
// GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:      "ok",
		Database:    "ok",
		ActiveTasks: h.launcher.ActiveCount(),
	}

	status := http.StatusOK
	if err := h.executor.Ping(ctx); err != nil {
		h.logger.Warn("health check: database unreachable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, resp)
}
