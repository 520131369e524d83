package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Tasks
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.CreateTask)))
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("POST /api/v1/tasks/{id}/cancel", chain(http.HandlerFunc(h.CancelTask)))
	mux.Handle("POST /api/v1/tasks/{id}/restart", chain(http.HandlerFunc(h.RestartTask)))

	// Pools
	mux.Handle("GET /api/v1/pools", chain(http.HandlerFunc(h.ListPools)))
	mux.Handle("GET /api/v1/pools/{class}", chain(http.HandlerFunc(h.GetPool)))

	// Health
	mux.Handle("GET /api/v1/health", chain(http.HandlerFunc(h.Health)))
}
