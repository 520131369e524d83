package api

import (
	"log/slog"

	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store    *repo.Store
	launcher *pipeline.Launcher
	pools    map[string]*db.Pool
	executor *db.Executor
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store    *repo.Store
	Launcher *pipeline.Launcher

	// Pools — пулы по имени класса нагрузки (interactive, background).
	Pools map[string]*db.Pool

	// Executor — исполнитель для health check БД.
	Executor *db.Executor

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		store:    cfg.Store,
		launcher: cfg.Launcher,
		pools:    cfg.Pools,
		executor: cfg.Executor,
		logger:   cfg.Logger,
	}
}
