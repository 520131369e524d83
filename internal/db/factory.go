package db

import (
	"log/slog"
	"sync"

	"github.com/Mdwiki-TD/svg-translate-web/internal/config"
)

// Процессные singleton-пулы по классу нагрузки.
//
// Double-checked locking: без блокировки два одновременно стартующих
// потока могли бы оба увидеть nil и создать по пулу, удвоив число
// соединений к серверу.
var (
	interactivePool *Pool
	interactiveMu   sync.Mutex

	backgroundPool *Pool
	backgroundMu   sync.Mutex
)

// Interactive возвращает (или создаёт) пул для HTTP-обработчиков.
func Interactive(cfg config.Settings, logger *slog.Logger) *Pool {
	if p := loadPool(&interactiveMu, &interactivePool); p != nil {
		return p
	}

	interactiveMu.Lock()
	defer interactiveMu.Unlock()
	if interactivePool == nil {
		interactivePool = NewPool("interactive", cfg.Interactive, cfg.Database, logger)
		logger.Info("interactive pool created",
			"baseline", cfg.Interactive.Baseline,
			"overflow", cfg.Interactive.Overflow,
		)
	}
	return interactivePool
}

// Background возвращает (или создаёт) пул для фоновых batch-воркеров.
func Background(cfg config.Settings, logger *slog.Logger) *Pool {
	if p := loadPool(&backgroundMu, &backgroundPool); p != nil {
		return p
	}

	backgroundMu.Lock()
	defer backgroundMu.Unlock()
	if backgroundPool == nil {
		backgroundPool = NewPool("background", cfg.Background, cfg.Database, logger)
		logger.Info("background pool created",
			"baseline", cfg.Background.Baseline,
			"overflow", cfg.Background.Overflow,
		)
	}
	return backgroundPool
}

func loadPool(mu *sync.Mutex, p **Pool) *Pool {
	mu.Lock()
	defer mu.Unlock()
	return *p
}

// DisposeAll закрывает оба пула. Вызывается при завершении процесса.
func DisposeAll() {
	interactiveMu.Lock()
	if interactivePool != nil {
		interactivePool.Dispose()
		interactivePool = nil
	}
	interactiveMu.Unlock()

	backgroundMu.Lock()
	if backgroundPool != nil {
		backgroundPool.Dispose()
		backgroundPool = nil
	}
	backgroundMu.Unlock()
}
