package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
)

// Processor — параллельный обработчик элементов поверх пула соединений.
type Processor struct {
	pool    *db.Pool
	workers int
	logger  *slog.Logger
}

// NewProcessor создаёт Processor. Число воркеров зажимается базовой
// ёмкостью пула: больший параллелизм всё равно упёрся бы в ожидание
// соединений, а overflow-резерв должен оставаться свободным.
func NewProcessor(pool *db.Pool, workers int, logger *slog.Logger) *Processor {
	baseline := pool.Stat().Baseline
	if workers <= 0 {
		workers = 1
	}
	if workers > baseline {
		logger.Warn("batch worker count clamped to pool baseline",
			"requested", workers,
			"baseline", baseline,
			"pool", pool.Name(),
		)
		workers = baseline
	}
	return &Processor{
		pool:    pool,
		workers: workers,
		logger:  logger,
	}
}

// Workers возвращает фактическое число воркеров после зажима.
func (p *Processor) Workers() int {
	return p.workers
}

// ItemFunc обрабатывает один элемент на заимствованном соединении.
type ItemFunc[T, R any] func(ctx context.Context, conn db.Conn, item T) (R, error)

// Result — результат обработки одного элемента.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Map обрабатывает элементы параллельно. Каждый элемент получает своё
// соединение из пула на время обработки. Результаты возвращаются
// в порядке входного среза; ошибка отдельного элемента записывается
// в его Result и не прерывает остальных.
//
// Возвращает ошибку только при отмене контекста.
func Map[T, R any](ctx context.Context, p *Processor, items []T, fn ItemFunc[T, R]) ([]Result[R], error) {
	results := make([]Result[R], len(items))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = processOne(ctx, p, i, items[i], fn)
			}
		}()
	}

	var ctxErr error
feed:
	for i := range items {
		select {
		case indexes <- i:
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	if ctxErr != nil {
		return results, fmt.Errorf("batch interrupted: %w", ctxErr)
	}

	failed := 0
	for i := range results {
		if results[i].Err != nil {
			failed++
		}
	}
	if failed > 0 {
		p.logger.Warn("batch finished with failures",
			"total", len(items),
			"failed", failed,
		)
	}
	return results, nil
}

func processOne[T, R any](ctx context.Context, p *Processor, index int, item T, fn ItemFunc[T, R]) Result[R] {
	result := Result[R]{Index: index}
	err := p.pool.WithConn(ctx, func(conn db.Conn) error {
		value, err := fn(ctx, conn, item)
		if err != nil {
			return err
		}
		result.Value = value
		return nil
	})
	if err != nil {
		p.logger.Error("batch item failed", "index", index, "error", err)
		result.Err = err
	}
	return result
}
