package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Mdwiki-TD/svg-translate-web/internal/config"
	"github.com/Mdwiki-TD/svg-translate-web/internal/telemetry"
)

// Executor выполняет один SQL-statement на одолженном из пула соединении
// с retry по классификации ошибки (см. doc.go).
//
// Write-операции оборачиваются в транзакцию: commit при успехе, rollback
// при ошибке. Read-only операции выполняются без транзакции — commit не
// нужен, записи не было.
type Executor struct {
	pool   *Pool
	retry  config.RetryConfig
	logger *slog.Logger
}

// NewExecutor создаёт Executor поверх пула.
func NewExecutor(pool *Pool, retry config.RetryConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		pool:   pool,
		retry:  retry,
		logger: logger.With("pool", pool.Name()),
	}
}

// Pool возвращает пул, которым пользуется executor.
func (e *Executor) Pool() *Pool {
	return e.pool
}

// Exec выполняет write-statement в транзакции и возвращает число
// затронутых строк.
func (e *Executor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := e.withRetry(ctx, false, func(conn Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}

		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// Query выполняет read-only запрос и передаёт строки в scan.
// Транзакция не открывается и commit не выполняется.
func (e *Executor) Query(ctx context.Context, sql string, scan func(rows pgx.Rows) error, args ...any) error {
	return e.withRetry(ctx, true, func(conn Conn) error {
		rows, err := conn.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if err := scan(rows); err != nil {
			return err
		}
		return rows.Err()
	})
}

// ExecBatch выполняет pgx.Batch в одной транзакции (один borrow на чанк).
func (e *Executor) ExecBatch(ctx context.Context, batch *pgx.Batch) error {
	return e.withRetry(ctx, false, func(conn Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}

		br := tx.SendBatch(ctx, batch)
		if err := br.Close(); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
}

// Ping выполняет тривиальный round-trip для health-check.
func (e *Executor) Ping(ctx context.Context) error {
	return e.withRetry(ctx, true, func(conn Conn) error {
		return conn.Ping(ctx)
	})
}

// withRetry — общий цикл заимствования и retry.
//
// Гарантия: соединение возвращается в пул на каждом пути выхода.
func (e *Executor) withRetry(ctx context.Context, readonly bool, op func(Conn) error) error {
	budgetWaits := 0
	transientWaits := 0

	for {
		pc, err := e.pool.Acquire(ctx)
		if err != nil {
			return err
		}

		opErr := op(pc.Conn())
		if opErr == nil {
			pc.Release()
			return nil
		}

		switch {
		case isBudgetError(opErr):
			pc.MarkBroken()
			pc.Release()

			if budgetWaits >= e.retry.BudgetMaxRetries {
				e.logger.Error("connection budget exhausted",
					"retries", budgetWaits,
					"error", opErr,
				)
				return fmt.Errorf("%w: %v", ErrConnectionBudget, opErr)
			}
			budgetWaits++
			telemetry.DBRetries.WithLabelValues("budget").Inc()
			if err := e.sleep(ctx, backoff(e.retry.BudgetBackoff, budgetWaits)); err != nil {
				return err
			}

		case isTransientError(opErr):
			pc.MarkBroken()
			pc.Release()

			if transientWaits >= e.retry.MaxRetries {
				// Исходная ошибка возвращается как есть, без обёртки.
				return opErr
			}
			transientWaits++
			telemetry.DBRetries.WithLabelValues("transient").Inc()
			e.logger.Debug("retrying after transient db error",
				"attempt", transientWaits,
				"error", opErr,
			)
			if err := e.sleep(ctx, backoff(e.retry.TransientBackoff, transientWaits)); err != nil {
				return err
			}

		default:
			pc.Release()
			return opErr
		}
	}
}

// sleep ждёт delay с учётом отмены контекста.
func (e *Executor) sleep(ctx context.Context, delay time.Duration) error {
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff вычисляет экспоненциальную задержку с джиттером:
// base × 2^(attempt-1) + uniform(0, base/2).
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Float64() * float64(base) / 2)
	return delay + jitter
}

// IsRetryable сообщает, имеет ли смысл вызывающему повторить операцию
// позже (пул или бюджет соединений были исчерпаны).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrConnectionBudget)
}
