package db

import (
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки уровня доступа к БД.
var (
	// ErrPoolExhausted — свободное соединение не появилось за borrow timeout.
	// Восстановимо: вызывающий может подождать и повторить.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolDisposed — пул уже закрыт.
	ErrPoolDisposed = errors.New("connection pool disposed")

	// ErrConnectionBudget — внешний лимит соединений сервера исчерпан
	// и все retry-попытки израсходованы. Возвращается вместо сырой
	// ошибки, чтобы вызывающий мог показать "system busy, try again".
	ErrConnectionBudget = errors.New("database connection budget exceeded")
)

// SQLSTATE-коды, означающие исчерпание лимита соединений сервера.
var budgetCodes = map[string]bool{
	"53300": true, // too_many_connections
	"53400": true, // configuration_limit_exceeded
}

// SQLSTATE-коды transient-ошибок соединения (потеря/сброс/недоступность).
var transientCodes = map[string]bool{
	"08000": true, // connection_exception
	"08001": true, // sqlclient_unable_to_establish_sqlconnection
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// isBudgetError сообщает, означает ли ошибка достижение внешнего
// лимита соединений.
func isBudgetError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return budgetCodes[pgErr.Code]
	}
	return false
}

// isTransientError сообщает, относится ли ошибка к классу потерянных или
// сброшенных соединений, для которых уместен короткий retry.
func isTransientError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCodes[pgErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return pgconn.SafeToRetry(err)
}
