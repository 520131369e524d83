package db

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Mdwiki-TD/svg-translate-web/internal/config"
)

// fakeTx — скриптуемая транзакция для Exec-пути executor'а.
type fakeTx struct {
	mu        sync.Mutex
	execErr   error
	execTag   string
	commits   int
	rollbacks int
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errors.New("nested tx") }

func (t *fakeTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}

func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	tag := t.execTag
	if tag == "" {
		tag = "UPDATE 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

// emptyRows — pgx.Rows без строк.
type emptyRows struct{}

func (r *emptyRows) Close()                                       {}
func (r *emptyRows) Err() error                                   { return nil }
func (r *emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *emptyRows) Next() bool                                   { return false }
func (r *emptyRows) Scan(dest ...any) error                       { return errors.New("no rows") }
func (r *emptyRows) Values() ([]any, error)                       { return nil, nil }
func (r *emptyRows) RawValues() [][]byte                          { return nil }
func (r *emptyRows) Conn() *pgx.Conn                              { return nil }

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxRetries:       2,
		TransientBackoff: time.Millisecond,
		BudgetMaxRetries: 2,
		BudgetBackoff:    time.Millisecond,
	}
}

func newTestExecutor(t *testing.T, setup func(*fakeConn)) (*Executor, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{setup: setup}
	pool := NewPoolWithDialer("test", config.PoolConfig{
		Baseline:      2,
		BorrowTimeout: 30 * time.Millisecond,
	}, dialer.dial, nil)
	return NewExecutor(pool, testRetryConfig(), nil), dialer
}

func TestExecutorExecCommits(t *testing.T) {
	tx := &fakeTx{execTag: "UPDATE 3"}
	exec, _ := newTestExecutor(t, func(c *fakeConn) {
		c.beginFn = func(ctx context.Context) (pgx.Tx, error) { return tx, nil }
	})

	affected, err := exec.Exec(context.Background(), "UPDATE tasks SET status = $1", "Running")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if affected != 3 {
		t.Errorf("expected 3 affected rows, got %d", affected)
	}
	if tx.commits != 1 {
		t.Errorf("expected 1 commit, got %d", tx.commits)
	}
	if tx.rollbacks != 0 {
		t.Errorf("expected no rollback, got %d", tx.rollbacks)
	}
}

func TestExecutorExecRollbackOnError(t *testing.T) {
	wantErr := errors.New("constraint violation")
	tx := &fakeTx{execErr: wantErr}
	exec, dialer := newTestExecutor(t, func(c *fakeConn) {
		c.beginFn = func(ctx context.Context) (pgx.Tx, error) { return tx, nil }
	})

	_, err := exec.Exec(context.Background(), "INSERT INTO tasks VALUES ($1)", "x")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected original error, got %v", err)
	}
	if tx.rollbacks != 1 {
		t.Errorf("expected 1 rollback, got %d", tx.rollbacks)
	}
	// Невосстановимая ошибка — никаких повторов.
	if dialer.dialCount() != 1 {
		t.Errorf("expected single attempt, got %d dials", dialer.dialCount())
	}
	if stat := exec.Pool().Stat(); stat.CheckedOut != 0 {
		t.Errorf("connection leaked: checked out = %d", stat.CheckedOut)
	}
}

func TestExecutorBudgetErrorWrappedAfterRetries(t *testing.T) {
	budgetErr := &pgconn.PgError{Code: "53300", Message: "too many connections"}
	exec, dialer := newTestExecutor(t, func(c *fakeConn) {
		c.beginFn = func(ctx context.Context) (pgx.Tx, error) { return nil, budgetErr }
	})

	_, err := exec.Exec(context.Background(), "UPDATE tasks SET status = $1", "Running")
	if !errors.Is(err, ErrConnectionBudget) {
		t.Fatalf("expected ErrConnectionBudget, got %v", err)
	}

	// Исходная попытка плюс BudgetMaxRetries повторов; битое соединение
	// закрывается, каждый заход открывает новое.
	if dialer.dialCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", dialer.dialCount())
	}
	if stat := exec.Pool().Stat(); stat.CheckedOut != 0 {
		t.Errorf("connection leaked: checked out = %d", stat.CheckedOut)
	}
	for _, conn := range dialer.conns {
		if !conn.IsClosed() {
			t.Error("broken connection left open")
		}
	}
}

func TestExecutorTransientErrorReturnedUnwrapped(t *testing.T) {
	transientErr := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	exec, dialer := newTestExecutor(t, func(c *fakeConn) {
		c.beginFn = func(ctx context.Context) (pgx.Tx, error) { return nil, transientErr }
	})

	_, err := exec.Exec(context.Background(), "UPDATE tasks SET status = $1", "Running")

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "08006" {
		t.Fatalf("expected original pg error, got %v", err)
	}
	if errors.Is(err, ErrConnectionBudget) {
		t.Error("transient error must not be wrapped in ErrConnectionBudget")
	}
	if dialer.dialCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", dialer.dialCount())
	}
}

func TestExecutorTransientRecovery(t *testing.T) {
	tx := &fakeTx{}
	attempts := 0
	var mu sync.Mutex
	exec, _ := newTestExecutor(t, func(c *fakeConn) {
		c.beginFn = func(ctx context.Context) (pgx.Tx, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return nil, io.EOF
			}
			return tx, nil
		}
	})

	affected, err := exec.Exec(context.Background(), "UPDATE tasks SET status = $1", "Running")
	if err != nil {
		t.Fatalf("expected recovery on retry, got %v", err)
	}
	if affected != 1 {
		t.Errorf("expected 1 affected row, got %d", affected)
	}
	if tx.commits != 1 {
		t.Errorf("expected 1 commit, got %d", tx.commits)
	}
}

func TestExecutorQuerySkipsTransaction(t *testing.T) {
	exec, dialer := newTestExecutor(t, func(c *fakeConn) {
		c.queryFn = func(ctx context.Context) (pgx.Rows, error) { return &emptyRows{}, nil }
	})

	scanned := false
	err := exec.Query(context.Background(), "SELECT id FROM tasks", func(rows pgx.Rows) error {
		scanned = true
		return nil
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if !scanned {
		t.Error("scan callback not invoked")
	}
	if dialer.conns[0].beginCalls != 0 {
		t.Errorf("read-only query must not open a transaction, begin called %d times", dialer.conns[0].beginCalls)
	}
}

func TestExecutorSleepHonoursCancellation(t *testing.T) {
	budgetErr := &pgconn.PgError{Code: "53300"}
	dialer := &fakeDialer{setup: func(c *fakeConn) {
		c.beginFn = func(ctx context.Context) (pgx.Tx, error) { return nil, budgetErr }
	}}
	pool := NewPoolWithDialer("test", config.PoolConfig{
		Baseline:      2,
		BorrowTimeout: 30 * time.Millisecond,
	}, dialer.dial, nil)
	exec := NewExecutor(pool, config.RetryConfig{
		BudgetMaxRetries: 5,
		BudgetBackoff:    time.Second,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := exec.Exec(ctx, "UPDATE tasks SET status = $1", "Running")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded during backoff, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrPoolExhausted) {
		t.Error("pool exhaustion should be retryable")
	}
	if !IsRetryable(ErrConnectionBudget) {
		t.Error("budget exhaustion should be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("arbitrary error should not be retryable")
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 1; attempt <= 4; attempt++ {
		min := base << (attempt - 1)
		max := min + base/2
		got := backoff(base, attempt)
		if got < min || got > max {
			t.Errorf("attempt %d: backoff %s outside [%s, %s]", attempt, got, min, max)
		}
	}
}
