package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Mdwiki-TD/svg-translate-web/internal/config"
	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
)

// noopConn — соединение-заглушка для пула.
type noopConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *noopConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (c *noopConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *noopConn) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func (c *noopConn) Ping(ctx context.Context) error { return nil }

func (c *noopConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *noopConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testPool(baseline int) *db.Pool {
	return db.NewPoolWithDialer("batch", config.PoolConfig{
		Baseline:      baseline,
		BorrowTimeout: time.Second,
	}, func(ctx context.Context) (db.Conn, error) {
		return &noopConn{}, nil
	}, nil)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewProcessorClampsWorkers(t *testing.T) {
	p := NewProcessor(testPool(3), 10, discardLogger())
	if p.Workers() != 3 {
		t.Errorf("workers = %d, want 3 (pool baseline)", p.Workers())
	}

	p = NewProcessor(testPool(3), 2, discardLogger())
	if p.Workers() != 2 {
		t.Errorf("workers = %d, want 2", p.Workers())
	}

	p = NewProcessor(testPool(3), 0, discardLogger())
	if p.Workers() != 1 {
		t.Errorf("workers = %d, want 1", p.Workers())
	}
}

func TestMapPreservesOrder(t *testing.T) {
	p := NewProcessor(testPool(4), 4, discardLogger())

	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	results, err := Map(context.Background(), p, items,
		func(ctx context.Context, conn db.Conn, item int) (int, error) {
			return item * 10, nil
		})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.Index != i || r.Value != i*10 || r.Err != nil {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestMapItemErrorDoesNotAbortBatch(t *testing.T) {
	p := NewProcessor(testPool(2), 2, discardLogger())

	items := []string{"a", "bad", "c"}
	wantErr := errors.New("download failed")

	results, err := Map(context.Background(), p, items,
		func(ctx context.Context, conn db.Conn, item string) (string, error) {
			if item == "bad" {
				return "", wantErr
			}
			return item + "!", nil
		})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}

	if results[0].Value != "a!" || results[2].Value != "c!" {
		t.Errorf("good items should succeed: %+v", results)
	}
	if !errors.Is(results[1].Err, wantErr) {
		t.Errorf("expected item error, got %v", results[1].Err)
	}
}

func TestMapConcurrencyBoundedByWorkers(t *testing.T) {
	p := NewProcessor(testPool(2), 2, discardLogger())

	var inFlight, peak atomic.Int32
	items := make([]int, 10)

	_, err := Map(context.Background(), p, items,
		func(ctx context.Context, conn db.Conn, item int) (int, error) {
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return 0, nil
		})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency %d exceeds worker count", got)
	}
}

func TestMapSharedPoolBoundsBorrowedConnections(t *testing.T) {
	pool := testPool(4)
	first := NewProcessor(pool, 4, discardLogger())
	second := NewProcessor(pool, 4, discardLogger())

	var peak atomic.Int32
	sample := func(ctx context.Context, conn db.Conn, item int) (int, error) {
		n := int32(pool.Stat().CheckedOut)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}

	items := make([]int, 12)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []*Processor{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = Map(context.Background(), p, items, sample)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("batch %d failed: %v", i, err)
		}
	}
	if got := peak.Load(); got > 4 {
		t.Errorf("peak borrowed connections %d exceeds pool capacity 4", got)
	}
}

func TestMapContextCancellation(t *testing.T) {
	p := NewProcessor(testPool(1), 1, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	items := make([]int, 100)

	processed := atomic.Int32{}
	_, err := Map(ctx, p, items,
		func(ctx context.Context, conn db.Conn, item int) (int, error) {
			if processed.Add(1) == 3 {
				cancel()
			}
			return 0, nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := processed.Load(); n >= 100 {
		t.Errorf("cancellation should stop feeding items, processed %d", n)
	}
}

func TestMapEmptyInput(t *testing.T) {
	p := NewProcessor(testPool(2), 2, discardLogger())

	results, err := Map(context.Background(), p, nil,
		func(ctx context.Context, conn db.Conn, item int) (int, error) {
			return 0, fmt.Errorf("should not run")
		})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
