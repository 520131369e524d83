package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Mdwiki-TD/svg-translate-web/internal/config"
	"github.com/Mdwiki-TD/svg-translate-web/internal/telemetry"
)

// validateTimeout — таймаут ping-проверки соединения перед выдачей.
const validateTimeout = 2 * time.Second

// Conn — минимальный интерфейс физического соединения, который нужен
// пулу и executor'у. *pgx.Conn реализует его; тесты подставляют фейк.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

// DialFunc открывает новое физическое соединение.
type DialFunc func(ctx context.Context) (Conn, error)

// pgxDialer возвращает DialFunc поверх pgx.Connect.
func pgxDialer(url string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		return pgx.Connect(ctx, url)
	}
}

// Pool — ограниченный пул переиспользуемых соединений к одной БД.
//
// Инварианты:
//   - одновременно открыто не больше Baseline+Overflow соединений;
//   - соединение возвращается в пул на каждом пути выхода заимствования;
//   - повторный Release одного PoolConn — no-op.
//
// Соединения сверх Baseline (overflow) закрываются при возврате,
// а не остаются в idle-наборе.
type Pool struct {
	name   string
	cfg    config.PoolConfig
	dial   DialFunc
	logger *slog.Logger

	// slots ограничивает число одновременно открытых соединений:
	// один токен — одно физическое соединение (открытое или выдаваемое).
	slots chan struct{}

	// idle — свободные соединения, готовые к повторной выдаче.
	idle chan *pooledConn

	mu         sync.Mutex
	open       int
	checkedOut int
	disposed   bool
}

// pooledConn — физическое соединение с учётом возраста.
type pooledConn struct {
	conn      Conn
	createdAt time.Time
}

// PoolConn — заимствованное соединение. Возвращается в пул методом
// Release; MarkBroken помечает его негодным для переиспользования.
type PoolConn struct {
	pool *Pool
	pc   *pooledConn

	mu       sync.Mutex
	released bool
	broken   bool
}

// PoolStat — снимок состояния пула для health/metrics endpoints.
type PoolStat struct {
	Name        string  `json:"name"`
	Baseline    int     `json:"size"`
	Overflow    int     `json:"overflow"`
	Open        int     `json:"open"`
	CheckedIn   int     `json:"checked_in"`
	CheckedOut  int     `json:"checked_out"`
	Utilization float64 `json:"utilization"`
}

// NewPool создаёт пул с заданной конфигурацией.
//
// Соединения открываются лениво: конструктор не ходит в БД.
func NewPool(name string, cfg config.PoolConfig, database config.DBConfig, logger *slog.Logger) *Pool {
	return NewPoolWithDialer(name, cfg, pgxDialer(database.URL()), logger)
}

// NewPoolWithDialer создаёт пул с нестандартным способом открытия
// соединений. Тесты подставляют сюда фейковый dialer.
func NewPoolWithDialer(name string, cfg config.PoolConfig, dial DialFunc, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.Capacity()
	if capacity < 1 {
		capacity = 1
	}

	p := &Pool{
		name:   name,
		cfg:    cfg,
		dial:   dial,
		logger: logger.With("pool", name),
		slots:  make(chan struct{}, capacity),
		idle:   make(chan *pooledConn, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// Acquire выдаёт соединение из пула.
//
// Соединение берётся из idle-набора или открывается новое, пока открыто
// меньше Baseline+Overflow. При отсутствии свободного слота Acquire
// блокируется до BorrowTimeout, после чего возвращает ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*PoolConn, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, ErrPoolDisposed
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.BorrowTimeout)
	defer timer.Stop()

	select {
	case <-p.slots:
	case <-timer.C:
		return nil, fmt.Errorf("%w: pool %q, waited %s", ErrPoolExhausted, p.name, p.cfg.BorrowTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Слот получен: либо переиспользуем idle-соединение, либо открываем новое.
	for {
		select {
		case pc := <-p.idle:
			if p.shouldRecycle(pc) {
				p.closeConn(pc)
				continue
			}
			if p.cfg.ValidateOnBorrow && !p.validate(ctx, pc) {
				// Мёртвое соединение не выдаётся: закрываем и пробуем дальше,
				// замена откроется прозрачно для вызывающего.
				p.closeConn(pc)
				continue
			}
			p.markCheckedOut(1)
			return &PoolConn{pool: p, pc: pc}, nil
		default:
			return p.dialNew(ctx)
		}
	}
}

// dialNew открывает новое физическое соединение под уже занятый слот.
func (p *Pool) dialNew(ctx context.Context) (*PoolConn, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		p.slots <- struct{}{}
		return nil, ErrPoolDisposed
	}
	p.mu.Unlock()

	conn, err := p.dial(ctx)
	if err != nil {
		p.slots <- struct{}{}
		return nil, fmt.Errorf("open connection: %w", err)
	}

	p.mu.Lock()
	p.open++
	p.checkedOut++
	p.mu.Unlock()
	telemetry.PoolCheckedOut.WithLabelValues(p.name).Inc()

	return &PoolConn{pool: p, pc: &pooledConn{conn: conn, createdAt: time.Now()}}, nil
}

// Conn возвращает нижележащее соединение.
func (c *PoolConn) Conn() Conn {
	return c.pc.conn
}

// MarkBroken помечает соединение негодным: при Release оно будет
// закрыто вместо возврата в idle-набор.
func (c *PoolConn) MarkBroken() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

// Release возвращает соединение в пул. Повторный вызов — no-op.
func (c *PoolConn) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		c.pool.logger.Warn("double release of pooled connection")
		return
	}
	c.released = true
	broken := c.broken
	c.mu.Unlock()

	c.pool.release(c.pc, broken)
}

func (p *Pool) release(pc *pooledConn, broken bool) {
	p.markCheckedOut(-1)

	p.mu.Lock()
	disposed := p.disposed
	overBaseline := p.open > p.cfg.Baseline
	p.mu.Unlock()

	switch {
	case disposed, broken, pc.conn.IsClosed(), p.shouldRecycle(pc):
		p.closeConn(pc)
		p.slots <- struct{}{}
	case overBaseline:
		// Overflow-соединение: закрываем вместо простоя в idle.
		p.closeConn(pc)
		p.slots <- struct{}{}
	default:
		p.idle <- pc
		p.slots <- struct{}{}
	}
}

// WithConn выполняет fn на одолженном соединении и гарантированно
// возвращает его в пул.
func (p *Pool) WithConn(ctx context.Context, fn func(Conn) error) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pc.Release()

	if err := fn(pc.Conn()); err != nil {
		if isTransientError(err) || isBudgetError(err) {
			pc.MarkBroken()
		}
		return err
	}
	return nil
}

// Dispose закрывает все соединения пула. Идемпотентен; безопасен до
// первого открытия соединения.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.mu.Unlock()

	for {
		select {
		case pc := <-p.idle:
			p.closeConn(pc)
		default:
			p.logger.Info("pool disposed")
			return
		}
	}
}

// Stat возвращает снимок состояния пула.
func (p *Pool) Stat() PoolStat {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := p.cfg.Capacity()
	util := 0.0
	if capacity > 0 {
		util = float64(p.checkedOut) / float64(capacity)
	}
	return PoolStat{
		Name:        p.name,
		Baseline:    p.cfg.Baseline,
		Overflow:    p.cfg.Overflow,
		Open:        p.open,
		CheckedIn:   p.open - p.checkedOut,
		CheckedOut:  p.checkedOut,
		Utilization: util,
	}
}

// Name возвращает имя пула (класс нагрузки).
func (p *Pool) Name() string {
	return p.name
}

// shouldRecycle сообщает, превысило ли соединение разрешённый возраст.
func (p *Pool) shouldRecycle(pc *pooledConn) bool {
	return p.cfg.RecycleAge > 0 && time.Since(pc.createdAt) > p.cfg.RecycleAge
}

// validate выполняет ping-проверку соединения.
func (p *Pool) validate(ctx context.Context, pc *pooledConn) bool {
	pingCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := pc.conn.Ping(pingCtx); err != nil {
		p.logger.Debug("connection failed validation", "error", err)
		return false
	}
	return true
}

func (p *Pool) closeConn(pc *pooledConn) {
	closeCtx, cancel := context.WithTimeout(context.Background(), validateTimeout)
	defer cancel()
	_ = pc.conn.Close(closeCtx)

	p.mu.Lock()
	p.open--
	p.mu.Unlock()
}

func (p *Pool) markCheckedOut(delta int) {
	p.mu.Lock()
	p.checkedOut += delta
	p.mu.Unlock()
	telemetry.PoolCheckedOut.WithLabelValues(p.name).Add(float64(delta))
}
