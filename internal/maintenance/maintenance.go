// Package maintenance — периодические фоновые работы: логирование
// состояния пулов соединений и закрытие зависших задач.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
	"github.com/Mdwiki-TD/svg-translate-web/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultPoolStatusEvery = time.Minute
	defaultSweepEvery      = 5 * time.Minute
	defaultStuckAfter      = time.Hour
)

// Scheduler запускает периодические работы по расписанию.
type Scheduler struct {
	cron    *cron.Cron
	store   *repo.Store
	pools   []*db.Pool
	cancels *pipeline.CancelRegistry
	logger  *slog.Logger

	poolStatusEvery time.Duration
	sweepEvery      time.Duration
	stuckAfter      time.Duration
}

// Config — конфигурация Scheduler.
type Config struct {
	Store   *repo.Store
	Pools   []*db.Pool
	Cancels *pipeline.CancelRegistry
	Logger  *slog.Logger

	// PoolStatusEvery — период логирования состояния пулов.
	PoolStatusEvery time.Duration

	// SweepEvery — период поиска зависших задач.
	SweepEvery time.Duration

	// StuckAfter — Running-задача без обновлений дольше этого срока
	// считается зависшей.
	StuckAfter time.Duration
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:            cron.New(),
		store:           cfg.Store,
		pools:           cfg.Pools,
		cancels:         cfg.Cancels,
		logger:          logger,
		poolStatusEvery: cfg.PoolStatusEvery,
		sweepEvery:      cfg.SweepEvery,
		stuckAfter:      cfg.StuckAfter,
	}
	if s.poolStatusEvery <= 0 {
		s.poolStatusEvery = defaultPoolStatusEvery
	}
	if s.sweepEvery <= 0 {
		s.sweepEvery = defaultSweepEvery
	}
	if s.stuckAfter <= 0 {
		s.stuckAfter = defaultStuckAfter
	}
	return s
}

// Start регистрирует работы и запускает планировщик.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every "+s.poolStatusEvery.String(), func() {
		s.logPoolStatus()
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc("@every "+s.sweepEvery.String(), func() {
		s.sweepStuckTasks(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started",
		"pool_status_every", s.poolStatusEvery,
		"sweep_every", s.sweepEvery,
		"stuck_after", s.stuckAfter,
	)
	return nil
}

// Stop останавливает планировщик и дожидается текущих работ.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("maintenance scheduler stopped")
}

// logPoolStatus пишет состояние каждого пула в лог и метрики.
func (s *Scheduler) logPoolStatus() {
	for _, pool := range s.pools {
		stat := pool.Stat()
		telemetry.PoolCheckedOut.WithLabelValues(stat.Name).Set(float64(stat.CheckedOut))
		s.logger.Info("pool status",
			"pool", stat.Name,
			"open", stat.Open,
			"checked_in", stat.CheckedIn,
			"checked_out", stat.CheckedOut,
			"utilization", stat.Utilization,
		)
	}
}

// sweepStuckTasks закрывает Running-задачи, которые давно не
// обновлялись и не выполняются в этом процессе. Такие задачи остаются
// после аварийного завершения процесса-исполнителя.
func (s *Scheduler) sweepStuckTasks(ctx context.Context) {
	cutoff := time.Now().Add(-s.stuckAfter)

	stale, err := s.store.Tasks.ListStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("stuck task sweep failed", "error", err)
		return
	}

	for i := range stale {
		task := &stale[i]
		if s.cancels.IsActive(task.ID) {
			continue
		}

		task.MarkFailed("task abandoned by its worker process")
		if err := s.store.Tasks.UpdateStatus(ctx, task.ID, task.Status); err != nil {
			s.logger.Error("failed to close stuck task", "task_id", task.ID, "error", err)
			continue
		}
		if err := s.store.Tasks.UpdateMessage(ctx, task.ID, task.Message); err != nil {
			s.logger.Warn("failed to persist stuck task message", "task_id", task.ID, "error", err)
		}

		s.logger.Warn("stuck task closed", "task_id", task.ID, "title", task.Title)
	}
}
