package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
	"github.com/Mdwiki-TD/svg-translate-web/internal/telemetry"
)

// busyMessage — сообщение для пользователя при исчерпании бюджета
// соединений БД.
const busyMessage = "System is busy, please try again later"

// Runner выполняет конвейер одной задачи от начала до конца.
//
// Runner никогда не возвращает ошибку наверх: любой исход прогона
// (успех, провал, отмена, паника стадии) записывается в статус задачи
// и её стадий. Отмена проверяется только на границах стадий —
// выполняющаяся стадия дорабатывает до конца.
type Runner struct {
	store    *repo.Store
	registry *Registry
	cancels  *CancelRegistry
	dataDir  string
	logger   *slog.Logger
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	Store    *repo.Store
	Registry *Registry
	Cancels  *CancelRegistry
	DataDir  string
	Logger   *slog.Logger
}

// NewRunner создаёт новый Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    cfg.Store,
		registry: cfg.Registry,
		cancels:  cfg.Cancels,
		dataDir:  cfg.DataDir,
		logger:   logger,
	}
}

// Run выполняет конвейер задачи и возвращает её финальный статус.
func (r *Runner) Run(ctx context.Context, task *domain.Task) domain.TaskStatus {
	logger := telemetry.WithTaskID(r.logger, task.ID)
	logger.Info("task started", "title", task.Title)

	r.cancels.Register(task.ID)
	defer r.cancels.Unregister(task.ID)

	task.MarkRunning()
	if err := r.store.Tasks.UpdateStatus(ctx, task.ID, task.Status); err != nil {
		logger.Error("failed to mark task running", "error", err)
		return r.fail(ctx, task, err, logger)
	}

	if task.Stages == nil || len(task.Stages) == 0 {
		stages, err := r.store.Stages.FetchStages(ctx, task.ID)
		if err != nil {
			logger.Error("failed to fetch stages", "error", err)
			return r.fail(ctx, task, err, logger)
		}
		task.Stages = stages
	}

	state := NewState(task, filepath.Join(r.dataDir, task.ID))

	for i, name := range domain.StageOrder {
		// Границы стадий — единственные точки отмены.
		if cancelled, reason := r.cancelRequested(ctx, task.ID); cancelled {
			logger.Info("task cancelled", "at_stage", name, "reason", reason)
			return r.cancel(ctx, task, i, logger)
		}

		stage := task.Stages[name]
		if stage == nil {
			stage = &domain.Stage{
				TaskID: task.ID,
				Name:   name,
				Number: domain.StageOrdinal(name),
				Status: domain.StageStatusPending,
			}
			task.Stages[name] = stage
		}

		if err := r.runStage(ctx, state, stage, logger); err != nil {
			return r.fail(ctx, task, err, logger)
		}
	}

	task.MarkCompleted()
	if err := r.store.Tasks.UpdateStatus(ctx, task.ID, task.Status); err != nil {
		logger.Error("failed to mark task completed", "error", err)
	}
	r.persistResults(ctx, state, logger)

	telemetry.TasksFinished.WithLabelValues(string(task.Status)).Inc()
	logger.Info("task completed", "title", task.Title)
	return task.Status
}

// runStage выполняет одну стадию с защитой от паники.
func (r *Runner) runStage(ctx context.Context, state *State, stage *domain.Stage, logger *slog.Logger) (err error) {
	stageLogger := telemetry.WithStage(logger, string(stage.Name))

	exec, err := r.registry.Get(stage.Name)
	if err != nil {
		return err
	}

	stage.MarkRunning()
	if upErr := r.store.Stages.Upsert(ctx, stage); upErr != nil {
		return fmt.Errorf("persist stage %s: %w", stage.Name, upErr)
	}
	stageLogger.Info("stage started", "message", stage.Message)

	start := time.Now()
	defer func() {
		telemetry.StageDuration.WithLabelValues(string(stage.Name)).Observe(time.Since(start).Seconds())

		// Паника стадии превращается в провал задачи, а не процесса.
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name, rec)
			stageLogger.Error("stage panicked", "panic", rec)
		}

		if err != nil {
			stage.MarkFailed(err.Error())
			if upErr := r.store.Stages.Upsert(ctx, stage); upErr != nil {
				stageLogger.Error("failed to persist failed stage", "error", upErr)
			}
		}
	}()

	if err = exec.Execute(ctx, state); err != nil {
		stageLogger.Error("stage failed", "error", err, "duration", time.Since(start))
		return err
	}

	stage.MarkCompleted(state.Messages[stage.Name])
	if upErr := r.store.Stages.Upsert(ctx, stage); upErr != nil {
		return fmt.Errorf("persist stage %s: %w", stage.Name, upErr)
	}
	stageLogger.Info("stage completed", "duration", time.Since(start))
	return nil
}

// cancelRequested проверяет запрос отмены: сначала локальный реестр
// (дешёво), затем статус в БД — отмена могла прийти из другого
// процесса, у которого нет broadcast-соединения.
func (r *Runner) cancelRequested(ctx context.Context, taskID string) (bool, string) {
	if ctx.Err() != nil {
		return true, "context cancelled"
	}
	if r.cancels.IsCancelled(taskID) {
		return true, "cancel flag"
	}

	current, err := r.store.Tasks.GetByID(ctx, taskID)
	if err != nil {
		// Недоступность БД не повод отменять задачу.
		r.logger.Warn("cancel check against db failed", "task_id", taskID, "error", err)
		return false, ""
	}
	if current.Status == domain.TaskStatusCancelled {
		return true, "db status"
	}
	return false, ""
}

// cancel помечает оставшиеся стадии и задачу как Cancelled.
func (r *Runner) cancel(ctx context.Context, task *domain.Task, fromStage int, logger *slog.Logger) domain.TaskStatus {
	for _, name := range domain.StageOrder[fromStage:] {
		stage := task.Stages[name]
		if stage == nil || stage.Status != domain.StageStatusPending {
			continue
		}
		stage.MarkCancelled()
		if err := r.store.Stages.Upsert(ctx, stage); err != nil {
			logger.Error("failed to persist cancelled stage", "stage", name, "error", err)
		}
	}

	task.MarkCancelled()
	if err := r.store.Tasks.UpdateStatus(ctx, task.ID, task.Status); err != nil {
		logger.Error("failed to mark task cancelled", "error", err)
	}

	telemetry.TasksFinished.WithLabelValues(string(task.Status)).Inc()
	return task.Status
}

// fail помечает задачу как Failed, а невыполненные стадии — как Skipped.
func (r *Runner) fail(ctx context.Context, task *domain.Task, cause error, logger *slog.Logger) domain.TaskStatus {
	for _, name := range domain.StageOrder {
		stage := task.Stages[name]
		if stage == nil || stage.Status != domain.StageStatusPending {
			continue
		}
		stage.MarkSkipped()
		if err := r.store.Stages.Upsert(ctx, stage); err != nil {
			logger.Error("failed to persist skipped stage", "stage", name, "error", err)
		}
	}

	message := cause.Error()
	if errors.Is(cause, db.ErrConnectionBudget) {
		message = busyMessage
	}

	task.MarkFailed(message)
	if err := r.store.Tasks.UpdateStatus(ctx, task.ID, task.Status); err != nil {
		logger.Error("failed to mark task failed", "error", err)
	}
	if err := r.store.Tasks.UpdateMessage(ctx, task.ID, message); err != nil {
		logger.Error("failed to persist task message", "error", err)
	}

	telemetry.TasksFinished.WithLabelValues(string(task.Status)).Inc()
	logger.Error("task failed", "error", cause)
	return task.Status
}

// persistResults сохраняет сводку артефактов прогона.
func (r *Runner) persistResults(ctx context.Context, state *State, logger *slog.Logger) {
	results := map[string]any{
		"main_file":        state.MainFile,
		"titles":           len(state.Titles),
		"files":            len(state.Files),
		"nested":           len(state.NestedFiles),
		"nested_fixed":     state.NestedFixed,
		"nested_not_fixed": state.NestedNotFixed,
		"languages":        len(state.Injected),
		"uploaded":         state.Uploaded,
		"finished_at":      time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.store.Tasks.UpdateResults(ctx, state.Task.ID, results); err != nil {
		logger.Error("failed to persist task results", "error", err)
	}
}
