package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
	"github.com/Mdwiki-TD/svg-translate-web/internal/telemetry"
)

// Broadcaster публикует события жизненного цикла задач в шину.
// Реализуется mq.Publisher; nil означает работу в одиночном режиме.
type Broadcaster interface {
	PublishTaskSubmitted(ctx context.Context, taskID, title string) error
	PublishTaskCancelled(ctx context.Context, taskID string) error
}

// Launcher запускает задачи в фоне и управляет их жизненным циклом:
// приём, отмена, перезапуск.
type Launcher struct {
	store       *repo.Store
	runner      *Runner
	cancels     *CancelRegistry
	broadcaster Broadcaster

	logger *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// LauncherConfig — конфигурация Launcher.
type LauncherConfig struct {
	Store       *repo.Store
	Runner      *Runner
	Cancels     *CancelRegistry
	Broadcaster Broadcaster // опционально
	Logger      *slog.Logger
}

// NewLauncher создаёт новый Launcher. baseCtx ограничивает время жизни
// фоновых прогонов; его отмена останавливает задачи на границе стадии.
func NewLauncher(baseCtx context.Context, cfg LauncherConfig) *Launcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		store:       cfg.Store,
		runner:      cfg.Runner,
		cancels:     cfg.Cancels,
		broadcaster: cfg.Broadcaster,
		logger:      logger,
		baseCtx:     baseCtx,
	}
}

// SubmitRequest — параметры новой задачи.
type SubmitRequest struct {
	Title    string
	Username string
	Args     map[string]any
}

// Submit создаёт задачу и запускает её конвейер в фоне.
//
// Если по тому же нормализованному заголовку уже есть незавершённая
// задача, новая не создаётся: возвращается существующая вместе
// с ErrTaskActive.
func (l *Launcher) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}

	normalized := domain.NormalizeTitle(req.Title)
	existing, err := l.store.Tasks.FindActiveByTitle(ctx, normalized)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("check active task: %w", err)
	}
	if existing != nil {
		return existing, fmt.Errorf("%w: task %s", ErrTaskActive, existing.ID)
	}

	task := &domain.Task{
		Title:    req.Title,
		Username: req.Username,
		Args:     req.Args,
	}
	if err := l.store.CreateWithStages(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	telemetry.TasksSubmitted.Inc()

	if l.broadcaster != nil {
		if err := l.broadcaster.PublishTaskSubmitted(ctx, task.ID, task.Title); err != nil {
			// Событие информационное, прогон от него не зависит.
			l.logger.Warn("submit broadcast failed", "task_id", task.ID, "error", err)
		}
	}

	l.logger.Info("task submitted",
		"task_id", task.ID,
		"title", task.Title,
		"username", task.Username,
	)

	l.launch(task)
	return task, nil
}

// launch запускает прогон конвейера в отдельной горутине.
func (l *Launcher) launch(task *domain.Task) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.logger.Warn("launcher stopped, task left pending", "task_id", task.ID)
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()

	// Runner работает со своей копией: вызывающий может сериализовать
	// возвращённую задачу, пока прогон уже идёт.
	run := *task
	run.Stages = make(map[domain.StageName]*domain.Stage, len(task.Stages))
	for name, stage := range task.Stages {
		s := *stage
		run.Stages[name] = &s
	}

	go func() {
		defer l.wg.Done()
		l.runner.Run(l.baseCtx, &run)
	}()
}

// Cancel запрашивает отмену задачи.
//
// Для задачи в терминальном статусе возвращает ErrInvalidTaskState.
// Отмена кооперативная: флаг выставляется немедленно, но задача
// остановится только на границе следующей стадии.
func (l *Launcher) Cancel(ctx context.Context, taskID string) error {
	task, err := l.store.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidTaskState, taskID, task.Status)
	}

	local := l.cancels.RequestCancel(taskID)

	// Pending ещё не дошла до Runner — закрываем сразу.
	if task.Status == domain.TaskStatusPending && !local {
		task.MarkCancelled()
		if err := l.store.Tasks.UpdateStatus(ctx, taskID, task.Status); err != nil {
			return fmt.Errorf("cancel pending task: %w", err)
		}
		telemetry.TasksFinished.WithLabelValues(string(task.Status)).Inc()
	}

	if l.broadcaster != nil && !local {
		if err := l.broadcaster.PublishTaskCancelled(ctx, taskID); err != nil {
			// Broadcast — best effort: fallback через статус в БД
			// всё равно дойдёт до исполнителя.
			l.logger.Warn("cancel broadcast failed", "task_id", taskID, "error", err)
		}
	}

	l.logger.Info("task cancel requested", "task_id", taskID, "local", local)
	return nil
}

// Restart перезапускает задачу из терминального статуса: стадии
// сбрасываются в Pending и конвейер запускается заново.
func (l *Launcher) Restart(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := l.store.GetWithStages(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: task %s is %s", ErrInvalidTaskState, taskID, task.Status)
	}

	if err := l.store.Stages.ResetAll(ctx, taskID); err != nil {
		return nil, err
	}
	for _, stage := range task.Stages {
		stage.ResetForRestart()
		if err := l.store.Stages.Upsert(ctx, stage); err != nil {
			return nil, fmt.Errorf("reseed stage %s: %w", stage.Name, err)
		}
	}

	task.Status = domain.TaskStatusPending
	task.Message = ""
	if err := l.store.Tasks.UpdateStatus(ctx, taskID, task.Status); err != nil {
		return nil, err
	}
	if err := l.store.Tasks.UpdateMessage(ctx, taskID, ""); err != nil {
		l.logger.Warn("failed to clear task message", "task_id", taskID, "error", err)
	}

	l.logger.Info("task restarted", "task_id", taskID, "title", task.Title)
	l.launch(task)
	return task, nil
}

// HandleRemoteCancel применяет запрос отмены, пришедший по broadcast
// из другого процесса.
func (l *Launcher) HandleRemoteCancel(taskID string) {
	if l.cancels.RequestCancel(taskID) {
		l.logger.Info("remote cancel applied", "task_id", taskID)
	}
}

// ActiveCount возвращает число выполняющихся задач.
func (l *Launcher) ActiveCount() int {
	return l.cancels.ActiveCount()
}

// Shutdown перестаёт принимать новые прогоны и ждёт завершения
// текущих. Отмена baseCtx (делается вызывающим) останавливает задачи
// на границе стадии.
func (l *Launcher) Shutdown() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.logger.Info("launcher stopping, waiting for active tasks", "active", l.ActiveCount())
	l.wg.Wait()
	l.logger.Info("launcher stopped")
}
