package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
)

// Execer — подмножество db.Executor, которым пользуются репозитории.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, scan func(rows pgx.Rows) error, args ...any) error
}

// TaskRepo — репозиторий для работы с tasks.
type TaskRepo struct {
	db Execer
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(db Execer) *TaskRepo {
	return &TaskRepo{db: db}
}

const taskColumns = `id, username, title, normalized_title, main_file, status, message,
	       args, results, created_at, updated_at`

// Create создаёт новую задачу. ID, нормализованный заголовок и статус
// Pending проставляются здесь.
func (r *TaskRepo) Create(ctx context.Context, task *domain.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.NormalizedTitle == "" {
		task.NormalizedTitle = domain.NormalizeTitle(task.Title)
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusPending
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	argsJSON, err := json.Marshal(task.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}

	query := `
		INSERT INTO tasks (id, username, title, normalized_title, status, message, args, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		task.ID,
		nullString(task.Username),
		task.Title,
		task.NormalizedTitle,
		task.Status,
		nullString(task.Message),
		argsJSON,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetByID возвращает задачу по ID (без стадий).
func (r *TaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	var task *domain.Task
	err := r.db.Query(ctx, query, func(rows pgx.Rows) error {
		if !rows.Next() {
			return ErrNotFound
		}
		t, err := scanTask(rows)
		if err != nil {
			return err
		}
		task = t
		return nil
	}, id)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// FindActiveByTitle возвращает незавершённую задачу с данным
// нормализованным заголовком, если такая есть.
func (r *TaskRepo) FindActiveByTitle(ctx context.Context, normalized string) (*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE normalized_title = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	var task *domain.Task
	err := r.db.Query(ctx, query, func(rows pgx.Rows) error {
		if !rows.Next() {
			return ErrNotFound
		}
		t, err := scanTask(rows)
		if err != nil {
			return err
		}
		task = t
		return nil
	}, normalized, domain.TaskStatusPending, domain.TaskStatusRunning)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateStatus обновляет статус задачи.
func (r *TaskRepo) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	return r.updateColumn(ctx, id, "status", string(status))
}

// UpdateMessage обновляет текст сообщения задачи.
func (r *TaskRepo) UpdateMessage(ctx context.Context, id string, msg string) error {
	return r.updateColumn(ctx, id, "message", msg)
}

// SetMainFile записывает главный SVG-файл, определённый на стадии titles.
func (r *TaskRepo) SetMainFile(ctx context.Context, id string, mainFile string) error {
	return r.updateColumn(ctx, id, "main_file", mainFile)
}

// allowedTaskColumns — allow-list обновляемых колонок.
var allowedTaskColumns = map[string]bool{
	"status":    true,
	"message":   true,
	"main_file": true,
}

func (r *TaskRepo) updateColumn(ctx context.Context, id, column string, value any) error {
	if !allowedTaskColumns[column] {
		return fmt.Errorf("illegal task column %q", column)
	}

	query := fmt.Sprintf(`UPDATE tasks SET %s = $2, updated_at = $3 WHERE id = $1`, column)
	affected, err := r.db.Exec(ctx, query, id, value, time.Now())
	if err != nil {
		return fmt.Errorf("update task %s: %w", column, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateResults сохраняет структурированную сводку результатов.
func (r *TaskRepo) UpdateResults(ctx context.Context, id string, results map[string]any) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	query := `UPDATE tasks SET results = $2, updated_at = $3 WHERE id = $1`
	affected, err := r.db.Exec(ctx, query, id, resultsJSON, time.Now())
	if err != nil {
		return fmt.Errorf("update task results: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskFilter — параметры фильтрации списка задач.
type TaskFilter struct {
	Statuses []domain.TaskStatus
	Username string
	OrderBy  string // created_at (default), updated_at, title, status
	Desc     bool
	Limit    int
	Offset   int
}

// allowedOrderColumns — allow-list колонок сортировки.
var allowedOrderColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"title":      true,
	"status":     true,
}

// List возвращает задачи с фильтрацией, сортировкой и пагинацией.
func (r *TaskRepo) List(ctx context.Context, filter TaskFilter) ([]domain.Task, error) {
	orderColumn := filter.OrderBy
	if !allowedOrderColumns[orderColumn] {
		orderColumn = "created_at"
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}

	query := fmt.Sprintf(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1))
		  AND ($2::text IS NULL OR username = $2)
		ORDER BY %s %s
		LIMIT $3 OFFSET $4
	`, orderColumn, direction)

	var tasks []domain.Task
	err := r.db.Query(ctx, query, func(rows pgx.Rows) error {
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, *t)
		}
		return nil
	}, statuses, nullString(filter.Username), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListStale возвращает задачи в статусе Running, не обновлявшиеся
// дольше cutoff. Используется sweeper'ом для поиска зависших задач.
func (r *TaskRepo) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`
	var tasks []domain.Task
	err := r.db.Query(ctx, query, func(rows pgx.Rows) error {
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, *t)
		}
		return nil
	}, domain.TaskStatusRunning, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale tasks: %w", err)
	}
	return tasks, nil
}

// --- Helpers ---

// scanTask сканирует одну строку в Task.
func scanTask(rows pgx.Rows) (*domain.Task, error) {
	var task domain.Task
	var username, mainFile, message *string
	var argsJSON, resultsJSON []byte

	err := rows.Scan(
		&task.ID,
		&username,
		&task.Title,
		&task.NormalizedTitle,
		&mainFile,
		&task.Status,
		&message,
		&argsJSON,
		&resultsJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if username != nil {
		task.Username = *username
	}
	if mainFile != nil {
		task.MainFile = *mainFile
	}
	if message != nil {
		task.Message = *message
	}
	if argsJSON != nil {
		if err := json.Unmarshal(argsJSON, &task.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
	}
	if resultsJSON != nil {
		if err := json.Unmarshal(resultsJSON, &task.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}

	return &task, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
