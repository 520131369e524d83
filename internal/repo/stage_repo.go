package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
)

// StageRepo — репозиторий для работы со стадиями задач.
type StageRepo struct {
	db Execer
}

// NewStageRepo создаёт новый StageRepo.
func NewStageRepo(db Execer) *StageRepo {
	return &StageRepo{db: db}
}

// Upsert записывает состояние стадии. Повторная запись той же пары
// (task_id, stage_name) обновляет существующую строку; пустое сообщение
// не затирает уже сохранённое.
func (r *StageRepo) Upsert(ctx context.Context, stage *domain.Stage) error {
	query := `
		INSERT INTO task_stages (task_id, stage_name, stage_number, stage_status, stage_sub_name, stage_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id, stage_name) DO UPDATE SET
			stage_status   = EXCLUDED.stage_status,
			stage_sub_name = EXCLUDED.stage_sub_name,
			stage_message  = COALESCE(NULLIF(EXCLUDED.stage_message, ''), task_stages.stage_message),
			updated_at     = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		stage.TaskID,
		stage.Name,
		stage.Number,
		stage.Status,
		stage.SubName,
		stage.Message,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upsert stage %s: %w", stage.Name, err)
	}
	return nil
}

// FetchStages возвращает стадии задачи в порядке конвейера.
func (r *StageRepo) FetchStages(ctx context.Context, taskID string) (map[domain.StageName]*domain.Stage, error) {
	query := `
		SELECT task_id, stage_name, stage_number, stage_status, stage_sub_name, stage_message, updated_at
		FROM task_stages
		WHERE task_id = $1
		ORDER BY stage_number ASC
	`
	stages := make(map[domain.StageName]*domain.Stage)
	err := r.db.Query(ctx, query, func(rows pgx.Rows) error {
		for rows.Next() {
			var stage domain.Stage
			var subName, message *string
			err := rows.Scan(
				&stage.TaskID,
				&stage.Name,
				&stage.Number,
				&stage.Status,
				&subName,
				&message,
				&stage.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("scan stage: %w", err)
			}
			if subName != nil {
				stage.SubName = *subName
			}
			if message != nil {
				stage.Message = *message
			}
			stages[stage.Name] = &stage
		}
		return nil
	}, taskID)
	if err != nil {
		return nil, err
	}
	return stages, nil
}

// ResetAll сбрасывает все стадии задачи в Pending. Используется при
// перезапуске задачи из терминального статуса.
func (r *StageRepo) ResetAll(ctx context.Context, taskID string) error {
	query := `
		UPDATE task_stages
		SET stage_status = $2, stage_sub_name = '', stage_message = '', updated_at = $3
		WHERE task_id = $1
	`
	_, err := r.db.Exec(ctx, query, taskID, domain.StageStatusPending, time.Now())
	if err != nil {
		return fmt.Errorf("reset stages: %w", err)
	}
	return nil
}
