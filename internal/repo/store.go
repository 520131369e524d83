package repo

import (
	"context"
	"fmt"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
)

// Store объединяет репозитории задач и стадий в единый фасад.
// Композиция, а не наследование: каждый репозиторий остаётся
// самостоятельным и тестируется отдельно.
type Store struct {
	Tasks  *TaskRepo
	Stages *StageRepo
}

// NewStore создаёт Store поверх одного исполнителя запросов.
func NewStore(db Execer) *Store {
	return &Store{
		Tasks:  NewTaskRepo(db),
		Stages: NewStageRepo(db),
	}
}

// CreateWithStages создаёт задачу вместе с полным набором стадий
// в статусе Pending.
func (s *Store) CreateWithStages(ctx context.Context, task *domain.Task) error {
	if err := s.Tasks.Create(ctx, task); err != nil {
		return err
	}
	task.Stages = domain.NewStages(task.ID)
	for _, name := range domain.StageOrder {
		if err := s.Stages.Upsert(ctx, task.Stages[name]); err != nil {
			return fmt.Errorf("seed stage %s: %w", name, err)
		}
	}
	return nil
}

// GetWithStages возвращает задачу вместе со стадиями.
func (s *Store) GetWithStages(ctx context.Context, id string) (*domain.Task, error) {
	task, err := s.Tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.Stages.FetchStages(ctx, id)
	if err != nil {
		return nil, err
	}
	task.Stages = stages
	return task, nil
}
