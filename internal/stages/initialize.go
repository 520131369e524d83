package stages

import (
	"context"
	"fmt"
	"os"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
)

// InitializeStage готовит рабочую директорию прогона.
type InitializeStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *InitializeStage) Name() domain.StageName {
	return domain.StageInitialize
}

// Execute создаёт рабочую директорию и валидирует входные данные.
func (s *InitializeStage) Execute(ctx context.Context, state *pipeline.State) error {
	if state.Task.Title == "" {
		return fmt.Errorf("task title is empty")
	}

	if err := os.MkdirAll(state.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	s.deps.Logger.Debug("workflow initialized",
		"task_id", state.Task.ID,
		"work_dir", state.WorkDir,
	)
	return nil
}
