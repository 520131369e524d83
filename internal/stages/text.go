package stages

import (
	"context"
	"fmt"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
)

// TextStage получает викитекст страницы задачи.
type TextStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *TextStage) Name() domain.StageName {
	return domain.StageText
}

// Execute запрашивает викитекст страницы с шаблонами группы.
// Заголовки SVG-файлов из него извлекает следующая стадия.
func (s *TextStage) Execute(ctx context.Context, state *pipeline.State) error {
	title := state.Task.Title

	text, err := s.deps.Wiki.PageText(ctx, title)
	if err != nil {
		return fmt.Errorf("fetch wikitext for %s: %w", title, err)
	}
	if text == "" {
		return fmt.Errorf("empty wikitext for %s", title)
	}

	state.Text = text
	s.deps.Logger.Debug("wikitext fetched",
		"task_id", state.Task.ID,
		"title", title,
		"bytes", len(text),
	)
	return nil
}
