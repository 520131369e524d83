package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
)

// uploadComment — комментарий к загружаемой правке.
const uploadComment = "Adding translations via svg-translate-web"

// UploadStage загружает переведённые SVG обратно в вики.
type UploadStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *UploadStage) Name() domain.StageName {
	return domain.StageUpload
}

// Execute загружает файлы переводов по одному. Провал одной загрузки
// проваливает стадию: частично загруженная группа хуже, чем ничего,
// пользователь перезапустит задачу.
func (s *UploadStage) Execute(ctx context.Context, state *pipeline.State) error {
	if len(state.Injected) == 0 {
		return fmt.Errorf("nothing to upload")
	}

	token, _ := state.Task.Args["csrf_token"].(string)

	langs := make([]string, 0, len(state.Injected))
	for lang := range state.Injected {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	for _, lang := range langs {
		path := state.Injected[lang]
		filename := filepath.Base(path)

		result, err := s.deps.Wiki.Upload(ctx, filename, path, uploadComment, token)
		if err != nil {
			return fmt.Errorf("upload %s: %w", filename, err)
		}

		state.Uploaded = append(state.Uploaded, result.Filename)
		s.deps.Logger.Info("translation uploaded",
			"task_id", state.Task.ID,
			"filename", result.Filename,
			"lang", lang,
		)
	}

	return nil
}
