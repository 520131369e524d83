package stages

import (
	"context"
	"fmt"

	"github.com/Mdwiki-TD/svg-translate-web/internal/batch"
	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
)

// DownloadStage скачивает файлы группы параллельно через batch-пул.
type DownloadStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *DownloadStage) Name() domain.StageName {
	return domain.StageDownload
}

// Execute скачивает каждый файл на своём batch-воркере и отмечает
// прогресс в sub_name стадии через заимствованное соединение.
// Главный файл уже скачан стадией translations и пропускается.
func (s *DownloadStage) Execute(ctx context.Context, state *pipeline.State) error {
	var pending []string
	for _, title := range state.Titles {
		if _, done := state.Files[title]; !done {
			pending = append(pending, title)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	type downloaded struct {
		title string
		path  string
	}

	results, err := batch.Map(ctx, s.deps.Batch, pending,
		func(ctx context.Context, conn db.Conn, title string) (downloaded, error) {
			// Прогресс виден в веб-интерфейсе через sub_name стадии.
			_, _ = conn.Exec(ctx,
				`UPDATE task_stages SET stage_sub_name = $3 WHERE task_id = $1 AND stage_name = $2`,
				state.Task.ID, domain.StageDownload, title,
			)

			path, err := s.deps.Wiki.DownloadFile(ctx, title, state.WorkDir)
			if err != nil {
				return downloaded{}, fmt.Errorf("download %s: %w", title, err)
			}
			return downloaded{title: title, path: path}, nil
		})
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		state.Files[r.Value.title] = r.Value.path
	}

	// Главный файл обязателен, остальные — best effort.
	if _, ok := state.Files[state.MainFile]; !ok {
		return fmt.Errorf("main file %s not downloaded", state.MainFile)
	}
	if failed > 0 {
		s.deps.Logger.Warn("some files failed to download",
			"task_id", state.Task.ID,
			"failed", failed,
			"total", len(pending),
		)
	}

	return nil
}
