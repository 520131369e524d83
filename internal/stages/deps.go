package stages

import (
	"context"
	"log/slog"

	"github.com/Mdwiki-TD/svg-translate-web/internal/batch"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
	"github.com/Mdwiki-TD/svg-translate-web/internal/wiki"
)

// WikiClient — операции вики-API, нужные стадиям.
// Реализуется wiki.Client; в тестах подменяется фейком.
type WikiClient interface {
	PageText(ctx context.Context, title string) (string, error)
	DownloadFile(ctx context.Context, title, dir string) (string, error)
	Upload(ctx context.Context, filename, path, comment, token string) (*wiki.UploadResult, error)
}

// Deps — зависимости исполнителей стадий.
type Deps struct {
	Wiki   WikiClient
	Batch  *batch.Processor
	Store  *repo.Store
	Logger *slog.Logger
}

// DefaultRegistry создаёт реестр со всеми стадиями конвейера.
func DefaultRegistry(deps Deps) *pipeline.Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := pipeline.NewRegistry()
	r.Register(&InitializeStage{deps: deps})
	r.Register(&TextStage{deps: deps})
	r.Register(&TitlesStage{deps: deps})
	r.Register(&TranslationsStage{deps: deps})
	r.Register(&DownloadStage{deps: deps})
	r.Register(&NestedStage{deps: deps})
	r.Register(&InjectStage{deps: deps})
	r.Register(&UploadStage{deps: deps})
	return r
}
