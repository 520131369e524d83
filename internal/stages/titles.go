package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
)

// Паттерны разбора викитекста группы.
//
// Главный файл объявлен либо первым аргументом {{SVGLanguages|...}},
// либо строкой "*'''Translate''': https://svgtranslate.toolforge.org/File:...".
// Файлы группы перечислены внутри шаблонов {{owidslidersrcs|...}}.
var (
	svgLanguagesPattern   = regexp.MustCompile(`(?i)\{\{\s*svglanguages\s*\|\s*([^|}]+)`)
	translateLinePattern  = regexp.MustCompile(`(?mi)^\*'''Translate''':\s+https?://svgtranslate\.toolforge\.org/File:([\w\-,.()]+\.svg)\s*$`)
	sliderTemplatePattern = regexp.MustCompile(`(?is)\{\{\s*owidslidersrcs\b.*?\}\}`)
	sliderFilePattern     = regexp.MustCompile(`File:([^\n|!]+\.svg)`)
)

// TitlesStage извлекает из викитекста главный файл и список файлов
// группы.
type TitlesStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *TitlesStage) Name() domain.StageName {
	return domain.StageTitles
}

// Execute разбирает викитекст, полученный стадией text: определяет
// главный файл и собирает заголовки всех файлов группы. Аргумент
// main_title задачи перекрывает извлечённый главный файл,
// titles_limit обрезает список.
func (s *TitlesStage) Execute(ctx context.Context, state *pipeline.State) error {
	mainTitle := FindMainTitle(state.Text)
	if manual, ok := state.Task.Args["main_title"].(string); ok && manual != "" {
		mainTitle = cleanTitle(manual)
	}

	titles := ExtractTitles(state.Text)

	// Дополнительные файлы, заданные при создании задачи.
	seen := make(map[string]struct{}, len(titles))
	for _, title := range titles {
		seen[title] = struct{}{}
	}
	if extra, ok := state.Task.Args["titles"].([]any); ok {
		for _, item := range extra {
			title, ok := item.(string)
			if !ok || title == "" {
				continue
			}
			if _, dup := seen[title]; dup {
				continue
			}
			seen[title] = struct{}{}
			titles = append(titles, title)
		}
	}

	if mainTitle == "" {
		return fmt.Errorf("no main title found in %s", state.Task.Title)
	}
	if len(titles) == 0 {
		return fmt.Errorf("no titles found in %s", state.Task.Title)
	}

	message := fmt.Sprintf("Found %d titles", len(titles))
	if limit := titlesLimit(state.Task.Args); limit > 0 && len(titles) > limit {
		message += fmt.Sprintf(", use only %d", limit)
		titles = titles[:limit]
	}

	state.MainFile = mainTitle
	state.Titles = titles
	state.Messages[domain.StageTitles] = message

	if err := s.deps.Store.Tasks.SetMainFile(ctx, state.Task.ID, "File:"+mainTitle); err != nil {
		return fmt.Errorf("persist main file: %w", err)
	}

	s.deps.Logger.Debug("titles collected",
		"task_id", state.Task.ID,
		"main_file", mainTitle,
		"count", len(titles),
	)
	return nil
}

// FindMainTitle возвращает главный файл группы из викитекста:
// сначала из {{SVGLanguages|...}}, затем из строки Translate.
// Пустая строка означает, что главный файл не объявлен.
func FindMainTitle(text string) string {
	if m := svgLanguagesPattern.FindStringSubmatch(text); m != nil {
		return cleanTitle(m[1])
	}
	if m := translateLinePattern.FindStringSubmatch(text); m != nil {
		return cleanTitle(m[1])
	}
	return ""
}

// ExtractTitles возвращает заголовки SVG-файлов из всех шаблонов
// {{owidslidersrcs|...}} в викитексте. Дубликаты отбрасываются.
func ExtractTitles(text string) []string {
	var titles []string
	seen := make(map[string]struct{})

	for _, tpl := range sliderTemplatePattern.FindAllString(text, -1) {
		for _, m := range sliderFilePattern.FindAllStringSubmatch(tpl, -1) {
			title := cleanTitle(m[1])
			if title == "" {
				continue
			}
			if _, dup := seen[title]; dup {
				continue
			}
			seen[title] = struct{}{}
			titles = append(titles, title)
		}
	}
	return titles
}

// cleanTitle нормализует заголовок из викитекста: срезает префикс
// File:, заменяет подчёркивания пробелами.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.TrimPrefix(title, "File:")
	title = strings.ReplaceAll(title, "_", " ")
	return strings.TrimSpace(title)
}

// titlesLimit читает необязательный предел числа файлов из аргументов.
func titlesLimit(args map[string]any) int {
	switch v := args["titles_limit"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
