package stages

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
)

// Паттерны для разбора switch-блоков SVG.
//
// SVG-файлы с переводами устроены так: внутри <switch> лежат
// элементы <text> с systemLanguage и один без него (fallback).
var (
	switchPattern = regexp.MustCompile(`(?s)<switch[^>]*>(.*?)</switch>`)
	textPattern   = regexp.MustCompile(`(?s)<text([^>]*)>(.*?)</text>`)
	langPattern   = regexp.MustCompile(`systemLanguage="([^"]+)"`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]+>`)
)

// TranslationsStage извлекает существующие переводы из SVG.
type TranslationsStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *TranslationsStage) Name() domain.StageName {
	return domain.StageTranslations
}

// Execute скачивает главный SVG-файл группы и строит карту переводов
// из его switch-блоков: язык → текст по умолчанию → переведённый
// текст. Текст без systemLanguage считается исходным и служит ключом.
//
// Переводы, переданные в аргументах задачи, имеют приоритет над
// извлечёнными из файла.
func (s *TranslationsStage) Execute(ctx context.Context, state *pipeline.State) error {
	if state.MainFile == "" {
		return fmt.Errorf("no main file to load translations from")
	}

	path, err := s.deps.Wiki.DownloadFile(ctx, state.MainFile, state.WorkDir)
	if err != nil {
		return fmt.Errorf("download main file %s: %w", state.MainFile, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read main file: %w", err)
	}
	if !strings.Contains(string(raw), "<svg") {
		return fmt.Errorf("main file %s is not an svg", state.MainFile)
	}

	state.MainText = string(raw)
	state.Files[state.MainFile] = path

	extracted := ExtractTranslations(state.MainText)
	for lang, pairs := range extracted {
		if state.Translations[lang] == nil {
			state.Translations[lang] = make(map[string]string)
		}
		for key, value := range pairs {
			state.Translations[lang][key] = value
		}
	}

	// Переводы из аргументов задачи (форма веб-интерфейса).
	if fromArgs, ok := state.Task.Args["translations"].(map[string]any); ok {
		for lang, raw := range fromArgs {
			pairs, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if state.Translations[lang] == nil {
				state.Translations[lang] = make(map[string]string)
			}
			for key, value := range pairs {
				if text, ok := value.(string); ok {
					state.Translations[lang][key] = text
				}
			}
		}
	}

	if len(state.Translations) == 0 {
		return fmt.Errorf("no translations found in main file %s", state.MainFile)
	}

	state.Messages[domain.StageTranslations] = fmt.Sprintf(
		"Loaded translations for %d languages from main file", len(state.Translations))

	s.deps.Logger.Debug("translations collected",
		"task_id", state.Task.ID,
		"languages", len(state.Translations),
	)
	return nil
}

// ExtractTranslations разбирает switch-блоки и возвращает карту
// lang → исходный текст → перевод.
func ExtractTranslations(svgText string) map[string]map[string]string {
	result := make(map[string]map[string]string)

	for _, switchMatch := range switchPattern.FindAllStringSubmatch(svgText, -1) {
		texts := textPattern.FindAllStringSubmatch(switchMatch[1], -1)

		// Ищем fallback — текст без systemLanguage.
		fallback := ""
		for _, t := range texts {
			if !langPattern.MatchString(t[1]) {
				fallback = plainText(t[2])
				break
			}
		}
		if fallback == "" {
			continue
		}

		for _, t := range texts {
			langMatch := langPattern.FindStringSubmatch(t[1])
			if langMatch == nil {
				continue
			}
			lang := langMatch[1]
			if result[lang] == nil {
				result[lang] = make(map[string]string)
			}
			result[lang][fallback] = plainText(t[2])
		}
	}

	return result
}

// plainText убирает вложенные теги (tspan) из содержимого text-элемента.
func plainText(inner string) string {
	return tagPattern.ReplaceAllString(inner, "")
}
