package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
)

// InjectStage встраивает переводы в SVG и пишет результат на диск.
type InjectStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *InjectStage) Name() domain.StageName {
	return domain.StageInject
}

// Execute создаёт для каждого языка вариант SVG со встроенным
// переводом. Switch-блоки дополняются text-элементами с
// systemLanguage; существующий перевод для языка перезаписывается.
func (s *InjectStage) Execute(ctx context.Context, state *pipeline.State) error {
	if state.MainText == "" {
		return fmt.Errorf("no svg text to inject into")
	}

	langs := make([]string, 0, len(state.Translations))
	for lang := range state.Translations {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	for _, lang := range langs {
		injected := InjectTranslations(state.MainText, lang, state.Translations[lang])

		name := injectedFileName(state.MainFile, lang)
		path := filepath.Join(state.WorkDir, name)
		if err := os.WriteFile(path, []byte(injected), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}

		state.Injected[lang] = path
	}

	s.deps.Logger.Debug("translations injected",
		"task_id", state.Task.ID,
		"languages", len(langs),
	)
	return nil
}

// InjectTranslations возвращает SVG-текст с переводами для lang.
//
// Для каждого switch-блока с известным fallback-текстом добавляется
// (или заменяется) text-элемент с systemLanguage="lang".
func InjectTranslations(svgText, lang string, translations map[string]string) string {
	return switchPattern.ReplaceAllStringFunc(svgText, func(block string) string {
		inner := switchPattern.FindStringSubmatch(block)[1]
		texts := textPattern.FindAllStringSubmatch(inner, -1)

		var fallbackElem, fallback string
		for _, t := range texts {
			if !langPattern.MatchString(t[1]) {
				fallbackElem = "<text" + t[1] + ">" + t[2] + "</text>"
				fallback = plainText(t[2])
				break
			}
		}
		if fallback == "" {
			return block
		}
		translated, ok := translations[fallback]
		if !ok || translated == "" {
			return block
		}

		// Убираем прежний вариант для этого языка.
		withoutLang := textPattern.ReplaceAllStringFunc(inner, func(elem string) string {
			attrs := textPattern.FindStringSubmatch(elem)[1]
			if m := langPattern.FindStringSubmatch(attrs); m != nil && m[1] == lang {
				return ""
			}
			return elem
		})

		// Новый вариант — копия fallback с systemLanguage и переводом.
		langElem := strings.Replace(fallbackElem, "<text", fmt.Sprintf(`<text systemLanguage=%q`, lang), 1)
		langElem = strings.Replace(langElem, ">"+plainTextContent(fallbackElem)+"<", ">"+translated+"<", 1)

		return strings.Replace(block, inner, langElem+withoutLang, 1)
	})
}

// plainTextContent возвращает содержимое text-элемента.
func plainTextContent(elem string) string {
	m := textPattern.FindStringSubmatch(elem)
	if m == nil {
		return ""
	}
	return m[2]
}

// injectedFileName строит имя файла перевода: "Name (lang).svg".
func injectedFileName(mainFile, lang string) string {
	base := strings.TrimPrefix(mainFile, "File:")
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s (%s)%s", domain.TitleSlug(stem), lang, ext)
}
