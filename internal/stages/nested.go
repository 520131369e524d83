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

// maxFixableNestings — предел вложенности, выше которого файл
// не исправляется автоматически.
const maxFixableNestings = 10

var (
	// tspanTagPattern находит открывающие и закрывающие tspan-теги.
	tspanTagPattern = regexp.MustCompile(`</?tspan[^>]*>`)

	// imageRefPattern находит ссылки на растровые и векторные файлы
	// внутри SVG (атрибуты href и xlink:href элементов image и use).
	imageRefPattern = regexp.MustCompile(`(?:xlink:)?href="([^"#][^"]*\.(?:svg|png|jpg|jpeg|gif))"`)
)

// NestedStage исправляет вложенные tspan-теги в скачанных SVG.
type NestedStage struct {
	deps Deps
}

// Name возвращает имя стадии.
func (s *NestedStage) Name() domain.StageName {
	return domain.StageNested
}

// Execute проверяет каждый скачанный SVG на вложенные tspan-теги
// (tspan внутри tspan ломает подстановку переводов) и разворачивает
// их на месте. Файлы с более чем maxFixableNestings вложениями
// остаются как есть. Дополнительно собираются ссылки на файлы,
// которых нет в группе: их перевод — отдельная задача пользователя.
func (s *NestedStage) Execute(ctx context.Context, state *pipeline.State) error {
	known := make(map[string]struct{}, len(state.Titles))
	for _, title := range state.Titles {
		known[title] = struct{}{}
	}

	nestedFiles := 0
	fixed := 0
	notFixed := 0

	for title, path := range state.Files {
		if !strings.HasSuffix(strings.ToLower(path), ".svg") {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			s.deps.Logger.Warn("failed to read downloaded file",
				"task_id", state.Task.ID,
				"title", title,
				"error", err,
			)
			continue
		}
		content := string(raw)

		for _, match := range imageRefPattern.FindAllStringSubmatch(content, -1) {
			nested := refToTitle(match[1])
			if nested == "" {
				continue
			}
			if _, dup := known[nested]; dup {
				continue
			}
			known[nested] = struct{}{}
			state.NestedFiles = append(state.NestedFiles, nested)
		}

		tags := MatchNestedTags(content)
		if len(tags) == 0 {
			continue
		}
		nestedFiles++

		if len(tags) > maxFixableNestings {
			notFixed++
			continue
		}

		unwrapped := UnwrapNestedTags(content)
		if err := os.WriteFile(path, []byte(unwrapped), 0o644); err != nil {
			s.deps.Logger.Warn("failed to rewrite fixed file",
				"task_id", state.Task.ID,
				"title", title,
				"error", err,
			)
			notFixed++
			continue
		}
		if title == state.MainFile {
			state.MainText = unwrapped
		}

		if len(MatchNestedTags(unwrapped)) == 0 {
			fixed++
		} else {
			notFixed++
		}
	}

	state.NestedFixed = fixed
	state.NestedNotFixed = notFixed
	state.Messages[domain.StageNested] = fmt.Sprintf(
		"Files: (%d): Nested: %d, Fixed: %d, Not fixed: %d.",
		len(state.Files), nestedFiles, fixed, notFixed)

	s.deps.Logger.Debug("nested analysis finished",
		"task_id", state.Task.ID,
		"nested_files", nestedFiles,
		"fixed", fixed,
		"not_fixed", notFixed,
		"refs", len(state.NestedFiles),
	)
	return nil
}

// MatchNestedTags возвращает открывающие tspan-теги, находящиеся
// внутри другого tspan.
func MatchNestedTags(svgText string) []string {
	var nested []string
	depth := 0

	for _, loc := range tspanTagPattern.FindAllStringIndex(svgText, -1) {
		tag := svgText[loc[0]:loc[1]]
		switch {
		case strings.HasPrefix(tag, "</"):
			if depth > 0 {
				depth--
			}
		case strings.HasSuffix(tag, "/>"):
			// Самозакрывающийся tspan вложенности не создаёт.
		default:
			depth++
			if depth > 1 {
				nested = append(nested, tag)
			}
		}
	}
	return nested
}

// UnwrapNestedTags убирает вложенные tspan-теги, оставляя их
// содержимое внутри внешнего tspan.
func UnwrapNestedTags(svgText string) string {
	var b strings.Builder
	depth := 0
	last := 0

	for _, loc := range tspanTagPattern.FindAllStringIndex(svgText, -1) {
		tag := svgText[loc[0]:loc[1]]
		b.WriteString(svgText[last:loc[0]])
		last = loc[1]

		switch {
		case strings.HasPrefix(tag, "</"):
			if depth > 1 {
				depth--
				continue
			}
			if depth == 1 {
				depth--
			}
			b.WriteString(tag)
		case strings.HasSuffix(tag, "/>"):
			b.WriteString(tag)
		default:
			depth++
			if depth > 1 {
				continue
			}
			b.WriteString(tag)
		}
	}
	b.WriteString(svgText[last:])
	return b.String()
}

// refToTitle превращает ссылку из SVG в заголовок файла на вики.
// Абсолютные URL на чужие хосты отбрасываются.
func refToTitle(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ""
	}
	ref = strings.TrimPrefix(ref, "./")
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		ref = ref[idx+1:]
	}
	return ref
}
