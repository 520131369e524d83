package domain

import (
	"regexp"
	"strings"
	"time"
)

// Task — одна пользовательская задача перевода SVG.
//
// Task создаётся при отправке формы пользователем и проходит через
// восемь упорядоченных стадий пайплайна (см. stage.go). Записи задач
// не удаляются — они остаются для аудита и explorer-страниц.
type Task struct {
	// ID — уникальный идентификатор задачи (URL-safe строка).
	ID string `json:"id"`

	// Username — владелец задачи.
	Username string `json:"username,omitempty"`

	// Title — заголовок шаблона/файла, введённый пользователем.
	Title string `json:"title"`

	// NormalizedTitle — нормализованный заголовок для поиска дубликатов.
	NormalizedTitle string `json:"normalized_title"`

	// MainFile — главный SVG-файл, определённый на стадии titles.
	MainFile string `json:"main_file,omitempty"`

	// Status — текущий статус задачи.
	Status TaskStatus `json:"status"`

	// Message — человекочитаемое сообщение о текущем состоянии или ошибке.
	Message string `json:"message,omitempty"`

	// Args — параметры запуска, переданные при отправке формы.
	Args map[string]any `json:"args,omitempty"`

	// Results — структурированная сводка результатов (счётчики, списки файлов).
	// Заполняется после завершения стадии upload.
	Results map[string]any `json:"results,omitempty"`

	// CreatedAt — время создания задачи.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`

	// Stages — стадии пайплайна по имени.
	Stages map[StageName]*Stage `json:"stages,omitempty"`
}

// IsFinished возвращает true, если задача завершена (в любом статусе).
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// MarkRunning переводит задачу в статус Running.
func (t *Task) MarkRunning() {
	t.Status = TaskStatusRunning
	t.UpdatedAt = time.Now()
}

// MarkCompleted переводит задачу в статус Completed.
func (t *Task) MarkCompleted() {
	t.Status = TaskStatusCompleted
	t.UpdatedAt = time.Now()
}

// MarkFailed переводит задачу в статус Failed с сообщением об ошибке.
func (t *Task) MarkFailed(msg string) {
	t.Status = TaskStatusFailed
	t.Message = msg
	t.UpdatedAt = time.Now()
}

// MarkCancelled переводит задачу в статус Cancelled.
func (t *Task) MarkCancelled() {
	t.Status = TaskStatusCancelled
	t.UpdatedAt = time.Now()
}

var titleCleanRe = regexp.MustCompile(`[^A-Za-z0-9._\- ]+`)

// NormalizeTitle приводит заголовок к каноничному виду для сравнения:
// namespace-префикс и регистр игнорируются, пробелы схлопываются в "_".
func NormalizeTitle(title string) string {
	name := title
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSpace(name)
	name = strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	return name
}

// TitleSlug возвращает безопасное для файловой системы имя каталога задачи.
func TitleSlug(title string) string {
	name := title
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	slug := titleCleanRe.ReplaceAllString(name, "_")
	slug = strings.Trim(slug, "._")
	if slug == "" {
		slug = "untitled"
	}
	return strings.ToLower(strings.ReplaceAll(slug, " ", "_"))
}
