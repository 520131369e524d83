package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
)

// State — рабочее состояние одного прогона конвейера.
//
// Стадии общаются между собой только через State: каждая читает
// артефакты предыдущих и записывает свои. Состояние живёт ровно один
// прогон и не переживает перезапуск задачи.
type State struct {
	// Task — выполняемая задача.
	Task *domain.Task

	// WorkDir — рабочая директория прогона на диске.
	WorkDir string

	// Text — викитекст страницы задачи (стадия text).
	Text string

	// Titles — заголовки всех файлов группы (стадия titles).
	Titles []string

	// MainFile — главный файл, определённый на стадии titles.
	MainFile string

	// MainText — содержимое главного SVG (стадия translations).
	MainText string

	// Translations — переводы по языкам: lang → ключ → текст
	// (стадия translations).
	Translations map[string]map[string]string

	// Files — скачанные файлы: заголовок → путь на диске
	// (стадия download).
	Files map[string]string

	// NestedFiles — вложенные файлы, найденные внутри SVG
	// (стадия nested).
	NestedFiles []string

	// NestedFixed и NestedNotFixed — счётчики файлов с вложенными
	// tspan-тегами после попытки исправления (стадия nested).
	NestedFixed    int
	NestedNotFixed int

	// Injected — готовые SVG по языкам: lang → путь к файлу на диске
	// (стадия inject).
	Injected map[string]string

	// Uploaded — имена загруженных файлов (стадия upload).
	Uploaded []string

	// Messages — сообщения стадий для записи при завершении:
	// стадия без записи сохраняет прежнее сообщение.
	Messages map[domain.StageName]string
}

// NewState создаёт State для задачи.
func NewState(task *domain.Task, workDir string) *State {
	return &State{
		Task:         task,
		WorkDir:      workDir,
		Translations: make(map[string]map[string]string),
		Files:        make(map[string]string),
		Injected:     make(map[string]string),
		Messages:     make(map[domain.StageName]string),
	}
}

// StageExecutor — исполнитель одной стадии конвейера.
type StageExecutor interface {
	// Name возвращает имя стадии.
	Name() domain.StageName

	// Execute выполняет стадию. Ошибка проваливает задачу;
	// долгие операции должны проверять ctx.Done().
	Execute(ctx context.Context, state *State) error
}

// Registry — реестр исполнителей стадий. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.StageName]StageExecutor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.StageName]StageExecutor),
	}
}

// Register регистрирует исполнителя стадии.
// Повторная регистрация перезаписывает существующего.
func (r *Registry) Register(exec StageExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[exec.Name()] = exec
}

// Get возвращает исполнителя по имени стадии.
// Возвращает ErrStageNotFound, если исполнитель не зарегистрирован.
func (r *Registry) Get(name domain.StageName) (StageExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, exists := r.executors[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}
	return exec, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(name domain.StageName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[name]
	return exists
}

// Complete проверяет, что для каждой стадии конвейера есть исполнитель.
func (r *Registry) Complete() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range domain.StageOrder {
		if _, exists := r.executors[name]; !exists {
			return fmt.Errorf("%w: %s", ErrStageNotFound, name)
		}
	}
	return nil
}
