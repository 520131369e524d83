package pipeline

import "errors"

// Ошибки конвейера.
var (
	// ErrStageNotFound — исполнитель стадии не найден в реестре.
	ErrStageNotFound = errors.New("stage executor not found")

	// ErrInvalidTaskState — операция недопустима в текущем статусе задачи.
	ErrInvalidTaskState = errors.New("invalid task state")

	// ErrTaskActive — задача с тем же заголовком уже выполняется.
	ErrTaskActive = errors.New("task for this title is already active")

	// ErrCancelled — выполнение прервано по запросу отмены.
	ErrCancelled = errors.New("task cancelled")
)
