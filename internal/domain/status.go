package domain

// TaskStatus — статус выполнения задачи.
//
// Жизненный цикл:
//
//	Pending → Running → Completed
//	                  ↘ Failed
//	          (или) → Cancelled (из Pending или Running)
//
// Restart возвращает задачу из терминального статуса в Pending.
type TaskStatus string

const (
	// TaskStatusPending — задача создана, но ещё не начала выполняться.
	TaskStatusPending TaskStatus = "Pending"

	// TaskStatusRunning — пайплайн задачи выполняется.
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusCompleted — все стадии завершились успешно.
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusFailed — одна из стадий завершилась ошибкой.
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCancelled — задача отменена пользователем.
	TaskStatusCancelled TaskStatus = "Cancelled"
)

// IsTerminal возвращает true, если статус финальный (задача завершена).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// StageStatus — статус одной стадии пайплайна.
//
// Жизненный цикл:
//
//	Pending → Running → Completed
//	                  ↘ Failed
//	Pending → Skipped   (стадии после Failed не выполняются)
//	Pending → Cancelled (остаток пайплайна после сигнала отмены)
type StageStatus string

const (
	// StageStatusPending — стадия ещё не начиналась.
	StageStatusPending StageStatus = "Pending"

	// StageStatusRunning — стадия выполняется.
	StageStatusRunning StageStatus = "Running"

	// StageStatusCompleted — стадия завершилась успешно.
	StageStatusCompleted StageStatus = "Completed"

	// StageStatusFailed — стадия завершилась ошибкой.
	StageStatusFailed StageStatus = "Failed"

	// StageStatusSkipped — стадия не выполнялась из-за ошибки ранее.
	StageStatusSkipped StageStatus = "Skipped"

	// StageStatusCancelled — стадия не выполнялась из-за отмены.
	StageStatusCancelled StageStatus = "Cancelled"
)

// IsTerminal возвращает true, если стадия больше не будет выполняться.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusCompleted, StageStatusFailed, StageStatusSkipped, StageStatusCancelled:
		return true
	default:
		return false
	}
}
