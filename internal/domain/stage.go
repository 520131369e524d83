package domain

import "time"

// StageName — имя стадии пайплайна.
type StageName string

// Стадии пайплайна в порядке выполнения.
const (
	StageInitialize   StageName = "initialize"
	StageText         StageName = "text"
	StageTitles       StageName = "titles"
	StageTranslations StageName = "translations"
	StageDownload     StageName = "download"
	StageNested       StageName = "nested"
	StageInject       StageName = "inject"
	StageUpload       StageName = "upload"
)

// StageOrder — фиксированный порядок стадий. Порядковый номер стадии —
// её индекс здесь плюс один.
var StageOrder = []StageName{
	StageInitialize,
	StageText,
	StageTitles,
	StageTranslations,
	StageDownload,
	StageNested,
	StageInject,
	StageUpload,
}

// stageMessages — начальные сообщения стадий.
var stageMessages = map[StageName]string{
	StageInitialize:   "Starting workflow",
	StageText:         "Getting text",
	StageTitles:       "Getting titles",
	StageTranslations: "Getting translations",
	StageDownload:     "Downloading files",
	StageNested:       "Analyze nested files",
	StageInject:       "Injecting translations",
	StageUpload:       "Uploading files",
}

// StageOrdinal возвращает порядковый номер стадии (1..8) или 0 для
// неизвестного имени.
func StageOrdinal(name StageName) int {
	for i, n := range StageOrder {
		if n == name {
			return i + 1
		}
	}
	return 0
}

// Stage — одна стадия пайплайна задачи.
//
// Идентифицируется парой (TaskID, Name). Стадии записываются в БД в
// порядке возрастания Number; статус стадии становится терминальным до
// того, как следующая стадия перейдёт в Running.
type Stage struct {
	// TaskID — идентификатор задачи-владельца.
	TaskID string `json:"task_id"`

	// Name — имя стадии из фиксированного набора.
	Name StageName `json:"name"`

	// Number — порядковый номер стадии (фиксирован для имени).
	Number int `json:"number"`

	// Status — текущий статус стадии.
	Status StageStatus `json:"status"`

	// SubName — под-фаза для стадий с внутренними шагами (например,
	// имя файла, загружаемого в данный момент).
	SubName string `json:"sub_name,omitempty"`

	// Message — человекочитаемое сообщение о ходе стадии.
	Message string `json:"message,omitempty"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStages создаёт начальный набор стадий для задачи: все Pending
// с порядковыми номерами 1..8 и стандартными сообщениями.
func NewStages(taskID string) map[StageName]*Stage {
	stages := make(map[StageName]*Stage, len(StageOrder))
	for i, name := range StageOrder {
		stages[name] = &Stage{
			TaskID:  taskID,
			Name:    name,
			Number:  i + 1,
			Status:  StageStatusPending,
			Message: stageMessages[name],
		}
	}
	return stages
}

// MarkRunning переводит стадию в статус Running.
func (s *Stage) MarkRunning() {
	s.Status = StageStatusRunning
	s.UpdatedAt = time.Now()
}

// MarkCompleted переводит стадию в статус Completed с сообщением о результате.
func (s *Stage) MarkCompleted(msg string) {
	s.Status = StageStatusCompleted
	if msg != "" {
		s.Message = msg
	}
	s.UpdatedAt = time.Now()
}

// MarkFailed переводит стадию в статус Failed с текстом ошибки.
func (s *Stage) MarkFailed(msg string) {
	s.Status = StageStatusFailed
	s.Message = msg
	s.UpdatedAt = time.Now()
}

// MarkSkipped переводит стадию в статус Skipped.
func (s *Stage) MarkSkipped() {
	s.Status = StageStatusSkipped
	s.UpdatedAt = time.Now()
}

// MarkCancelled переводит стадию в статус Cancelled.
func (s *Stage) MarkCancelled() {
	s.Status = StageStatusCancelled
	s.UpdatedAt = time.Now()
}

// ResetForRestart возвращает стадию в исходное состояние Pending.
func (s *Stage) ResetForRestart() {
	s.Status = StageStatusPending
	s.SubName = ""
	s.Message = stageMessages[s.Name]
	s.UpdatedAt = time.Now()
}
