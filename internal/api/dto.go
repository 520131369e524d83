package api

import (
	"time"

	"github.com/Mdwiki-TD/svg-translate-web/internal/db"
	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
)

// CreateTaskRequest — запрос на создание задачи перевода.
type CreateTaskRequest struct {
	Title    string         `json:"title"`
	Username string         `json:"username,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// TaskResponse — ответ с задачей.
type TaskResponse struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	NormalizedTitle string            `json:"normalized_title"`
	Username        string            `json:"username,omitempty"`
	MainFile        string            `json:"main_file,omitempty"`
	Status          domain.TaskStatus `json:"status"`
	Message         string            `json:"message,omitempty"`
	Results         map[string]any    `json:"results,omitempty"`
	Stages          []StageResponse   `json:"stages,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// StageResponse — ответ с одной стадией.
type StageResponse struct {
	Name      domain.StageName   `json:"name"`
	Number    int                `json:"number"`
	Status    domain.StageStatus `json:"status"`
	SubName   string             `json:"sub_name,omitempty"`
	Message   string             `json:"message,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:              t.ID,
		Title:           t.Title,
		NormalizedTitle: t.NormalizedTitle,
		Username:        t.Username,
		MainFile:        t.MainFile,
		Status:          t.Status,
		Message:         t.Message,
		Results:         t.Results,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}

	// Стадии всегда в порядке конвейера.
	for _, name := range domain.StageOrder {
		stage, ok := t.Stages[name]
		if !ok {
			continue
		}
		resp.Stages = append(resp.Stages, StageResponse{
			Name:      stage.Name,
			Number:    stage.Number,
			Status:    stage.Status,
			SubName:   stage.SubName,
			Message:   stage.Message,
			UpdatedAt: stage.UpdatedAt,
		})
	}

	return resp
}

// PoolResponse — ответ со статусом пула соединений.
type PoolResponse struct {
	Name        string  `json:"name"`
	Baseline    int     `json:"baseline"`
	Overflow    int     `json:"overflow"`
	Open        int     `json:"open"`
	CheckedIn   int     `json:"checked_in"`
	CheckedOut  int     `json:"checked_out"`
	Utilization float64 `json:"utilization"`
}

// PoolFromStat конвертирует db.PoolStat в PoolResponse.
func PoolFromStat(s db.PoolStat) PoolResponse {
	return PoolResponse{
		Name:        s.Name,
		Baseline:    s.Baseline,
		Overflow:    s.Overflow,
		Open:        s.Open,
		CheckedIn:   s.CheckedIn,
		CheckedOut:  s.CheckedOut,
		Utilization: s.Utilization,
	}
}
