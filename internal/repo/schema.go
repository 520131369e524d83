package repo

import (
	"context"
	"fmt"
)

// schemaStatements — DDL, выполняемый при старте. Все выражения
// идемпотентны (IF NOT EXISTS), порядок важен.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id               VARCHAR(36) PRIMARY KEY,
		username         VARCHAR(255),
		title            TEXT NOT NULL,
		normalized_title TEXT NOT NULL,
		main_file        TEXT,
		status           VARCHAR(32) NOT NULL,
		message          TEXT,
		args             JSONB,
		results          JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_normalized_title ON tasks (normalized_title)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at)`,
	`CREATE TABLE IF NOT EXISTS task_stages (
		id            BIGSERIAL PRIMARY KEY,
		task_id       VARCHAR(36) NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
		stage_name    VARCHAR(64) NOT NULL,
		stage_number  INT NOT NULL,
		stage_status  VARCHAR(32) NOT NULL,
		stage_sub_name TEXT,
		stage_message TEXT,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (task_id, stage_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_stages_task_id ON task_stages (task_id)`,
}

// InitSchema создаёт таблицы и индексы, если их ещё нет.
func InitSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
