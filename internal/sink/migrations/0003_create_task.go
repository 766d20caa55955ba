package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0003, Down0003)
}

func Up0003(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE task (
    id SERIAL PRIMARY KEY,
    judge_id INTEGER NOT NULL REFERENCES judge (id),
    task_id TEXT NOT NULL,
    name TEXT,
    time_limit_ms INTEGER,
    memory_limit_kb INTEGER,
    tags JSONB,
    source_id INTEGER REFERENCES task_source (id),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    CONSTRAINT task_natural_key UNIQUE (judge_id, task_id)
);
`)
	return err
}

func Down0003(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE task;`)
	return err
}
