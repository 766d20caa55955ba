package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0005, Down0005)
}

func Up0005(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE submission (
    id SERIAL PRIMARY KEY,
    submission_id TEXT NOT NULL,
    author_id INTEGER NOT NULL REFERENCES user_handle (id),
    task_id INTEGER NOT NULL REFERENCES task (id),
    submitted_on TIMESTAMP WITH TIME ZONE NOT NULL,
    language TEXT,
    verdict TEXT NOT NULL,
    score INTEGER,
    source_size INTEGER,
    exec_time INTEGER,
    memory_used INTEGER,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    CONSTRAINT submission_natural_key UNIQUE (submission_id, author_id)
);
`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX submission_task_id_index ON submission (task_id);`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `CREATE INDEX submission_submitted_on_index ON submission (submitted_on);`)
	return err
}

func Down0005(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP INDEX submission_submitted_on_index;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DROP INDEX submission_task_id_index;`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DROP TABLE submission;`)
	return err
}
