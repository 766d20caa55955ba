package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0004, Down0004)
}

func Up0004(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE user_handle (
    id SERIAL PRIMARY KEY,
    judge_id INTEGER NOT NULL REFERENCES judge (id),
    handle TEXT NOT NULL,
    first_name TEXT,
    last_name TEXT,
    photo_url TEXT,
    rating INTEGER,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT current_timestamp,
    CONSTRAINT user_handle_natural_key UNIQUE (judge_id, handle)
);
`)
	return err
}

func Down0004(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE user_handle;`)
	return err
}
