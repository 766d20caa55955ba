package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up0008, Down0008)
}

var touchedTables = []string{
	"judge",
	"task_source",
	"task",
	"user_handle",
	"submission",
	"task_statement",
}

func Up0008(ctx context.Context, tx *sql.Tx) error {
	for _, table := range touchedTables {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
CREATE TRIGGER touch_updated_at_trigger
BEFORE UPDATE ON %s
FOR EACH ROW EXECUTE PROCEDURE touch_updated_at();`,
			table))
		if err != nil {
			return err
		}
	}

	return nil
}

func Down0008(ctx context.Context, tx *sql.Tx) error {
	for i := len(touchedTables) - 1; i >= 0; i-- {
		_, err := tx.ExecContext(
			ctx,
			fmt.Sprintf(`DROP TRIGGER touch_updated_at_trigger ON %s;`, touchedTables[i]),
		)
		if err != nil {
			return err
		}
	}

	return nil
}
