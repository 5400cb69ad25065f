package pgfixture

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is satisfied by *pgx.Conn, *pgxpool.Pool and pgx.Tx.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LoadSchema executes each file, in the given order, in its own transaction.
// A failing file stops the run; files before it stay committed.
func LoadSchema(ctx context.Context, db TxBeginner, files []string) error {
	for _, file := range files {
		if err := loadFile(ctx, db, file); err != nil {
			return &SchemaLoadError{File: file, Err: err}
		}
	}
	return nil
}

func loadFile(ctx context.Context, db TxBeginner, file string) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	// no arguments, so pgx sends the whole file as one simple query and
	// multiple statements are allowed
	if _, err = tx.Exec(ctx, string(content)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}
