package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// withTx runs fn inside one transaction. Any error from fn rolls the whole
// transaction back and is returned as a *BatchError labelled with op.
func withTx(ctx context.Context, db *sqlx.DB, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return &BatchError{Op: op, Index: -1, Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		var be *BatchError
		if errors.As(err, &be) {
			if be.Op == "" {
				be.Op = op
			}
			return be
		}
		return &BatchError{Op: op, Index: -1, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &BatchError{Op: op, Index: -1, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}
