package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// SetImportedFileHash records the content hash of an imported file.
func (s *Store) SetImportedFileHash(ctx context.Context, path, hash string) error {
	return withTx(ctx, s.db, "record import", func(tx *sqlx.Tx) error {
		now := toMillis(s.opts.now())
		res, err := tx.ExecContext(ctx,
			`UPDATE Importaciones SET hash = ?, importado = ? WHERE ruta = ?`, hash, now, path)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO Importaciones (ruta, hash, importado) VALUES (?, ?, ?)`, path, hash, now)
		return err
	})
}

// ImportedFileHash returns the hash recorded for path.
// Returns empty string and nil error if the file was never imported.
func (s *Store) ImportedFileHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := sqlx.GetContext(ctx, s.db, &hash, `SELECT hash FROM Importaciones WHERE ruta = ?`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}
