package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes fn inside a serializable transaction. The transaction is
// rolled back when fn returns an error, so a failed step leaves none of the
// unit's writes behind.
//
// Serializable is required, not repeatable read: the ledger's units of work
// read the latest movement and then insert a new one, and two such insert-only
// transactions never touch the same row. Repeatable read would let both commit
// with the same balance_before (write skew); serializable aborts one of them
// with SQLSTATE 40001, which IsSerializationFailure detects.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsSerializationFailure reports whether err is a PostgreSQL serialization
// failure (SQLSTATE 40001), raised when two serializable transactions
// conflict and one is aborted.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
