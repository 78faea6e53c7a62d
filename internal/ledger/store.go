package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metalyard/metalyard/internal/platform/db"
)

// TxStore is the ledger participant in a unit of work. The engine receives it
// from whoever owns the surrounding transaction, so the movement append and
// the caller's own writes commit or roll back together. The interface exposes
// insertion and lookups only; updates and deletes do not exist.
type TxStore interface {
	Append(ctx context.Context, mv Movement) (int64, error)
	// LatestFor returns the movement with the highest id for the material,
	// or nil when the material has no movements yet.
	LatestFor(ctx context.Context, materialID int64) (*Movement, error)
	Get(ctx context.Context, id int64) (*Movement, error)
	BySourcePurchase(ctx context.Context, purchaseID int64) (*Movement, error)
	BySourceSale(ctx context.Context, saleID int64) (*Movement, error)
}

// StorePort abstracts movement persistence for the engine.
type StorePort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	LatestFor(ctx context.Context, materialID int64) (*Movement, error)
	ListFor(ctx context.Context, filter Filter) ([]Movement, error)
	Get(ctx context.Context, id int64) (*Movement, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists movements in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn inside a serializable transaction. Serializable is what makes
// the read-latest-then-append pair safe: the pair inserts a fresh row on every
// call, so a weaker level would let two concurrent writers on the same material
// both read the same latest balance and both commit. When the database aborts
// the losing transaction the error surfaces as a PersistenceError; the caller's
// whole unit of work fails and nothing is retried here.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
	if db.IsSerializationFailure(err) {
		return &PersistenceError{Op: "commit movements", Err: err}
	}
	return err
}

// TxStoreFor binds a ledger participant to an externally owned transaction.
// The purchase/sale workflow uses this to append movements inside the same
// unit of work that persists the transaction row.
func TxStoreFor(tx pgx.Tx) TxStore {
	return &txStore{q: tx}
}

func (s *Store) LatestFor(ctx context.Context, materialID int64) (*Movement, error) {
	return (&txStore{q: s.pool}).LatestFor(ctx, materialID)
}

func (s *Store) Get(ctx context.Context, id int64) (*Movement, error) {
	return (&txStore{q: s.pool}).Get(ctx, id)
}

const movementColumns = `id, material_id, kind, quantity_delta, balance_before, balance_after, purchase_id, sale_id, occurred_at, note`

// ListFor returns movements for a material newest-first, optionally bounded
// by occurrence time.
func (s *Store) ListFor(ctx context.Context, filter Filter) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE material_id = $1`
	args := []any{filter.MaterialID}
	argCount := 1

	if !filter.From.IsZero() {
		argCount++
		query += ` AND occurred_at >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		query += ` AND occurred_at <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}

	query += ` ORDER BY id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "list movements", Err: err}
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan movement", Err: err}
		}
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list movements", Err: err}
	}
	return movements, nil
}

type txStore struct {
	q querier
}

func (t *txStore) Append(ctx context.Context, mv Movement) (int64, error) {
	const query = `INSERT INTO stock_movements
		(material_id, kind, quantity_delta, balance_before, balance_after, purchase_id, sale_id, occurred_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := t.q.QueryRow(ctx, query,
		mv.MaterialID,
		string(mv.Kind),
		mv.QuantityDelta,
		mv.BalanceBefore,
		mv.BalanceAfter,
		pgtype.Int8{Int64: mv.PurchaseID, Valid: mv.PurchaseID != 0},
		pgtype.Int8{Int64: mv.SaleID, Valid: mv.SaleID != 0},
		mv.OccurredAt,
		mv.Note,
	).Scan(&id)
	if err != nil {
		return 0, &PersistenceError{Op: "append movement", Err: err}
	}
	return id, nil
}

func (t *txStore) LatestFor(ctx context.Context, materialID int64) (*Movement, error) {
	const query = `SELECT ` + movementColumns + ` FROM stock_movements
		WHERE material_id = $1 ORDER BY id DESC LIMIT 1`
	return t.one(ctx, query, materialID)
}

func (t *txStore) Get(ctx context.Context, id int64) (*Movement, error) {
	const query = `SELECT ` + movementColumns + ` FROM stock_movements WHERE id = $1`
	mv, err := t.one(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, ErrMovementNotFound
	}
	return mv, nil
}

func (t *txStore) BySourcePurchase(ctx context.Context, purchaseID int64) (*Movement, error) {
	const query = `SELECT ` + movementColumns + ` FROM stock_movements
		WHERE purchase_id = $1 AND kind = 'PURCHASE' ORDER BY id DESC LIMIT 1`
	mv, err := t.one(ctx, query, purchaseID)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, ErrMovementNotFound
	}
	return mv, nil
}

func (t *txStore) BySourceSale(ctx context.Context, saleID int64) (*Movement, error) {
	const query = `SELECT ` + movementColumns + ` FROM stock_movements
		WHERE sale_id = $1 AND kind = 'SALE' ORDER BY id DESC LIMIT 1`
	mv, err := t.one(ctx, query, saleID)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, ErrMovementNotFound
	}
	return mv, nil
}

func (t *txStore) one(ctx context.Context, query string, arg any) (*Movement, error) {
	row := t.q.QueryRow(ctx, query, arg)
	mv, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, &PersistenceError{Op: "load movement", Err: err}
	}
	return &mv, nil
}

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		mv         Movement
		kind       string
		purchaseID pgtype.Int8
		saleID     pgtype.Int8
	)
	err := row.Scan(
		&mv.ID,
		&mv.MaterialID,
		&kind,
		&mv.QuantityDelta,
		&mv.BalanceBefore,
		&mv.BalanceAfter,
		&purchaseID,
		&saleID,
		&mv.OccurredAt,
		&mv.Note,
	)
	if err != nil {
		return Movement{}, err
	}
	mv.Kind = MovementKind(kind)
	if purchaseID.Valid {
		mv.PurchaseID = purchaseID.Int64
	}
	if saleID.Valid {
		mv.SaleID = saleID.Int64
	}
	return mv, nil
}
