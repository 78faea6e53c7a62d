package trading

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metalyard/metalyard/internal/ledger"
	"github.com/metalyard/metalyard/internal/platform/db"
	"github.com/metalyard/metalyard/internal/shared"
)

// TxRepository exposes the writes available inside one unit of work,
// together with the ledger participant bound to the same transaction.
type TxRepository interface {
	InsertPurchase(ctx context.Context, p Purchase) (int64, error)
	UpdatePurchase(ctx context.Context, p Purchase) error
	DeletePurchase(ctx context.Context, id int64) error
	InsertSale(ctx context.Context, s Sale) (int64, error)
	UpdateSale(ctx context.Context, s Sale) error
	DeleteSale(ctx context.Context, id int64) error
	Ledger() ledger.TxStore
}

// RepositoryPort abstracts trading persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error)
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// Repository persists purchases and sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a serializable transaction whose ledger
// participant shares the same underlying transaction. Serializable keeps the
// read-latest-then-append pair inside the ledger participant safe against a
// concurrent writer on the same material; when the database aborts the losing
// transaction the whole unit of work fails with a ledger PersistenceError.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, ledger: ledger.TxStoreFor(tx)})
	})
	if db.IsSerializationFailure(err) {
		return &ledger.PersistenceError{Op: "commit movements", Err: err}
	}
	return err
}

const purchaseColumns = `id, material_id, supplier_name, supplier_document, supplier_phone, quantity, unit_price, total_value, occurred_at, note, created_at`

func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	const query = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`
	var p Purchase
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.MaterialID, &p.SupplierName, &p.SupplierDocument, &p.SupplierPhone,
		&p.Quantity, &p.UnitPrice, &p.TotalValue, &p.OccurredAt, &p.Note, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

func (r *Repository) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	where, args := rangeClause(filter, "occurred_at")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + purchaseColumns + ` FROM purchases` + where + ` ORDER BY occurred_at DESC, id DESC`
	query, args = paginate(query, args, filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(
			&p.ID, &p.MaterialID, &p.SupplierName, &p.SupplierDocument, &p.SupplierPhone,
			&p.Quantity, &p.UnitPrice, &p.TotalValue, &p.OccurredAt, &p.Note, &p.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

const saleColumns = `id, material_id, customer_name, customer_tax_id, customer_phone, customer_email, invoice_number, payment_status, quantity, unit_price, total_value, occurred_at, note, created_at`

func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	const query = `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	var s Sale
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.MaterialID, &s.CustomerName, &s.CustomerTaxID, &s.CustomerPhone, &s.CustomerEmail,
		&s.InvoiceNumber, &status, &s.Quantity, &s.UnitPrice, &s.TotalValue, &s.OccurredAt, &s.Note, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	s.PaymentStatus = PaymentStatus(status)
	return s, nil
}

func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	where, args := rangeClause(filter, "occurred_at")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + saleColumns + ` FROM sales` + where + ` ORDER BY occurred_at DESC, id DESC`
	query, args = paginate(query, args, filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var s Sale
		var status string
		if err := rows.Scan(
			&s.ID, &s.MaterialID, &s.CustomerName, &s.CustomerTaxID, &s.CustomerPhone, &s.CustomerEmail,
			&s.InvoiceNumber, &status, &s.Quantity, &s.UnitPrice, &s.TotalValue, &s.OccurredAt, &s.Note, &s.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		s.PaymentStatus = PaymentStatus(status)
		sales = append(sales, s)
	}
	return sales, total, rows.Err()
}

func rangeClause(filter ListFilter, column string) (string, []any) {
	where := ""
	var args []any
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += clausePrefix(where) + column + ` >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += clausePrefix(where) + column + ` <= $` + strconv.Itoa(len(args))
	}
	return where, args
}

func clausePrefix(where string) string {
	if where == "" {
		return " WHERE "
	}
	return " AND "
}

func paginate(query string, args []any, filter ListFilter) (string, []any) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	window := shared.Pagination{Page: page, PerPage: perPage}
	args = append(args, window.PerPage)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, window.Offset())
	query += ` OFFSET $` + strconv.Itoa(len(args))
	return query, args
}

type txRepo struct {
	tx     pgx.Tx
	ledger ledger.TxStore
}

func (t *txRepo) Ledger() ledger.TxStore {
	return t.ledger
}

func (t *txRepo) InsertPurchase(ctx context.Context, p Purchase) (int64, error) {
	const query = `INSERT INTO purchases
		(material_id, supplier_name, supplier_document, supplier_phone, quantity, unit_price, total_value, occurred_at, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		p.MaterialID, p.SupplierName, p.SupplierDocument, p.SupplierPhone,
		p.Quantity, p.UnitPrice, p.TotalValue, p.OccurredAt, p.Note, p.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) UpdatePurchase(ctx context.Context, p Purchase) error {
	const query = `UPDATE purchases
		SET supplier_name = $2, supplier_document = $3, supplier_phone = $4, unit_price = $5, total_value = $6, occurred_at = $7, note = $8
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		p.ID, p.SupplierName, p.SupplierDocument, p.SupplierPhone,
		p.UnitPrice, p.TotalValue, p.OccurredAt, p.Note,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeletePurchase(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertSale(ctx context.Context, s Sale) (int64, error) {
	const query = `INSERT INTO sales
		(material_id, customer_name, customer_tax_id, customer_phone, customer_email, invoice_number, payment_status, quantity, unit_price, total_value, occurred_at, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		s.MaterialID, s.CustomerName, s.CustomerTaxID, s.CustomerPhone, s.CustomerEmail,
		s.InvoiceNumber, string(s.PaymentStatus), s.Quantity, s.UnitPrice, s.TotalValue,
		s.OccurredAt, s.Note, s.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateSale(ctx context.Context, s Sale) error {
	const query = `UPDATE sales
		SET customer_name = $2, customer_tax_id = $3, customer_phone = $4, customer_email = $5, invoice_number = $6, payment_status = $7, unit_price = $8, total_value = $9, occurred_at = $10, note = $11
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		s.ID, s.CustomerName, s.CustomerTaxID, s.CustomerPhone, s.CustomerEmail,
		s.InvoiceNumber, string(s.PaymentStatus), s.UnitPrice, s.TotalValue, s.OccurredAt, s.Note,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteSale(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
