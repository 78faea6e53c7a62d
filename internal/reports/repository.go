// Package reports aggregates purchase and sale totals over a period.
package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort exposes the period aggregates the summary needs.
type RepositoryPort interface {
	PurchaseTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	SalesTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// Repository computes aggregates straight in SQL. The sums run over
// total_value so they match what the ledger recorded row by row.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) PurchaseTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return r.sumTotal(ctx, "purchases", from, to)
}

func (r *Repository) SalesTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return r.sumTotal(ctx, "sales", from, to)
}

func (r *Repository) sumTotal(ctx context.Context, table string, from, to time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(total_value), 0) FROM ` + table + ` WHERE occurred_at >= $1 AND occurred_at < $2`
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, from, to).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
