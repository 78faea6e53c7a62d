package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	purchases decimal.Decimal
	sales     decimal.Decimal
	err       error
}

func (r *stubRepo) PurchaseTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return r.purchases, r.err
}

func (r *stubRepo) SalesTotal(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return r.sales, r.err
}

func TestSummaryDerivesGrossProfit(t *testing.T) {
	repo := &stubRepo{
		purchases: decimal.RequireFromString("1250.50"),
		sales:     decimal.RequireFromString("2100.00"),
	}
	svc := NewService(repo)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	summary, err := svc.Summary(context.Background(), from, to)
	require.NoError(t, err)

	assert.True(t, summary.PurchaseTotal.Equal(decimal.RequireFromString("1250.50")))
	assert.True(t, summary.SalesTotal.Equal(decimal.RequireFromString("2100.00")))
	assert.True(t, summary.GrossProfit.Equal(decimal.RequireFromString("849.50")))
	assert.Equal(t, from, summary.From)
	assert.Equal(t, to, summary.To)
}

func TestSummaryRejectsInvertedPeriod(t *testing.T) {
	svc := NewService(&stubRepo{})

	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Summary(context.Background(), at, at)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestSummaryPropagatesRepositoryError(t *testing.T) {
	svc := NewService(&stubRepo{err: errors.New("connection refused")})

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Summary(context.Background(), from, from.AddDate(0, 1, 0))
	assert.Error(t, err)
}
