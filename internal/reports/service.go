package reports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Summary is the financial overview of a period: money out on purchases,
// money in on sales, and the spread between them.
type Summary struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	PurchaseTotal decimal.Decimal `json:"purchase_total"`
	SalesTotal    decimal.Decimal `json:"sales_total"`
	GrossProfit   decimal.Decimal `json:"gross_profit"`
}

// ErrInvalidPeriod indicates from is not before to.
var ErrInvalidPeriod = errors.New("reports: period start must precede end")

// Service answers period summary queries.
type Service struct {
	repo RepositoryPort
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Summary sums purchases and sales over [from, to) and derives the gross
// profit. The two sums run concurrently.
func (s *Service) Summary(ctx context.Context, from, to time.Time) (Summary, error) {
	if !from.Before(to) {
		return Summary{}, ErrInvalidPeriod
	}

	var purchases, sales decimal.Decimal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		purchases, err = s.repo.PurchaseTotal(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = s.repo.SalesTotal(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	return Summary{
		From:          from,
		To:            to,
		PurchaseTotal: purchases,
		SalesTotal:    sales,
		GrossProfit:   sales.Sub(purchases),
	}, nil
}
