package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Engine derives the next balance for a material and appends movement
// records. Every movement-producing operation takes the caller's TxStore so
// the append participates in the caller's transaction; the engine never
// commits on its own behalf except in PostAdjustment, which owns its unit of
// work.
type Engine struct {
	store         StorePort
	allowNegative bool
}

// Config groups engine policies.
type Config struct {
	// AllowNegativeBalance keeps the permissive behaviour where a sale may
	// drive stock below zero. When disabled such movements fail with
	// ErrNegativeBalance.
	AllowNegativeBalance bool
}

// NewEngine builds Engine.
func NewEngine(store StorePort, cfg Config) *Engine {
	return &Engine{store: store, allowNegative: cfg.AllowNegativeBalance}
}

// RecordPurchase appends a PURCHASE movement increasing the material balance
// by qty. purchaseID back-references the already-persisted purchase row.
func (e *Engine) RecordPurchase(ctx context.Context, tx TxStore, materialID int64, qty decimal.Decimal, purchaseID int64, note string) (Movement, error) {
	if materialID == 0 {
		return Movement{}, errors.New("ledger: material required")
	}
	if !qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	return e.append(ctx, tx, Movement{
		MaterialID:    materialID,
		Kind:          KindPurchase,
		QuantityDelta: qty,
		PurchaseID:    purchaseID,
		Note:          note,
	})
}

// RecordSale appends a SALE movement decreasing the material balance by qty.
func (e *Engine) RecordSale(ctx context.Context, tx TxStore, materialID int64, qty decimal.Decimal, saleID int64, note string) (Movement, error) {
	if materialID == 0 {
		return Movement{}, errors.New("ledger: material required")
	}
	if !qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	return e.append(ctx, tx, Movement{
		MaterialID:    materialID,
		Kind:          KindSale,
		QuantityDelta: qty.Neg(),
		SaleID:        saleID,
		Note:          note,
	})
}

// Reverse appends a compensating ADJUSTMENT for the given movement. The
// balance before the adjustment is the current latest balance, not the
// original movement's: a reversal is a forward correction in ledger order,
// never a structural undo of history.
func (e *Engine) Reverse(ctx context.Context, tx TxStore, movementID int64, note string) (Movement, error) {
	original, err := tx.Get(ctx, movementID)
	if err != nil {
		return Movement{}, err
	}
	if note == "" {
		note = fmt.Sprintf("reversal of movement #%d", original.ID)
	}
	return e.append(ctx, tx, Movement{
		MaterialID:    original.MaterialID,
		Kind:          KindAdjustment,
		QuantityDelta: original.QuantityDelta.Neg(),
		Note:          note,
	})
}

// PostAdjustment appends a manual correction with the given signed delta.
// Unlike the record and reverse operations it owns its unit of work.
func (e *Engine) PostAdjustment(ctx context.Context, materialID int64, delta decimal.Decimal, note string) (Movement, error) {
	if materialID == 0 {
		return Movement{}, errors.New("ledger: material required")
	}
	if delta.IsZero() {
		return Movement{}, ErrInvalidDelta
	}
	var mv Movement
	err := e.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		mv, err = e.append(ctx, tx, Movement{
			MaterialID:    materialID,
			Kind:          KindAdjustment,
			QuantityDelta: delta,
			Note:          note,
		})
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	return mv, nil
}

// CurrentBalance is the balance after the material's latest movement, zero
// when the material has no movements.
func (e *Engine) CurrentBalance(ctx context.Context, materialID int64) (decimal.Decimal, error) {
	latest, err := e.store.LatestFor(ctx, materialID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.BalanceAfter, nil
}

// History lists movements for a material newest-first.
func (e *Engine) History(ctx context.Context, filter Filter) ([]Movement, error) {
	if filter.MaterialID == 0 {
		return nil, errors.New("ledger: material required")
	}
	return e.store.ListFor(ctx, filter)
}

func (e *Engine) append(ctx context.Context, tx TxStore, mv Movement) (Movement, error) {
	latest, err := tx.LatestFor(ctx, mv.MaterialID)
	if err != nil {
		return Movement{}, err
	}
	before := decimal.Zero
	if latest != nil {
		before = latest.BalanceAfter
	}
	after := before.Add(mv.QuantityDelta)
	if !e.allowNegative && after.IsNegative() {
		return Movement{}, ErrNegativeBalance
	}

	mv.BalanceBefore = before
	mv.BalanceAfter = after
	mv.OccurredAt = time.Now().UTC()

	id, err := tx.Append(ctx, mv)
	if err != nil {
		return Movement{}, err
	}
	mv.ID = id
	return mv, nil
}
