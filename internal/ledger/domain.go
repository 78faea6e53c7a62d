package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind enumerates the supported kinds of stock movements.
type MovementKind string

const (
	// KindPurchase marks stock bought in from a supplier.
	KindPurchase MovementKind = "PURCHASE"
	// KindSale marks stock sold out to a buyer.
	KindSale MovementKind = "SALE"
	// KindAdjustment marks corrections, including reversals of deleted
	// purchases and sales.
	KindAdjustment MovementKind = "ADJUSTMENT"
)

// Movement is one immutable ledger entry. Entries are only ever appended;
// a deleted purchase or sale produces a new compensating ADJUSTMENT rather
// than touching history. Ledger order is defined by ID, OccurredAt is for
// reporting only.
type Movement struct {
	ID            int64
	MaterialID    int64
	Kind          MovementKind
	QuantityDelta decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	// PurchaseID and SaleID back-reference the originating transaction.
	// Zero means absent; at most one of them is set.
	PurchaseID int64
	SaleID     int64
	OccurredAt time.Time
	Note       string
}

// Filter bounds a movement history query.
type Filter struct {
	MaterialID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// ErrInvalidQuantity indicates a zero or negative quantity on a
// movement-producing call.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrInvalidDelta indicates a zero adjustment delta.
var ErrInvalidDelta = errors.New("ledger: adjustment delta must be non zero")

// ErrMovementNotFound indicates an unknown movement id.
var ErrMovementNotFound = errors.New("ledger: movement not found")

// ErrNegativeBalance is returned only when the permissive negative-balance
// policy is disabled and a movement would drive the balance below zero.
var ErrNegativeBalance = errors.New("ledger: movement would drive balance negative")

// PersistenceError wraps a backing-store failure. Appends are never retried;
// the caller decides whether the surrounding unit of work is aborted.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
