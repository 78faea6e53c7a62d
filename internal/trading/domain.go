// Package trading owns the purchase and sale workflow. Saving a transaction
// row and appending its ledger movement happen inside one unit of work:
// neither can exist without the other.
package trading

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks settlement of a sale.
type PaymentStatus string

const (
	// PaymentPending marks an unsettled sale.
	PaymentPending PaymentStatus = "PENDING"
	// PaymentPaid marks a settled sale.
	PaymentPaid PaymentStatus = "PAID"
	// PaymentCancelled marks a cancelled settlement; the stock movement
	// stays until the sale itself is deleted.
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Purchase is scrap bought in from a supplier, typically an individual
// collector.
type Purchase struct {
	ID               int64           `json:"id"`
	MaterialID       int64           `json:"material_id"`
	SupplierName     string          `json:"supplier_name"`
	SupplierDocument string          `json:"supplier_document,omitempty"`
	SupplierPhone    string          `json:"supplier_phone,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	// TotalValue is always quantity times unit price, recomputed on every
	// save.
	TotalValue decimal.Decimal `json:"total_value"`
	OccurredAt time.Time       `json:"occurred_at"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Sale is scrap sold out to an industrial buyer.
type Sale struct {
	ID            int64           `json:"id"`
	MaterialID    int64           `json:"material_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerTaxID string          `json:"customer_tax_id,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalValue    decimal.Decimal `json:"total_value"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListFilter bounds purchase/sale listings.
type ListFilter struct {
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// ErrNotFound indicates an unknown purchase or sale id.
var ErrNotFound = errors.New("trading: record not found")

// ErrQuantityImmutable rejects quantity edits after creation. The recorded
// movement reflects the original quantity; an edit would silently desync the
// ledger from the row. Delete and re-create instead.
var ErrQuantityImmutable = errors.New("trading: quantity cannot change after creation")

// ErrInvalidInput indicates a purchase or sale failing basic validation.
var ErrInvalidInput = errors.New("trading: invalid input")
