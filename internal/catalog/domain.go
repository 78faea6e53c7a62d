// Package catalog maintains the traded materials: identity, pricing and the
// minimum-stock threshold used for low-stock alerts.
package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Material is a traded scrap metal type. Materials are soft-deleted: Active
// turns false and the row stays for historical movements to reference.
type Material struct {
	ID            int64
	Name          string
	Description   string
	Unit          string
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	MinimumStock  decimal.Decimal
	Active        bool
	CreatedAt     time.Time
}

// UnitProfit is the spread between sale and purchase price.
func (m Material) UnitProfit() decimal.Decimal {
	return m.SalePrice.Sub(m.PurchasePrice)
}

// ProfitMargin is the percentage margin over the purchase price, zero when
// the purchase price is not positive.
func (m Material) ProfitMargin() decimal.Decimal {
	if !m.PurchasePrice.IsPositive() {
		return decimal.Zero
	}
	return m.UnitProfit().Div(m.PurchasePrice).Mul(decimal.NewFromInt(100))
}

// Ref is the read-only identity and pricing snapshot handed to the stock
// valuation view. It is the cacheable subset of Material.
type Ref struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	MinimumStock  decimal.Decimal `json:"minimum_stock"`
	Active        bool            `json:"active"`
}

// AsRef projects the material onto its reference snapshot.
func (m Material) AsRef() Ref {
	return Ref{
		ID:            m.ID,
		Name:          m.Name,
		Unit:          m.Unit,
		PurchasePrice: m.PurchasePrice,
		SalePrice:     m.SalePrice,
		MinimumStock:  m.MinimumStock,
		Active:        m.Active,
	}
}

// ErrNotFound indicates an unknown material id.
var ErrNotFound = errors.New("catalog: material not found")

// ErrInvalidMaterial indicates a material failing basic validation.
var ErrInvalidMaterial = errors.New("catalog: invalid material")
