// Package stock derives the valuation view: per-material balances joined
// with catalog pricing, including the low-stock flag.
package stock

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/metalyard/metalyard/internal/catalog"
)

// Snapshot is the derived stock position of one material. It is never
// persisted.
type Snapshot struct {
	MaterialID     int64           `json:"material_id"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	MinimumStock   decimal.Decimal `json:"minimum_stock"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	UnitSalePrice  decimal.Decimal `json:"unit_sale_price"`
	StockValue     decimal.Decimal `json:"stock_value"`
	BelowMinimum   bool            `json:"below_minimum"`
}

// MaterialSource provides catalog lookups.
type MaterialSource interface {
	ActiveMaterials(ctx context.Context) ([]catalog.Material, error)
	MaterialRef(ctx context.Context, id int64) (catalog.Ref, error)
}

// BalanceSource provides the current ledger balance per material.
type BalanceSource interface {
	CurrentBalance(ctx context.Context, materialID int64) (decimal.Decimal, error)
}

// Service computes stock snapshots. It is a pure read over the catalog and
// the ledger.
type Service struct {
	materials MaterialSource
	balances  BalanceSource
	collator  *collate.Collator
}

// NewService builds Service. Snapshots sort by material name under
// Portuguese collation; the catalog carries names like Alumínio and Aço
// where byte order misplaces the accents.
func NewService(materials MaterialSource, balances BalanceSource) *Service {
	return &Service{
		materials: materials,
		balances:  balances,
		collator:  collate.New(language.BrazilianPortuguese),
	}
}

// SnapshotAll returns one snapshot per active material, sorted by name. A
// material without movements yields balance zero.
func (s *Service) SnapshotAll(ctx context.Context) ([]Snapshot, error) {
	materials, err := s.materials.ActiveMaterials(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([]Snapshot, 0, len(materials))
	for _, m := range materials {
		snap, err := s.snapshotFor(ctx, m.AsRef())
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return s.collator.CompareString(snapshots[i].Name, snapshots[j].Name) < 0
	})
	return snapshots, nil
}

// SnapshotOne computes the snapshot for a single material. An unknown
// material fails with catalog.ErrNotFound; a material without movements is
// simply balance zero.
func (s *Service) SnapshotOne(ctx context.Context, materialID int64) (Snapshot, error) {
	ref, err := s.materials.MaterialRef(ctx, materialID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshotFor(ctx, ref)
}

// LowStock returns the active materials currently below their minimum.
func (s *Service) LowStock(ctx context.Context) ([]Snapshot, error) {
	snapshots, err := s.SnapshotAll(ctx)
	if err != nil {
		return nil, err
	}
	low := snapshots[:0]
	for _, snap := range snapshots {
		if snap.BelowMinimum {
			low = append(low, snap)
		}
	}
	return low, nil
}

func (s *Service) snapshotFor(ctx context.Context, ref catalog.Ref) (Snapshot, error) {
	balance, err := s.balances.CurrentBalance(ctx, ref.ID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		MaterialID:     ref.ID,
		Name:           ref.Name,
		Unit:           ref.Unit,
		CurrentBalance: balance,
		MinimumStock:   ref.MinimumStock,
		UnitCost:       ref.PurchasePrice,
		UnitSalePrice:  ref.SalePrice,
		StockValue:     balance.Mul(ref.PurchasePrice),
		BelowMinimum:   balance.LessThan(ref.MinimumStock),
	}, nil
}
