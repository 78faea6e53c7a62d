package catalog

import (
	"context"
	"fmt"
)

var validUnits = map[string]bool{"KG": true, "TON": true, "UN": true}

// Service coordinates catalog operations and keeps the reference cache in
// sync with writes.
type Service struct {
	repo  Repository
	cache *RefCache
}

// NewService builds Service. cache may be nil.
func NewService(repo Repository, cache *RefCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// List returns materials ordered by name, only active ones unless asked.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]Material, error) {
	return s.repo.List(ctx, includeInactive)
}

// Get returns a single material.
func (s *Service) Get(ctx context.Context, id int64) (Material, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and persists a new material.
func (s *Service) Create(ctx context.Context, material Material) (Material, error) {
	if err := validate(material); err != nil {
		return Material{}, err
	}
	return s.repo.Create(ctx, material)
}

// Update validates and persists changes to an existing material, then drops
// its cached reference snapshot.
func (s *Service) Update(ctx context.Context, material Material) error {
	if material.ID == 0 {
		return fmt.Errorf("%w: id required", ErrInvalidMaterial)
	}
	if err := validate(material); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, material); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, material.ID)
	}
	return nil
}

// Deactivate soft-deletes a material. Its movement history stays intact.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return nil
}

// ActiveMaterials lists the active materials for the valuation view.
func (s *Service) ActiveMaterials(ctx context.Context) ([]Material, error) {
	return s.repo.List(ctx, false)
}

// MaterialRef resolves the reference snapshot, through the cache when one is
// configured.
func (s *Service) MaterialRef(ctx context.Context, id int64) (Ref, error) {
	if s.cache != nil {
		return s.cache.Ref(ctx, id)
	}
	material, err := s.repo.Get(ctx, id)
	if err != nil {
		return Ref{}, err
	}
	return material.AsRef(), nil
}

func validate(m Material) error {
	if m.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidMaterial)
	}
	if !validUnits[m.Unit] {
		return fmt.Errorf("%w: unit must be KG, TON or UN", ErrInvalidMaterial)
	}
	if m.PurchasePrice.IsNegative() || m.SalePrice.IsNegative() {
		return fmt.Errorf("%w: prices must not be negative", ErrInvalidMaterial)
	}
	if m.MinimumStock.IsNegative() {
		return fmt.Errorf("%w: minimum stock must not be negative", ErrInvalidMaterial)
	}
	return nil
}
