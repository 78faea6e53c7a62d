package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists materials.
type Repository interface {
	List(ctx context.Context, includeInactive bool) ([]Material, error)
	Get(ctx context.Context, id int64) (Material, error)
	Create(ctx context.Context, material Material) (Material, error)
	Update(ctx context.Context, material Material) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const materialColumns = `id, name, description, unit, purchase_price, sale_price, minimum_stock, active, created_at`

func (r *repository) List(ctx context.Context, includeInactive bool) ([]Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials`
	if !includeInactive {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Unit, &m.PurchasePrice, &m.SalePrice, &m.MinimumStock, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Material, error) {
	const query = `SELECT ` + materialColumns + ` FROM materials WHERE id = $1`
	var m Material
	err := r.pool.QueryRow(ctx, query, id).Scan(&m.ID, &m.Name, &m.Description, &m.Unit, &m.PurchasePrice, &m.SalePrice, &m.MinimumStock, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (r *repository) Create(ctx context.Context, material Material) (Material, error) {
	const query = `INSERT INTO materials (name, description, unit, purchase_price, sale_price, minimum_stock, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	material.CreatedAt = time.Now().UTC()
	material.Active = true
	err := r.pool.QueryRow(ctx, query,
		material.Name, material.Description, material.Unit,
		material.PurchasePrice, material.SalePrice, material.MinimumStock,
		material.Active, material.CreatedAt,
	).Scan(&material.ID)
	if err != nil {
		return Material{}, err
	}
	return material, nil
}

func (r *repository) Update(ctx context.Context, material Material) error {
	const query = `UPDATE materials
		SET name = $2, description = $3, unit = $4, purchase_price = $5, sale_price = $6, minimum_stock = $7
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		material.ID, material.Name, material.Description, material.Unit,
		material.PurchasePrice, material.SalePrice, material.MinimumStock,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE materials SET active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
