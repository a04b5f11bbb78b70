package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoapp/toko/internal/models"
)

// ErrInsufficientStock is returned when a conditional stock decrement finds
// less stock than requested.
var ErrInsufficientStock = errors.New("insufficient stock")

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

const productColumns = `id, name, slug, brand, description, price, stock, image_url, is_active, category, created_at, updated_at`

func (s *ProductStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *ProductStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Upsert inserts or refreshes a catalog row, keyed by slug. Used by the
// seed tool; the storefront itself never mutates the catalog.
func (s *ProductStore) Upsert(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, slug, brand, description, price, stock, image_url, is_active, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name,
		    brand = EXCLUDED.brand,
		    description = EXCLUDED.description,
		    price = EXCLUDED.price,
		    stock = EXCLUDED.stock,
		    image_url = EXCLUDED.image_url,
		    is_active = EXCLUDED.is_active,
		    category = EXCLUDED.category,
		    updated_at = NOW()`,
		product.ID, product.Name, product.Slug, nullText(product.Brand), nullText(product.Description),
		product.Price, product.Stock, nullText(product.ImageURL), product.IsActive, nullText(product.Category))
	if err != nil {
		return fmt.Errorf("failed to upsert product %q: %w", product.Slug, err)
	}
	return nil
}

// reserveStock decrements available stock inside tx, rejecting if the
// precondition no longer holds. Concurrent checkouts race on this row, so
// the decrement is conditional rather than a blind overwrite.
func reserveStock(ctx context.Context, tx pgx.Tx, productID uuid.UUID, quantity int) error {
	tag, err := tx.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND is_active AND stock >= $2`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock for product %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
	}
	return nil
}

type productRowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row productRowScanner) (models.Product, error) {
	var (
		product     models.Product
		brand       pgtype.Text
		description pgtype.Text
		imageURL    pgtype.Text
		category    pgtype.Text
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)

	err := row.Scan(
		&product.ID, &product.Name, &product.Slug, &brand, &description,
		&product.Price, &product.Stock, &imageURL, &product.IsActive, &category,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return models.Product{}, err
	}

	product.Brand = brand.String
	product.Description = description.String
	product.ImageURL = imageURL.String
	product.Category = category.String
	product.CreatedAt = createdAt.Time
	product.UpdatedAt = updatedAt.Time
	return product, nil
}

func nullText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}
