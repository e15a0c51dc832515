package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"price-tracker/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store wraps the database handle. All queries run against ext, which is the
// pool by default and a transaction for stores returned by WithTx, so the
// orchestrator can scope a whole discovery or batch run to one transaction.
type Store struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, ext: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a transaction for a unit of work
func (s *Store) Begin(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

// WithTx returns a store bound to the given transaction
func (s *Store) WithTx(tx *sqlx.Tx) *Store {
	return &Store{db: s.db, ext: tx}
}

// GetProduct retrieves a product by ID and source. Returns (nil, nil) when
// the product has not been seen yet.
func (s *Store) GetProduct(ctx context.Context, productID int64, source string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, s.ext, &product,
		"SELECT * FROM products WHERE product_id = $1 AND source = $2", productID, source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpsertProduct creates or updates the canonical product record from a
// scraped snapshot
func (s *Store) UpsertProduct(ctx context.Context, snap *models.ProductSnapshot) error {
	query := `
		INSERT INTO products (
			product_id, source, product_type, name, description, brand, pack_size,
			price_amount, currency, unit_price_amount, unit_price_currency, unit_price_unit,
			available, alcohol, cooking_guidelines, categories, last_updated, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, NOW(), NOW()
		)
		ON CONFLICT (product_id, source) DO UPDATE SET
			product_type = EXCLUDED.product_type,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			brand = EXCLUDED.brand,
			pack_size = EXCLUDED.pack_size,
			price_amount = EXCLUDED.price_amount,
			currency = EXCLUDED.currency,
			unit_price_amount = EXCLUDED.unit_price_amount,
			unit_price_currency = EXCLUDED.unit_price_currency,
			unit_price_unit = EXCLUDED.unit_price_unit,
			available = EXCLUDED.available,
			alcohol = EXCLUDED.alcohol,
			cooking_guidelines = EXCLUDED.cooking_guidelines,
			categories = EXCLUDED.categories,
			last_updated = NOW()`

	_, err := s.ext.ExecContext(ctx, query,
		snap.ProductID, snap.Source, snap.ProductType, snap.Name, snap.Description,
		snap.Brand, snap.PackSize,
		snap.PriceAmount, snap.Currency, snap.UnitPriceAmount, snap.UnitPriceCurrency,
		snap.UnitPriceUnit,
		snap.Available, snap.Alcohol, snap.CookingGuidelines, toStringArray(snap.Categories))
	if err != nil {
		return fmt.Errorf("failed to upsert product %d/%s: %w", snap.ProductID, snap.Source, err)
	}
	return nil
}

// CountProducts returns how many products are tracked for a source
func (s *Store) CountProducts(ctx context.Context, source string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, s.ext, &count,
		"SELECT COUNT(*) FROM products WHERE source = $1", source)
	return count, err
}

// toStringArray keeps empty category lists as empty arrays rather than NULL
func toStringArray(ss []string) pq.StringArray {
	if ss == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ss)
}
