package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"upsell-service/internal/models"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a rule, product or event row does not exist
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

const productQuery = `
	SELECT p.id, p.name, p.price, p.image_url,
		COALESCE(array_agg(pc.category_id) FILTER (WHERE pc.category_id IS NOT NULL), '{}') AS category_ids
	FROM products p
	LEFT JOIN product_categories pc ON pc.product_id = p.id`

// GetProduct retrieves a catalog product with its category ids
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, productQuery+" WHERE p.id = $1 GROUP BY p.id", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "product %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs. Unknown ids are skipped.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		productQuery+" WHERE p.id = ANY($1) GROUP BY p.id ORDER BY p.id", pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	return products, nil
}

// UpsertProduct writes a catalog product and replaces its category links
func (s *Store) UpsertProduct(ctx context.Context, product *models.Product) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, price, image_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, image_url = EXCLUDED.image_url`,
		product.ID, product.Name, product.Price, product.ImageURL)
	if err != nil {
		return errors.Wrap(err, "upsert product")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM product_categories WHERE product_id = $1", product.ID); err != nil {
		return errors.Wrap(err, "clear product categories")
	}

	for _, categoryID := range product.CategoryIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO product_categories (product_id, category_id) VALUES ($1, $2)",
			product.ID, categoryID)
		if err != nil {
			return errors.Wrap(err, "link product category")
		}
	}

	return tx.Commit()
}
