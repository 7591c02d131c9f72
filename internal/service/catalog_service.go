package service

import (
	"context"
	"strings"

	"upsell-service/internal/models"

	"github.com/go-faster/errors"
)

// CatalogWriter stores products pushed by the host catalog
type CatalogWriter interface {
	Catalog
	UpsertProduct(ctx context.Context, product *models.Product) error
}

// CatalogService keeps the local product view in sync with the host catalog
type CatalogService struct {
	products CatalogWriter
}

// NewCatalogService creates a new catalog service
func NewCatalogService(products CatalogWriter) *CatalogService {
	return &CatalogService{products: products}
}

// SyncProduct creates or replaces a product
func (s *CatalogService) SyncProduct(ctx context.Context, product *models.Product) error {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID <= 0 {
		return errors.Wrap(ErrInvalidInput, "product id is required")
	}
	if product.Price.IsNegative() {
		return errors.Wrapf(ErrInvalidInput, "negative price %s", product.Price)
	}
	for _, id := range product.CategoryIDs {
		if id <= 0 {
			return errors.Wrapf(ErrInvalidInput, "invalid category id %d", id)
		}
	}
	if err := s.products.UpsertProduct(ctx, product); err != nil {
		return errors.Wrap(err, "upsert product")
	}
	return nil
}

// GetProduct returns a product by id
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.products.GetProduct(ctx, id)
}
