package store

import (
	"context"
	"database/sql"

	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
)

// Catalog binds the product functions to one connection pool and reports
// unexpected database failures as storage errors.
type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	product, err := CreateProduct(ctx, c.db, p)
	return product, database.AsStorageError("create product", err)
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := GetProduct(ctx, c.db, id)
	return product, database.AsStorageError("get product", err)
}

func (c *Catalog) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*models.Product, error) {
	product, err := UpdateProduct(ctx, c.db, id, patch)
	return product, database.AsStorageError("update product", err)
}

func (c *Catalog) DeactivateProduct(ctx context.Context, id string) error {
	return database.AsStorageError("deactivate product", DeactivateProduct(ctx, c.db, id))
}

func (c *Catalog) ListProducts(ctx context.Context, category string, page, pageSize int) (*OffsetPage, error) {
	result, err := ListProducts(ctx, c.db, category, page, pageSize)
	return result, database.AsStorageError("list products", err)
}

func (c *Catalog) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	products, err := SearchProducts(ctx, c.db, term, limit)
	return products, database.AsStorageError("search products", err)
}

func (c *Catalog) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := ListCategories(ctx, c.db)
	return categories, database.AsStorageError("list categories", err)
}
