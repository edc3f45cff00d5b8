package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, barcode, name, description, category, brand, model,
	unit_cost, sale_price, wholesale_price, stock, min_stock, unit, active,
	created_at, updated_at, version`

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	var barcode sql.NullString
	var wholesale decimal.NullDecimal

	err := row.Scan(
		&product.ID,
		&barcode,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.Brand,
		&product.Model,
		&product.UnitCost,
		&product.SalePrice,
		&wholesale,
		&product.Stock,
		&product.MinStock,
		&product.Unit,
		&product.Active,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}

	if barcode.Valid {
		product.Barcode = &barcode.String
	}
	if wholesale.Valid {
		product.WholesalePrice = &wholesale.Decimal
	}
	return product, nil
}

// NewProductID returns an identifier in the PROD-XXXXXXXX form used by the
// catalog screens.
func NewProductID() string {
	return "PROD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func validateProduct(p *models.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return database.NewValidationError("name", "is required")
	}
	if p.SalePrice.IsNegative() {
		return database.NewValidationError("sale_price", "must not be negative")
	}
	if p.UnitCost.IsNegative() {
		return database.NewValidationError("unit_cost", "must not be negative")
	}
	if p.WholesalePrice != nil && p.WholesalePrice.IsNegative() {
		return database.NewValidationError("wholesale_price", "must not be negative")
	}
	if p.Stock < 0 {
		return database.NewValidationError("stock", "must not be negative")
	}
	if p.MinStock < 0 {
		return database.NewValidationError("min_stock", "must not be negative")
	}
	return nil
}

// CreateProduct inserts a catalog entry, filling the catalog defaults for
// id, category, unit and minimum stock.
func CreateProduct(ctx context.Context, db DBTX, p models.Product) (*models.Product, error) {
	if p.ID == "" {
		p.ID = NewProductID()
	}
	if strings.TrimSpace(p.Category) == "" {
		p.Category = models.DefaultCategory
	}
	if strings.TrimSpace(p.Unit) == "" {
		p.Unit = models.DefaultUnit
	}
	if p.MinStock == 0 {
		p.MinStock = models.DefaultMinStock
	}
	if err := validateProduct(&p); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO products (id, barcode, name, description, category, brand, model,
			unit_cost, sale_price, wholesale_price, stock, min_stock, unit, active,
			created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query,
		p.ID, p.Barcode, p.Name, p.Description, p.Category, p.Brand, p.Model,
		p.UnitCost, p.SalePrice, nullDecimal(p.WholesalePrice), p.Stock, p.MinStock, p.Unit,
	))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &database.ConflictError{Reason: "product id or barcode already exists", ID: p.ID}
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db DBTX, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ProductNotFound(id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// LockProduct reads a product and holds its row lock until the surrounding
// transaction ends.
func LockProduct(ctx context.Context, tx *sql.Tx, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	product, err := scanProduct(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ProductNotFound(id)
		}
		return nil, fmt.Errorf("lock product %s: %w", id, err)
	}

	return product, nil
}

// DecrementStock subtracts quantity in a single conditional update and
// returns the remaining stock. Zero affected rows means the product is
// missing or does not hold enough units; the two cases are told apart with
// a follow-up read in the same transaction.
func DecrementStock(ctx context.Context, db DBTX, productID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, database.NewValidationError("quantity", "must be greater than zero")
	}

	var remaining int
	err := db.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1
		 RETURNING stock`,
		quantity, productID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if database.IsCheckViolation(err) {
			return 0, &database.InsufficientStockError{ProductID: productID, Requested: quantity}
		}
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	var available int
	err = db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ProductNotFound(productID)
		}
		return 0, fmt.Errorf("read stock: %w", err)
	}

	return 0, &database.InsufficientStockError{
		ProductID: productID,
		Requested: quantity,
		Available: available,
	}
}

// IncrementStock adds quantity back regardless of the active flag.
func IncrementStock(ctx context.Context, db DBTX, productID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, database.NewValidationError("quantity", "must be greater than zero")
	}

	var stock int
	err := db.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock + $1,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING stock`,
		quantity, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ProductNotFound(productID)
		}
		return 0, fmt.Errorf("increment stock: %w", err)
	}

	return stock, nil
}

// ProductPatch holds the fields of a partial catalog edit; nil means keep.
type ProductPatch struct {
	Barcode        *string
	Name           *string
	Description    *string
	Category       *string
	Brand          *string
	Model          *string
	UnitCost       *decimal.Decimal
	SalePrice      *decimal.Decimal
	WholesalePrice *decimal.Decimal
	Stock          *int
	MinStock       *int
	Unit           *string
	// Version, when set, must match the stored version.
	Version *int
}

func (p ProductPatch) apply(product *models.Product) {
	if p.Barcode != nil {
		product.Barcode = p.Barcode
	}
	if p.Name != nil {
		product.Name = *p.Name
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Category != nil && strings.TrimSpace(*p.Category) != "" {
		product.Category = *p.Category
	}
	if p.Brand != nil {
		product.Brand = *p.Brand
	}
	if p.Model != nil {
		product.Model = *p.Model
	}
	if p.UnitCost != nil {
		product.UnitCost = *p.UnitCost
	}
	if p.SalePrice != nil {
		product.SalePrice = *p.SalePrice
	}
	if p.WholesalePrice != nil {
		product.WholesalePrice = p.WholesalePrice
	}
	if p.Stock != nil {
		product.Stock = *p.Stock
	}
	if p.MinStock != nil {
		product.MinStock = *p.MinStock
	}
	if p.Unit != nil && strings.TrimSpace(*p.Unit) != "" {
		product.Unit = *p.Unit
	}
}

// UpdateProduct applies a partial edit. The write is guarded by the row
// version so a concurrent edit or stock movement is never silently lost.
func UpdateProduct(ctx context.Context, db *sql.DB, id string, patch ProductPatch) (*models.Product, error) {
	current, err := GetProduct(ctx, db, id)
	if err != nil {
		return nil, err
	}

	version := current.Version
	if patch.Version != nil {
		version = *patch.Version
	}

	patch.apply(current)
	if err := validateProduct(current); err != nil {
		return nil, err
	}

	query := `
		UPDATE products SET
			barcode = $1, name = $2, description = $3, category = $4, brand = $5, model = $6,
			unit_cost = $7, sale_price = $8, wholesale_price = $9, stock = $10, min_stock = $11,
			unit = $12, version = version + 1, updated_at = NOW()
		WHERE id = $13 AND version = $14
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query,
		current.Barcode, current.Name, current.Description, current.Category, current.Brand, current.Model,
		current.UnitCost, current.SalePrice, nullDecimal(current.WholesalePrice), current.Stock, current.MinStock,
		current.Unit, id, version,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &database.ConflictError{Reason: database.ErrOptimisticLockFailed.Reason, ID: id}
		}
		if database.IsUniqueViolation(err) {
			return nil, &database.ConflictError{Reason: "product id or barcode already exists", ID: id}
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

// DeactivateProduct hides a product from the catalog. Rows are never
// deleted because historical sale lines reference them.
func DeactivateProduct(ctx context.Context, db DBTX, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET active = FALSE, updated_at = NOW(), version = version + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ProductNotFound(id)
	}

	return nil
}

func ListProducts(ctx context.Context, db DBTX, category string, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE active AND ($1 = '' OR category = $1)`,
		category).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE active AND ($1 = '' OR category = $1)
		ORDER BY name, id
		LIMIT $2 OFFSET $3`

	rows, err := db.QueryContext(ctx, query, category, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

// SearchProducts matches name, description or barcode, case-insensitively.
func SearchProducts(ctx context.Context, db DBTX, term string, limit int) ([]models.Product, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"

	rows, err := db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active
		  AND (name ILIKE $1 OR description ILIKE $1 OR COALESCE(barcode, '') ILIKE $1)
		ORDER BY name, id
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func ListCategories(ctx context.Context, db DBTX) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT category
		FROM products
		WHERE active AND category <> ''
		ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

func collectProducts(rows *sql.Rows) ([]models.Product, error) {
	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ProductLedger is the stock-keeping view of the catalog used by the sale
// transaction manager.
type ProductLedger struct{}

func (ProductLedger) Lock(ctx context.Context, tx *sql.Tx, id string) (*models.Product, error) {
	return LockProduct(ctx, tx, id)
}

func (ProductLedger) DecrementStock(ctx context.Context, q DBTX, id string, quantity int) (int, error) {
	return DecrementStock(ctx, q, id, quantity)
}

func (ProductLedger) IncrementStock(ctx context.Context, q DBTX, id string, quantity int) (int, error) {
	return IncrementStock(ctx, q, id, quantity)
}
