package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
)

const saleColumns = `id, sold_at, subtotal, tax, total, payment_method, status, notes,
	cancelled_at, created_at, updated_at`

func scanSale(row rowScanner) (*models.Sale, error) {
	sale := &models.Sale{}
	var notes sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(
		&sale.ID,
		&sale.SoldAt,
		&sale.Subtotal,
		&sale.Tax,
		&sale.Total,
		&sale.PaymentMethod,
		&sale.Status,
		&notes,
		&cancelledAt,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if notes.Valid {
		sale.Notes = &notes.String
	}
	if cancelledAt.Valid {
		sale.CancelledAt = &cancelledAt.Time
	}
	return sale, nil
}

// InsertSale writes the sale header and fills the server-side timestamps.
func InsertSale(ctx context.Context, tx *sql.Tx, sale *models.Sale) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO sales (id, sold_at, subtotal, tax, total, payment_method, status, notes, created_at, updated_at)
		 VALUES ($1, NOW(), $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 RETURNING sold_at, created_at, updated_at`,
		sale.ID, sale.Subtotal, sale.Tax, sale.Total, sale.PaymentMethod, sale.Status, sale.Notes,
	).Scan(&sale.SoldAt, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create sale: %w", err)
	}
	return nil
}

func InsertSaleItem(ctx context.Context, tx *sql.Tx, item *models.SaleItem) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, subtotal, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, created_at`,
		item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create sale item: %w", err)
	}
	return nil
}

func InsertSaleService(ctx context.Context, tx *sql.Tx, svc *models.SaleService) error {
	var details any
	if len(svc.Details) > 0 {
		details = []byte(svc.Details)
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO sale_services (sale_id, service_type, description, quantity, unit_price, subtotal, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		svc.SaleID, svc.ServiceType, svc.Description, svc.Quantity, svc.UnitPrice, svc.Subtotal, details,
	).Scan(&svc.ID, &svc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create sale service: %w", err)
	}
	return nil
}

// LockSale reads a sale header and holds its row lock for the rest of the
// transaction, serialising concurrent cancellations of the same sale.
func LockSale(ctx context.Context, tx *sql.Tx, id string) (*models.Sale, error) {
	sale, err := scanSale(tx.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.SaleNotFound(id)
		}
		return nil, fmt.Errorf("lock sale: %w", err)
	}
	return sale, nil
}

// MarkSaleCancelled flips a completed sale to cancelled and appends note to
// its notes. The status predicate makes the transition happen at most once.
func MarkSaleCancelled(ctx context.Context, tx *sql.Tx, id, note string) (*models.Sale, error) {
	sale, err := scanSale(tx.QueryRowContext(ctx,
		`UPDATE sales
		 SET status = $1,
		     notes = CASE WHEN notes IS NULL OR notes = '' THEN $2 ELSE notes || ' | ' || $2 END,
		     cancelled_at = NOW(),
		     updated_at = NOW()
		 WHERE id = $3 AND status = $4
		 RETURNING `+saleColumns,
		models.SaleStatusCancelled, note, id, models.SaleStatusCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &database.ConflictError{Reason: database.ErrSaleAlreadyCancelled.Reason, ID: id}
		}
		return nil, fmt.Errorf("cancel sale: %w", err)
	}
	return sale, nil
}

func ListSaleItems(ctx context.Context, db DBTX, saleID string) ([]models.SaleItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, si.quantity, si.unit_price, si.subtotal, si.created_at,
		       COALESCE(p.name, ''), COALESCE(p.category, '')
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
		ORDER BY si.id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale items: %w", err)
	}
	defer rows.Close()

	var items []models.SaleItem
	for rows.Next() {
		var item models.SaleItem
		err := rows.Scan(
			&item.ID,
			&item.SaleID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
			&item.ProductName,
			&item.ProductCategory,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListSaleServices(ctx context.Context, db DBTX, saleID string) ([]models.SaleService, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, sale_id, service_type, description, quantity, unit_price, subtotal, details, created_at
		FROM sale_services
		WHERE sale_id = $1
		ORDER BY id`, saleID)
	if err != nil {
		return nil, fmt.Errorf("get sale services: %w", err)
	}
	defer rows.Close()

	var services []models.SaleService
	for rows.Next() {
		var svc models.SaleService
		var details []byte
		err := rows.Scan(
			&svc.ID,
			&svc.SaleID,
			&svc.ServiceType,
			&svc.Description,
			&svc.Quantity,
			&svc.UnitPrice,
			&svc.Subtotal,
			&details,
			&svc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale service: %w", err)
		}
		if len(details) > 0 {
			svc.Details = details
		}
		services = append(services, svc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return services, nil
}

// GetSale loads a sale header with its product and service lines.
func GetSale(ctx context.Context, db DBTX, id string) (*models.Sale, error) {
	sale, err := scanSale(db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.SaleNotFound(id)
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	if sale.Items, err = ListSaleItems(ctx, db, id); err != nil {
		return nil, err
	}
	if sale.Services, err = ListSaleServices(ctx, db, id); err != nil {
		return nil, err
	}

	return sale, nil
}

func ListSales(ctx context.Context, db DBTX, page, pageSize int) (*OffsetPage, error) {
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count sales: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		ORDER BY sold_at DESC, id DESC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales, err := collectSales(rows)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(sales, total, page, pageSize), nil
}

func ListSalesCursor(ctx context.Context, db DBTX, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, database.NewValidationError("cursor", err.Error())
	}

	var rows *sql.Rows
	if cursorData == nil {
		rows, err = db.QueryContext(ctx, `
			SELECT `+saleColumns+`
			FROM sales
			ORDER BY sold_at DESC, id DESC
			LIMIT $1`, limit+1)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT `+saleColumns+`
			FROM sales
			WHERE (sold_at, id) < ($1, $2)
			ORDER BY sold_at DESC, id DESC
			LIMIT $3`, cursorData.SoldAt, cursorData.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales, err := collectSales(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(sales) > limit
	if hasMore {
		sales = sales[:limit]
	}

	var nextCursor string
	if hasMore && len(sales) > 0 {
		last := sales[len(sales)-1]
		nextCursor = EncodeCursor(SaleCursor{
			SoldAt: last.SoldAt,
			ID:     last.ID,
		})
	}

	return &CursorPage{
		Items:      sales,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func collectSales(rows *sql.Rows) ([]models.Sale, error) {
	sales := []models.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, *sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sales, nil
}
