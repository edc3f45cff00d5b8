// Package sales records and reverses point-of-sale transactions. A sale
// header, its product and service lines, and every stock movement it causes
// are written in one database transaction: callers observe all of it or
// none of it.
package sales

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/safar/stationery-pos/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the VAT applied when a sale does not carry its own tax.
var DefaultTaxRate = decimal.RequireFromString("0.16")

const defaultCancelReason = "no reason given"

// ProductLedger is the stock view the manager depends on. Lock reads a
// product under a row lock; stock is only ever changed through the two
// counters.
type ProductLedger interface {
	Lock(ctx context.Context, tx *sql.Tx, id string) (*models.Product, error)
	DecrementStock(ctx context.Context, q store.DBTX, id string, quantity int) (int, error)
	IncrementStock(ctx context.Context, q store.DBTX, id string, quantity int) (int, error)
}

type Manager struct {
	db      *sql.DB
	ledger  ProductLedger
	taxRate decimal.Decimal
	txOpts  database.TxOptions
	newID   func() string
}

type Option func(*Manager)

func WithTaxRate(rate decimal.Decimal) Option {
	return func(m *Manager) { m.taxRate = rate }
}

func WithMaxRetries(n int) Option {
	return func(m *Manager) { m.txOpts.MaxRetries = n }
}

func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

func NewManager(db *sql.DB, ledger ProductLedger, opts ...Option) *Manager {
	m := &Manager{
		db:      db,
		ledger:  ledger,
		taxRate: DefaultTaxRate,
		txOpts:  database.DefaultTxOptions(),
		newID:   NewSaleID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewSaleID returns a random, unguessable sale identifier. The SALE- prefix
// keeps it disjoint from PROD- product identifiers.
func NewSaleID() string {
	return "SALE-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// ComputeTax returns the explicit tax when given, otherwise subtotal × rate
// rounded to cents.
func ComputeTax(subtotal decimal.Decimal, tax *decimal.Decimal, rate decimal.Decimal) decimal.Decimal {
	if tax != nil {
		return tax.Round(2)
	}
	return subtotal.Mul(rate).Round(2)
}

// CreateSale validates the ticket, locks every product it touches, checks
// stock for all lines before writing anything, then persists the header,
// the lines and the stock decrements in one transaction.
func (m *Manager) CreateSale(ctx context.Context, req CreateSaleRequest) (*models.Sale, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	subtotal := req.Subtotal.Round(2)
	tax := ComputeTax(subtotal, req.Tax, m.taxRate)
	total := subtotal.Add(tax)
	if !req.Total.Round(2).Equal(total) {
		return nil, database.NewValidationError("total",
			fmt.Sprintf("must equal subtotal plus tax (%s), got %s", total.StringFixed(2), req.Total.StringFixed(2)))
	}

	saleID := m.newID()
	quantities := req.quantitiesByProduct()

	// Lock in a stable order so two tickets sharing products cannot deadlock.
	productIDs := make([]string, 0, len(quantities))
	for id := range quantities {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	var sale *models.Sale
	err := database.WithRetry(ctx, m.db, m.txOpts, func(tx *sql.Tx) error {
		products := make(map[string]*models.Product, len(productIDs))
		for _, id := range productIDs {
			product, err := m.ledger.Lock(ctx, tx, id)
			if err != nil {
				return err
			}
			if product.Stock < quantities[id] {
				return &database.InsufficientStockError{
					ProductID: id,
					Requested: quantities[id],
					Available: product.Stock,
				}
			}
			products[id] = product
		}

		sale = &models.Sale{
			ID:            saleID,
			Subtotal:      subtotal,
			Tax:           tax,
			Total:         total,
			PaymentMethod: req.PaymentMethod,
			Status:        models.SaleStatusCompleted,
			Notes:         req.Notes,
		}
		if err := store.InsertSale(ctx, tx, sale); err != nil {
			return err
		}

		for _, item := range req.Items {
			unitPrice := products[item.ProductID].SalePrice
			if item.UnitPrice != nil {
				unitPrice = item.UnitPrice.Round(2)
			}
			if err := checkLineSubtotal("items", unitPrice, item.Quantity); err != nil {
				return err
			}

			line := models.SaleItem{
				SaleID:    saleID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: unitPrice,
				Subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			}
			if err := store.InsertSaleItem(ctx, tx, &line); err != nil {
				return err
			}

			if _, err := m.ledger.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}

			line.ProductName = products[item.ProductID].Name
			line.ProductCategory = products[item.ProductID].Category
			sale.Items = append(sale.Items, line)
		}

		for _, svc := range req.Services {
			unitPrice := svc.UnitPrice.Round(2)
			line := models.SaleService{
				SaleID:      saleID,
				ServiceType: strings.TrimSpace(svc.Type),
				Description: strings.TrimSpace(svc.Description),
				Quantity:    svc.Quantity,
				UnitPrice:   unitPrice,
				Subtotal:    unitPrice.Mul(decimal.NewFromInt(int64(svc.Quantity))),
				Details:     svc.Details,
			}
			if err := store.InsertSaleService(ctx, tx, &line); err != nil {
				return err
			}
			sale.Services = append(sale.Services, line)
		}

		return nil
	})
	if err != nil {
		return nil, database.AsStorageError("create sale", err)
	}

	return sale, nil
}

// CancelSale marks a completed sale as cancelled and returns every product
// unit it took, including units of products deactivated since. Service
// lines are consumed and stay as they are.
func (m *Manager) CancelSale(ctx context.Context, saleID string, reason *string) (*models.Sale, error) {
	if strings.TrimSpace(saleID) == "" {
		return nil, database.NewValidationError("sale_id", "is required")
	}

	note := defaultCancelReason
	if reason != nil && strings.TrimSpace(*reason) != "" {
		note = strings.TrimSpace(*reason)
	}
	note = "Cancelled: " + note

	var sale *models.Sale
	err := database.WithRetry(ctx, m.db, m.txOpts, func(tx *sql.Tx) error {
		current, err := store.LockSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if current.Status == models.SaleStatusCancelled {
			return &database.ConflictError{Reason: database.ErrSaleAlreadyCancelled.Reason, ID: saleID}
		}

		sale, err = store.MarkSaleCancelled(ctx, tx, saleID, note)
		if err != nil {
			return err
		}

		items, err := store.ListSaleItems(ctx, tx, saleID)
		if err != nil {
			return err
		}

		for _, item := range items {
			if _, err := m.ledger.IncrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		sale.Items = items
		return nil
	})
	if err != nil {
		return nil, database.AsStorageError("cancel sale", err)
	}

	return sale, nil
}

func (m *Manager) GetSale(ctx context.Context, id string) (*models.Sale, error) {
	sale, err := store.GetSale(ctx, m.db, id)
	if err != nil {
		return nil, database.AsStorageError("get sale", err)
	}
	return sale, nil
}

func (m *Manager) ListSales(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	result, err := store.ListSales(ctx, m.db, page, pageSize)
	if err != nil {
		return nil, database.AsStorageError("list sales", err)
	}
	return result, nil
}

func (m *Manager) ListSalesCursor(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	result, err := store.ListSalesCursor(ctx, m.db, cursor, limit)
	if err != nil {
		return nil, database.AsStorageError("list sales", err)
	}
	return result, nil
}
