package sales

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/safar/stationery-pos/internal/store"
	"github.com/safar/stationery-pos/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createProduct(t *testing.T, db *sql.DB, id string, price int64, stock int) *models.Product {
	t.Helper()

	product, err := store.CreateProduct(context.Background(), db, models.Product{
		ID:        id,
		Name:      "Product " + id,
		Category:  "Papelería",
		UnitCost:  decimal.NewFromInt(price / 2),
		SalePrice: decimal.NewFromInt(price),
		Stock:     stock,
	})
	require.NoError(t, err)
	return product
}

func stockOf(t *testing.T, db *sql.DB, id string) int {
	t.Helper()

	product, err := store.GetProduct(context.Background(), db, id)
	require.NoError(t, err)
	return product.Stock
}

func TestSaleScenario(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "P", 100, 5)

	sale, err := m.CreateSale(ctx, CreateSaleRequest{
		Items:    []ItemRequest{{ProductID: "P", Quantity: 3}},
		Subtotal: dec("300"),
		Total:    dec("348"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCompleted, sale.Status)
	assert.Equal(t, "48.00", sale.Tax.StringFixed(2))
	assert.Equal(t, "348.00", sale.Total.StringFixed(2))
	assert.Equal(t, 2, stockOf(t, db, "P"))

	stored, err := m.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "100.00", stored.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "300.00", stored.Items[0].Subtotal.StringFixed(2))
	assert.Equal(t, "Product P", stored.Items[0].ProductName)

	cancelled, err := m.CancelSale(ctx, sale.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 5, stockOf(t, db, "P"))

	_, err = m.CreateSale(ctx, CreateSaleRequest{
		Items:    []ItemRequest{{ProductID: "P", Quantity: 10}},
		Subtotal: dec("1000"),
		Total:    dec("1160"),
	})
	var stockErr *database.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "P", stockErr.ProductID)
	assert.Equal(t, 10, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)
}

func TestCreateSaleIsAtomic(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "PROD-A", 10, 10)
	createProduct(t, db, "PROD-B", 20, 10)
	createProduct(t, db, "PROD-C", 30, 1)

	before := testutil.TableCounts(t, db)

	_, err := m.CreateSale(ctx, CreateSaleRequest{
		Items: []ItemRequest{
			{ProductID: "PROD-A", Quantity: 2},
			{ProductID: "PROD-B", Quantity: 3},
			{ProductID: "PROD-C", Quantity: 2},
		},
		Services: []ServiceRequest{{Type: "copies", Description: "B/W copy", Quantity: 10, UnitPrice: decimal.RequireFromString("0.50")}},
		Subtotal: dec("145"),
		Total:    dec("168.20"),
	})
	assert.ErrorIs(t, err, database.ErrInsufficientStock)
	assert.Equal(t, before, testutil.TableCounts(t, db))

	_, err = m.CreateSale(ctx, CreateSaleRequest{
		Items: []ItemRequest{
			{ProductID: "PROD-A", Quantity: 1},
			{ProductID: "PROD-MISSING", Quantity: 1},
		},
		Subtotal: dec("10"),
		Total:    dec("11.60"),
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.ErrorIs(t, err, database.ProductNotFound("PROD-MISSING"))
	assert.Equal(t, before, testutil.TableCounts(t, db))
}

// failingLedger delegates to the real ledger but fails decrements for one
// product, after earlier lines have already been written.
type failingLedger struct {
	store.ProductLedger
	failOn string
	calls  int
}

var errLedgerDown = errors.New("ledger unavailable")

func (l *failingLedger) DecrementStock(ctx context.Context, q store.DBTX, id string, quantity int) (int, error) {
	l.calls++
	if id == l.failOn {
		return 0, errLedgerDown
	}
	return l.ProductLedger.DecrementStock(ctx, q, id, quantity)
}

func TestCreateSaleRollsBackPartialWrites(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := &failingLedger{failOn: "PROD-B"}
	m := NewManager(db, ledger)
	createProduct(t, db, "PROD-A", 10, 10)
	createProduct(t, db, "PROD-B", 20, 10)

	before := testutil.TableCounts(t, db)

	_, err := m.CreateSale(ctx, CreateSaleRequest{
		Items: []ItemRequest{
			{ProductID: "PROD-A", Quantity: 2},
			{ProductID: "PROD-B", Quantity: 1},
		},
		Services: []ServiceRequest{{Type: "copies", Description: "B/W copy", Quantity: 4, UnitPrice: decimal.RequireFromString("0.50")}},
		Subtotal: dec("42"),
		Total:    dec("48.72"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrStorage)
	assert.ErrorIs(t, err, errLedgerDown)

	// The header, the first line and the PROD-A decrement ran before the failure.
	assert.Equal(t, 2, ledger.calls)
	assert.Equal(t, before, testutil.TableCounts(t, db))
	assert.Equal(t, 10, stockOf(t, db, "PROD-A"))

	page, err := m.ListSales(ctx, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreateSaleSumsDuplicateLines(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "PEN", 10, 4)

	_, err := m.CreateSale(ctx, CreateSaleRequest{
		Items: []ItemRequest{
			{ProductID: "PEN", Quantity: 3},
			{ProductID: "PEN", Quantity: 2},
		},
		Subtotal: dec("50"),
		Total:    dec("58"),
	})
	var stockErr *database.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 4, stockErr.Available)
	assert.Equal(t, 4, stockOf(t, db, "PEN"))
}

func TestCreateSaleWithServicesOnly(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "PAPER", 5, 3)
	before := testutil.TableCounts(t, db)

	sale, err := m.CreateSale(ctx, CreateSaleRequest{
		Services: []ServiceRequest{{
			Type:        "prints",
			Description: "Color print A4",
			Quantity:    4,
			UnitPrice:   decimal.RequireFromString("12.50"),
			Details:     json.RawMessage(`{"color":true,"sides":1}`),
		}},
		Subtotal:      dec("50"),
		Tax:           dec("0"),
		Total:         dec("50"),
		PaymentMethod: models.PaymentMethodCard,
	})
	require.NoError(t, err)
	require.Len(t, sale.Services, 1)
	assert.Equal(t, "50.00", sale.Services[0].Subtotal.StringFixed(2))

	stored, err := m.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Services, 1)
	assert.JSONEq(t, `{"color":true,"sides":1}`, string(stored.Services[0].Details))
	assert.Equal(t, before["stock:PAPER"], stockOf(t, db, "PAPER"))
}

func TestExplicitTax(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "GLUE", 100, 5)

	sale, err := m.CreateSale(ctx, CreateSaleRequest{
		Items:    []ItemRequest{{ProductID: "GLUE", Quantity: 1}},
		Subtotal: dec("100"),
		Tax:      dec("10"),
		Total:    dec("110"),
	})
	require.NoError(t, err)
	assert.Equal(t, "10.00", sale.Tax.StringFixed(2))
	assert.Equal(t, "110.00", sale.Total.StringFixed(2))
}

func TestCancelSaleTwice(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "RULER", 15, 10)

	sale, err := m.CreateSale(ctx, CreateSaleRequest{
		Items:    []ItemRequest{{ProductID: "RULER", Quantity: 4}},
		Services: []ServiceRequest{{Type: "copies", Description: "copy", Quantity: 2, UnitPrice: decimal.NewFromInt(1)}},
		Subtotal: dec("62"),
		Total:    dec("71.92"),
	})
	require.NoError(t, err)
	require.Equal(t, 6, stockOf(t, db, "RULER"))

	reason := "customer changed mind"
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CancelSale(ctx, sale.ID, &reason)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, database.ErrSaleAlreadyCancelled):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 10, stockOf(t, db, "RULER"))

	stored, err := m.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Notes)
	assert.Equal(t, "Cancelled: customer changed mind", *stored.Notes)
	assert.Len(t, stored.Services, 1)

	_, err = m.CancelSale(ctx, "SALE-DOES-NOT-EXIST", nil)
	assert.ErrorIs(t, err, database.ErrSaleNotFound)
}

func TestCancelSaleRestocksDeactivatedProduct(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "OLD-INK", 50, 3)

	notes := "counter 2"
	sale, err := m.CreateSale(ctx, CreateSaleRequest{
		Items:    []ItemRequest{{ProductID: "OLD-INK", Quantity: 3}},
		Subtotal: dec("150"),
		Total:    dec("174"),
		Notes:    &notes,
	})
	require.NoError(t, err)
	require.NoError(t, store.DeactivateProduct(ctx, db, "OLD-INK"))

	cancelled, err := m.CancelSale(ctx, sale.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, cancelled.Notes)
	assert.Equal(t, "counter 2 | Cancelled: no reason given", *cancelled.Notes)
	assert.Equal(t, 3, stockOf(t, db, "OLD-INK"))
}

func TestConcurrentSalesNeverOverdraw(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "LAST-ONE", 10, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateSale(ctx, CreateSaleRequest{
				Items:    []ItemRequest{{ProductID: "LAST-ONE", Quantity: 1}},
				Subtotal: dec("10"),
				Total:    dec("11.60"),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, insufficient := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, database.ErrInsufficientStock):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, stockOf(t, db, "LAST-ONE"))
}

func TestConcurrentSalesAcrossSharedProducts(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "NOTEBOOK", 20, 20)
	createProduct(t, db, "ERASER", 5, 20)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		items := []ItemRequest{
			{ProductID: "NOTEBOOK", Quantity: 3},
			{ProductID: "ERASER", Quantity: 1},
		}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}

		wg.Add(1)
		go func(items []ItemRequest) {
			defer wg.Done()
			_, err := m.CreateSale(ctx, CreateSaleRequest{
				Items:    items,
				Subtotal: dec("65"),
				Total:    dec("75.40"),
			})
			results <- err
		}(items)
	}
	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 6, successCount)
	assert.Equal(t, 20-successCount*3, stockOf(t, db, "NOTEBOOK"))
	assert.Equal(t, 20-successCount, stockOf(t, db, "ERASER"))
}

func TestStockConservation(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "X", 10, 30)
	createProduct(t, db, "Y", 10, 30)

	type op struct {
		x, y   int
		cancel bool
	}
	ops := []op{{2, 1, false}, {4, 0, true}, {1, 5, false}, {3, 3, true}, {0, 2, false}}

	soldX, soldY := 0, 0
	for _, o := range ops {
		var items []ItemRequest
		if o.x > 0 {
			items = append(items, ItemRequest{ProductID: "X", Quantity: o.x})
		}
		if o.y > 0 {
			items = append(items, ItemRequest{ProductID: "Y", Quantity: o.y})
		}

		subtotal := decimal.NewFromInt(int64(10 * (o.x + o.y)))
		total := subtotal.Add(ComputeTax(subtotal, nil, DefaultTaxRate))
		sale, err := m.CreateSale(ctx, CreateSaleRequest{Items: items, Subtotal: &subtotal, Total: &total})
		require.NoError(t, err)

		if o.cancel {
			_, err := m.CancelSale(ctx, sale.ID, nil)
			require.NoError(t, err)
			continue
		}
		soldX += o.x
		soldY += o.y
	}

	assert.Equal(t, 30-soldX, stockOf(t, db, "X"))
	assert.Equal(t, 30-soldY, stockOf(t, db, "Y"))
}

func TestListSalesCursor(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewManager(db, store.ProductLedger{})
	createProduct(t, db, "CLIP", 1, 100)

	for i := 0; i < 15; i++ {
		_, err := m.CreateSale(ctx, CreateSaleRequest{
			Items:    []ItemRequest{{ProductID: "CLIP", Quantity: 1}},
			Subtotal: dec("1"),
			Total:    dec("1.16"),
		})
		require.NoError(t, err, "create sale %d", i)
	}

	page1, err := m.ListSalesCursor(ctx, "", 10)
	require.NoError(t, err)
	assert.True(t, page1.HasMore)
	assert.NotEmpty(t, page1.NextCursor)

	page2, err := m.ListSalesCursor(ctx, page1.NextCursor, 10)
	require.NoError(t, err)
	assert.False(t, page2.HasMore)
	assert.Len(t, page2.Items, 5)

	offset, err := m.ListSales(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(15), offset.Total)
	assert.Equal(t, 2, offset.TotalPages)

	_, err = m.ListSalesCursor(ctx, "not-base64!", 10)
	assert.ErrorIs(t, err, database.ErrValidation)
}
