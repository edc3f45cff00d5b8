package reporting

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/safar/stationery-pos/internal/sales"
	"github.com/safar/stationery-pos/internal/store"
	"github.com/safar/stationery-pos/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// seed creates three products and three sales, the last one cancelled.
func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()

	for _, p := range []models.Product{
		{ID: "A", Name: "Bolígrafo", Category: "Escritura", UnitCost: decimal.NewFromInt(5), SalePrice: decimal.NewFromInt(10), Stock: 10},
		{ID: "B", Name: "Tinta negra", Category: "Consumibles", UnitCost: decimal.NewFromInt(8), SalePrice: decimal.NewFromInt(20), Stock: 1},
		{ID: "C", Name: "Hojas A4", Category: "Papel", UnitCost: decimal.NewFromInt(40), SalePrice: decimal.NewFromInt(60), Stock: 3},
	} {
		_, err := store.CreateProduct(ctx, db, p)
		require.NoError(t, err)
	}

	m := sales.NewManager(db, store.ProductLedger{})

	_, err := m.CreateSale(ctx, sales.CreateSaleRequest{
		Items: []sales.ItemRequest{{ProductID: "A", Quantity: 3}},
		Services: []sales.ServiceRequest{{
			Type: "copies", Description: "B/W copies", Quantity: 10, UnitPrice: decimal.RequireFromString("0.50"),
		}},
		Subtotal: money("35"),
		Total:    money("40.60"),
	})
	require.NoError(t, err)

	_, err = m.CreateSale(ctx, sales.CreateSaleRequest{
		Items:    []sales.ItemRequest{{ProductID: "B", Quantity: 1}},
		Subtotal: money("20"),
		Total:    money("23.20"),
	})
	require.NoError(t, err)

	cancelled, err := m.CreateSale(ctx, sales.CreateSaleRequest{
		Items:    []sales.ItemRequest{{ProductID: "A", Quantity: 1}},
		Subtotal: money("10"),
		Total:    money("11.60"),
	})
	require.NoError(t, err)
	_, err = m.CancelSale(ctx, cancelled.ID, nil)
	require.NoError(t, err)
}

func TestReader(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	seed(t, db)
	ctx := context.Background()
	r := NewReader(db)
	now := time.Now().UTC()

	t.Run("summary", func(t *testing.T) {
		summary, err := r.Summary(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), summary.Totals.SalesCount)
		assert.Equal(t, "63.80", summary.Totals.Revenue.StringFixed(2))
		assert.Equal(t, "31.90", summary.Totals.AverageTicket.StringFixed(2))
		assert.Equal(t, "55.00", summary.Totals.Subtotal.StringFixed(2))
		assert.Equal(t, "8.80", summary.Totals.Tax.StringFixed(2))
		require.Len(t, summary.Daily, 1)
		assert.Equal(t, now.Format("2006-01-02"), summary.Daily[0].Day)
		assert.Equal(t, int64(2), summary.Daily[0].SalesCount)

		tomorrow := now.AddDate(0, 0, 1)
		summary, err = r.Summary(ctx, &tomorrow, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), summary.Totals.SalesCount)
		assert.True(t, summary.Totals.Revenue.IsZero())
		assert.Empty(t, summary.Daily)

		yesterday := now.AddDate(0, 0, -1)
		_, err = r.Summary(ctx, &now, &yesterday)
		assert.ErrorIs(t, err, database.ErrValidation)
	})

	t.Run("dashboard stats", func(t *testing.T) {
		stats, err := r.DashboardStats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, "63.80", stats.Revenue.StringFixed(2))
		assert.Equal(t, int64(2), stats.TicketsCount)
		assert.Equal(t, "27.00", stats.GrossProfit.StringFixed(2))
		assert.Equal(t, int64(2), stats.LowStockCount)
		assert.Equal(t, int64(1), stats.CriticalCount)

		stats, err = r.DashboardStats(ctx, now.AddDate(0, 0, -2))
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.TicketsCount)
		assert.True(t, stats.GrossProfit.IsZero())
	})

	t.Run("popular products", func(t *testing.T) {
		products, err := r.PopularProducts(ctx, 5)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "A", products[0].ProductID)
		assert.Equal(t, int64(3), products[0].UnitsSold)
		assert.Equal(t, "30.00", products[0].Revenue.StringFixed(2))
		assert.Equal(t, "B", products[1].ProductID)
	})

	t.Run("low stock", func(t *testing.T) {
		products, err := r.LowStock(ctx, 10)
		require.NoError(t, err)
		require.Len(t, products, 2)
		assert.Equal(t, "B", products[0].ProductID)
		assert.Equal(t, 0, products[0].Stock)
		assert.Equal(t, "C", products[1].ProductID)
		assert.Equal(t, models.DefaultUnit, products[1].Unit)
	})

	t.Run("service stats", func(t *testing.T) {
		stats, err := r.ServiceStats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, "copies", stats[0].ServiceType)
		assert.Equal(t, int64(10), stats[0].Count)
		assert.Equal(t, "5.00", stats[0].Revenue.StringFixed(2))
		assert.Equal(t, "0.50", stats[0].Average.StringFixed(2))
	})

	t.Run("monthly sales", func(t *testing.T) {
		days, err := r.MonthlySales(ctx, now.Year(), int(now.Month()))
		require.NoError(t, err)

		daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
		require.Len(t, days, daysInMonth)
		assert.Equal(t, now.Format("2006-01")+"-01", days[0].Day)

		today := days[now.Day()-1]
		assert.Equal(t, now.Format("2006-01-02"), today.Day)
		assert.Equal(t, int64(2), today.SalesCount)
		assert.Equal(t, "63.80", today.Revenue.StringFixed(2))

		_, err = r.MonthlySales(ctx, 2024, 13)
		assert.ErrorIs(t, err, database.ErrValidation)
	})
}
