package api

import (
	"context"
	"time"

	"github.com/safar/stationery-pos/internal/models"
	"github.com/safar/stationery-pos/internal/reporting"
	"github.com/safar/stationery-pos/internal/sales"
	"github.com/safar/stationery-pos/internal/store"
	"github.com/stretchr/testify/mock"
)

type mockSales struct{ mock.Mock }

func (m *mockSales) CreateSale(ctx context.Context, req sales.CreateSaleRequest) (*models.Sale, error) {
	args := m.Called(ctx, req)
	sale, _ := args.Get(0).(*models.Sale)
	return sale, args.Error(1)
}

func (m *mockSales) CancelSale(ctx context.Context, saleID string, reason *string) (*models.Sale, error) {
	args := m.Called(ctx, saleID, reason)
	sale, _ := args.Get(0).(*models.Sale)
	return sale, args.Error(1)
}

func (m *mockSales) GetSale(ctx context.Context, id string) (*models.Sale, error) {
	args := m.Called(ctx, id)
	sale, _ := args.Get(0).(*models.Sale)
	return sale, args.Error(1)
}

func (m *mockSales) ListSales(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	args := m.Called(ctx, page, pageSize)
	result, _ := args.Get(0).(*store.OffsetPage)
	return result, args.Error(1)
}

func (m *mockSales) ListSalesCursor(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	args := m.Called(ctx, cursor, limit)
	result, _ := args.Get(0).(*store.CursorPage)
	return result, args.Error(1)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	args := m.Called(ctx, p)
	product, _ := args.Get(0).(*models.Product)
	return product, args.Error(1)
}

func (m *mockCatalog) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	product, _ := args.Get(0).(*models.Product)
	return product, args.Error(1)
}

func (m *mockCatalog) UpdateProduct(ctx context.Context, id string, patch store.ProductPatch) (*models.Product, error) {
	args := m.Called(ctx, id, patch)
	product, _ := args.Get(0).(*models.Product)
	return product, args.Error(1)
}

func (m *mockCatalog) DeactivateProduct(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockCatalog) ListProducts(ctx context.Context, category string, page, pageSize int) (*store.OffsetPage, error) {
	args := m.Called(ctx, category, page, pageSize)
	result, _ := args.Get(0).(*store.OffsetPage)
	return result, args.Error(1)
}

func (m *mockCatalog) SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error) {
	args := m.Called(ctx, term, limit)
	products, _ := args.Get(0).([]models.Product)
	return products, args.Error(1)
}

func (m *mockCatalog) ListCategories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	categories, _ := args.Get(0).([]string)
	return categories, args.Error(1)
}

type mockReports struct{ mock.Mock }

func (m *mockReports) Summary(ctx context.Context, from, to *time.Time) (*reporting.Summary, error) {
	args := m.Called(ctx, from, to)
	summary, _ := args.Get(0).(*reporting.Summary)
	return summary, args.Error(1)
}

func (m *mockReports) DashboardStats(ctx context.Context, day time.Time) (*reporting.DashboardStats, error) {
	args := m.Called(ctx, day)
	stats, _ := args.Get(0).(*reporting.DashboardStats)
	return stats, args.Error(1)
}

func (m *mockReports) PopularProducts(ctx context.Context, limit int) ([]reporting.PopularProduct, error) {
	args := m.Called(ctx, limit)
	products, _ := args.Get(0).([]reporting.PopularProduct)
	return products, args.Error(1)
}

func (m *mockReports) LowStock(ctx context.Context, limit int) ([]reporting.LowStockProduct, error) {
	args := m.Called(ctx, limit)
	products, _ := args.Get(0).([]reporting.LowStockProduct)
	return products, args.Error(1)
}

func (m *mockReports) ServiceStats(ctx context.Context) ([]reporting.ServiceStat, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).([]reporting.ServiceStat)
	return stats, args.Error(1)
}

func (m *mockReports) MonthlySales(ctx context.Context, year, month int) ([]reporting.DailySales, error) {
	args := m.Called(ctx, year, month)
	days, _ := args.Get(0).([]reporting.DailySales)
	return days, args.Error(1)
}

type mockPinger struct{ err error }

func (p mockPinger) PingContext(context.Context) error { return p.err }
