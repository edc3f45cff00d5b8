// Package api is the HTTP boundary of the point of sale. It decodes and
// validates requests, calls the sale manager, catalog and report reader,
// and translates their typed errors into status codes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/safar/stationery-pos/internal/metrics"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/safar/stationery-pos/internal/reporting"
	"github.com/safar/stationery-pos/internal/sales"
	"github.com/safar/stationery-pos/internal/store"
	"go.uber.org/zap"
)

type SaleService interface {
	CreateSale(ctx context.Context, req sales.CreateSaleRequest) (*models.Sale, error)
	CancelSale(ctx context.Context, saleID string, reason *string) (*models.Sale, error)
	GetSale(ctx context.Context, id string) (*models.Sale, error)
	ListSales(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	ListSalesCursor(ctx context.Context, cursor string, limit int) (*store.CursorPage, error)
}

type Catalog interface {
	CreateProduct(ctx context.Context, p models.Product) (*models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, patch store.ProductPatch) (*models.Product, error)
	DeactivateProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, category string, page, pageSize int) (*store.OffsetPage, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
}

type Reports interface {
	Summary(ctx context.Context, from, to *time.Time) (*reporting.Summary, error)
	DashboardStats(ctx context.Context, day time.Time) (*reporting.DashboardStats, error)
	PopularProducts(ctx context.Context, limit int) ([]reporting.PopularProduct, error)
	LowStock(ctx context.Context, limit int) ([]reporting.LowStockProduct, error)
	ServiceStats(ctx context.Context) ([]reporting.ServiceStat, error)
	MonthlySales(ctx context.Context, year, month int) ([]reporting.DailySales, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	sales    SaleService
	catalog  Catalog
	reports  Reports
	db       Pinger
	metrics  *metrics.Metrics
	log      *zap.Logger
	validate *validator.Validate
	origins  []string
	now      func() time.Time
}

type Deps struct {
	Sales          SaleService
	Catalog        Catalog
	Reports        Reports
	DB             Pinger
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
}

func New(deps Deps) *Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Handler{
		sales:    deps.Sales,
		catalog:  deps.Catalog,
		reports:  deps.Reports,
		db:       deps.DB,
		metrics:  m,
		log:      log,
		validate: newValidator(),
		origins:  deps.AllowedOrigins,
		now:      time.Now,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/search", h.searchProducts)
			r.Get("/categories", h.listCategories)
			r.Get("/{id}", h.getProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.listSales)
			r.Post("/", h.createSale)
			r.Get("/reports/summary", h.salesSummary)
			r.Get("/{id}", h.getSale)
			r.Patch("/{id}/cancel", h.cancelSale)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/stats", h.dashboardStats)
			r.Get("/popular-products", h.popularProducts)
			r.Get("/low-stock", h.lowStock)
			r.Get("/services-stats", h.serviceStats)
			r.Get("/monthly-sales/{year}/{month}", h.monthlySales)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}
