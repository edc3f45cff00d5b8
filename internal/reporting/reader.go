// Package reporting aggregates completed sales and catalog stock for the
// dashboard and the sales summary. It only reads.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/shopspring/decimal"
)

const (
	dateLayout = "2006-01-02"

	// maxSummaryDays caps the per-day breakdown of a summary.
	maxSummaryDays = 30
)

type Totals struct {
	SalesCount    int64           `db:"sales_count" json:"sales_count"`
	Revenue       decimal.Decimal `db:"revenue" json:"revenue"`
	AverageTicket decimal.Decimal `db:"average_ticket" json:"average_ticket"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Tax           decimal.Decimal `db:"tax" json:"tax"`
}

type DailySales struct {
	Day        string          `db:"day" json:"day"`
	SalesCount int64           `db:"sales_count" json:"sales_count"`
	Revenue    decimal.Decimal `db:"revenue" json:"revenue"`
}

type Summary struct {
	Totals Totals       `json:"totals"`
	Daily  []DailySales `json:"daily"`
}

type DashboardStats struct {
	Day           string          `json:"day"`
	Revenue       decimal.Decimal `db:"revenue" json:"revenue"`
	TicketsCount  int64           `db:"tickets_count" json:"tickets_count"`
	GrossProfit   decimal.Decimal `db:"gross_profit" json:"gross_profit"`
	LowStockCount int64           `db:"low_stock_count" json:"low_stock_count"`
	CriticalCount int64           `db:"critical_count" json:"critical_count"`
}

type PopularProduct struct {
	ProductID string          `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	UnitsSold int64           `db:"units_sold" json:"units_sold"`
	Revenue   decimal.Decimal `db:"revenue" json:"revenue"`
}

type LowStockProduct struct {
	ProductID string `db:"product_id" json:"product_id"`
	Name      string `db:"name" json:"name"`
	Category  string `db:"category" json:"category"`
	Stock     int    `db:"stock" json:"stock"`
	MinStock  int    `db:"min_stock" json:"min_stock"`
	Unit      string `db:"unit" json:"unit"`
}

type ServiceStat struct {
	ServiceType string          `db:"service_type" json:"service_type"`
	Count       int64           `db:"units" json:"count"`
	Revenue     decimal.Decimal `db:"revenue" json:"revenue"`
	Average     decimal.Decimal `db:"average" json:"average"`
}

type Reader struct {
	db *sqlx.DB
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{db: sqlx.NewDb(db, "postgres")}
}

// Summary totals completed sales whose sale date falls in [from, to]. Either
// bound may be nil. The daily breakdown is newest first.
func (r *Reader) Summary(ctx context.Context, from, to *time.Time) (*Summary, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, database.NewValidationError("from", "must not be after to")
	}

	clauses := []string{"status = $1"}
	args := []any{models.SaleStatusCompleted}
	if from != nil {
		args = append(args, from.Format(dateLayout))
		clauses = append(clauses, fmt.Sprintf("sold_at::date >= $%d::date", len(args)))
	}
	if to != nil {
		args = append(args, to.Format(dateLayout))
		clauses = append(clauses, fmt.Sprintf("sold_at::date <= $%d::date", len(args)))
	}
	where := "WHERE " + strings.Join(clauses, " AND ")

	summary := &Summary{Daily: []DailySales{}}
	err := r.db.GetContext(ctx, &summary.Totals, `
		SELECT COUNT(*) AS sales_count,
		       COALESCE(SUM(total), 0) AS revenue,
		       ROUND(COALESCE(AVG(total), 0), 2) AS average_ticket,
		       COALESCE(SUM(subtotal), 0) AS subtotal,
		       COALESCE(SUM(tax), 0) AS tax
		FROM sales `+where, args...)
	if err != nil {
		return nil, database.AsStorageError("sales summary", err)
	}

	err = r.db.SelectContext(ctx, &summary.Daily, `
		SELECT to_char(sold_at::date, 'YYYY-MM-DD') AS day,
		       COUNT(*) AS sales_count,
		       SUM(total) AS revenue
		FROM sales `+where+`
		GROUP BY sold_at::date
		ORDER BY sold_at::date DESC
		LIMIT `+fmt.Sprint(maxSummaryDays), args...)
	if err != nil {
		return nil, database.AsStorageError("sales summary", err)
	}

	return summary, nil
}

// DashboardStats reports the calendar day containing day, in day's location,
// plus the catalog-wide stock alerts.
func (r *Reader) DashboardStats(ctx context.Context, day time.Time) (*DashboardStats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	stats := &DashboardStats{Day: start.Format(dateLayout)}

	var sales struct {
		Revenue      decimal.Decimal `db:"revenue"`
		TicketsCount int64           `db:"tickets_count"`
	}
	err := r.db.GetContext(ctx, &sales, `
		SELECT COALESCE(SUM(total), 0) AS revenue, COUNT(*) AS tickets_count
		FROM sales
		WHERE status = $1 AND sold_at >= $2 AND sold_at < $3`,
		models.SaleStatusCompleted, start, end)
	if err != nil {
		return nil, database.AsStorageError("dashboard stats", err)
	}
	stats.Revenue = sales.Revenue
	stats.TicketsCount = sales.TicketsCount

	err = r.db.GetContext(ctx, &stats.GrossProfit, `
		SELECT COALESCE(SUM((si.unit_price - p.unit_cost) * si.quantity), 0)
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN products p ON p.id = si.product_id
		WHERE s.status = $1 AND s.sold_at >= $2 AND s.sold_at < $3`,
		models.SaleStatusCompleted, start, end)
	if err != nil {
		return nil, database.AsStorageError("dashboard stats", err)
	}

	var alerts struct {
		LowStockCount int64 `db:"low_stock_count"`
		CriticalCount int64 `db:"critical_count"`
	}
	err = r.db.GetContext(ctx, &alerts, `
		SELECT COUNT(*) FILTER (WHERE stock <= min_stock) AS low_stock_count,
		       COUNT(*) FILTER (WHERE stock = 0) AS critical_count
		FROM products
		WHERE active`)
	if err != nil {
		return nil, database.AsStorageError("dashboard stats", err)
	}
	stats.LowStockCount = alerts.LowStockCount
	stats.CriticalCount = alerts.CriticalCount

	return stats, nil
}

// PopularProducts ranks products by units sold across completed sales.
func (r *Reader) PopularProducts(ctx context.Context, limit int) ([]PopularProduct, error) {
	products := []PopularProduct{}
	err := r.db.SelectContext(ctx, &products, `
		SELECT p.id AS product_id, p.name, p.category,
		       SUM(si.quantity) AS units_sold,
		       SUM(si.subtotal) AS revenue
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		JOIN products p ON p.id = si.product_id
		WHERE s.status = $1
		GROUP BY p.id, p.name, p.category
		ORDER BY units_sold DESC, revenue DESC, p.name
		LIMIT $2`, models.SaleStatusCompleted, limit)
	if err != nil {
		return nil, database.AsStorageError("popular products", err)
	}
	return products, nil
}

func (r *Reader) LowStock(ctx context.Context, limit int) ([]LowStockProduct, error) {
	products := []LowStockProduct{}
	err := r.db.SelectContext(ctx, &products, `
		SELECT id AS product_id, name, category, stock, min_stock, unit
		FROM products
		WHERE active AND stock <= min_stock
		ORDER BY stock, name
		LIMIT $1`, limit)
	if err != nil {
		return nil, database.AsStorageError("low stock", err)
	}
	return products, nil
}

// ServiceStats groups service lines of completed sales by type. Count is
// the number of units rendered and Average the revenue per unit.
func (r *Reader) ServiceStats(ctx context.Context) ([]ServiceStat, error) {
	stats := []ServiceStat{}
	err := r.db.SelectContext(ctx, &stats, `
		SELECT ss.service_type,
		       SUM(ss.quantity) AS units,
		       SUM(ss.subtotal) AS revenue,
		       ROUND(SUM(ss.subtotal) / NULLIF(SUM(ss.quantity), 0), 2) AS average
		FROM sale_services ss
		JOIN sales s ON s.id = ss.sale_id
		WHERE s.status = $1
		GROUP BY ss.service_type
		ORDER BY revenue DESC, ss.service_type`, models.SaleStatusCompleted)
	if err != nil {
		return nil, database.AsStorageError("service stats", err)
	}
	return stats, nil
}

// MonthlySales returns one row per calendar day of the month, zero-filled.
func (r *Reader) MonthlySales(ctx context.Context, year, month int) ([]DailySales, error) {
	if month < 1 || month > 12 {
		return nil, database.NewValidationError("month", "must be between 1 and 12")
	}
	if year < 1970 || year > 9999 {
		return nil, database.NewValidationError("year", "is out of range")
	}

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	days := []DailySales{}
	err := r.db.SelectContext(ctx, &days, `
		SELECT to_char(d.day, 'YYYY-MM-DD') AS day,
		       COUNT(s.id) AS sales_count,
		       COALESCE(SUM(s.total), 0) AS revenue
		FROM generate_series($1::timestamp, $2::timestamp - interval '1 day', interval '1 day') AS d(day)
		LEFT JOIN sales s
		       ON s.status = $3
		      AND s.sold_at::date = d.day::date
		GROUP BY d.day
		ORDER BY d.day`,
		start.Format(dateLayout), end.Format(dateLayout), models.SaleStatusCompleted)
	if err != nil {
		return nil, database.AsStorageError("monthly sales", err)
	}
	return days, nil
}
