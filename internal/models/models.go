package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID             string           `json:"id"`
	Barcode        *string          `json:"barcode,omitempty"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Category       string           `json:"category"`
	Brand          string           `json:"brand,omitempty"`
	Model          string           `json:"model,omitempty"`
	UnitCost       decimal.Decimal  `json:"unit_cost"`
	SalePrice      decimal.Decimal  `json:"sale_price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price,omitempty"`
	Stock          int              `json:"stock"`
	MinStock       int              `json:"min_stock"`
	Unit           string           `json:"unit"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Version        int              `json:"version"`
}

// LowStock reports whether the product is at or below its reorder threshold.
func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

type Sale struct {
	ID            string          `json:"id"`
	SoldAt        time.Time       `json:"sold_at"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	Notes         *string         `json:"notes,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Items         []SaleItem      `json:"items,omitempty"`
	Services      []SaleService   `json:"services,omitempty"`
}

type SaleItem struct {
	ID        int64           `json:"id"`
	SaleID    string          `json:"sale_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CreatedAt time.Time       `json:"created_at"`

	// Filled on reads; the line itself keeps only the product reference.
	ProductName     string `json:"product_name,omitempty"`
	ProductCategory string `json:"product_category,omitempty"`
}

// SaleService is a non-inventory line such as copies or prints.
type SaleService struct {
	ID          int64           `json:"id"`
	SaleID      string          `json:"sale_id"`
	ServiceType string          `json:"service_type"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

const (
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

// ValidPaymentMethod reports whether m is one of the accepted payment methods.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	}
	return false
}

const (
	DefaultCategory = "Otros"
	DefaultUnit     = "Pieza"
	DefaultMinStock = 5
)
