package sales

import (
	"encoding/json"
	"strings"

	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/shopspring/decimal"
)

// Upper bounds of the NUMERIC(12,2) amount and NUMERIC(10,2) price columns.
var (
	MaxAmount    = decimal.RequireFromString("9999999999.99")
	MaxUnitPrice = decimal.RequireFromString("99999999.99")
)

type CreateSaleRequest struct {
	Items         []ItemRequest
	Services      []ServiceRequest
	Subtotal      *decimal.Decimal
	Tax           *decimal.Decimal
	Total         *decimal.Decimal
	PaymentMethod string
	Notes         *string
}

type ItemRequest struct {
	ProductID string
	Quantity  int
	// UnitPrice overrides the catalog price for this line, e.g. a wholesale
	// price chosen at the counter. Nil uses the product's sale price.
	UnitPrice *decimal.Decimal
}

type ServiceRequest struct {
	Type        string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
	Details     json.RawMessage
}

// validate checks the request shape. It performs no I/O, so a failure here
// never touches the database.
func (r *CreateSaleRequest) validate() error {
	if len(r.Items) == 0 && len(r.Services) == 0 {
		return database.NewValidationError("items", "at least one product or service is required")
	}

	if r.Subtotal == nil {
		return database.NewValidationError("subtotal", "is required")
	}
	if r.Subtotal.IsNegative() {
		return database.NewValidationError("subtotal", "must not be negative")
	}
	if r.Subtotal.GreaterThan(MaxAmount) {
		return database.NewValidationError("subtotal", "must not exceed "+MaxAmount.String())
	}
	if r.Total == nil {
		return database.NewValidationError("total", "is required")
	}
	if r.Total.IsNegative() {
		return database.NewValidationError("total", "must not be negative")
	}
	if r.Total.GreaterThan(MaxAmount) {
		return database.NewValidationError("total", "must not exceed "+MaxAmount.String())
	}
	if r.Tax != nil && r.Tax.IsNegative() {
		return database.NewValidationError("tax", "must not be negative")
	}
	if r.Tax != nil && r.Tax.GreaterThan(MaxAmount) {
		return database.NewValidationError("tax", "must not exceed "+MaxAmount.String())
	}

	r.PaymentMethod = strings.ToLower(strings.TrimSpace(r.PaymentMethod))
	if r.PaymentMethod == "" {
		r.PaymentMethod = models.PaymentMethodCash
	}
	if !models.ValidPaymentMethod(r.PaymentMethod) {
		return database.NewValidationError("payment_method", "must be one of cash, card, transfer")
	}

	for i := range r.Items {
		item := &r.Items[i]
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return database.NewValidationError("items.product_id", "is required")
		}
		if item.Quantity <= 0 {
			return database.NewValidationError("items.quantity", "must be greater than zero")
		}
		if item.UnitPrice != nil {
			if err := checkLinePrice("items", *item.UnitPrice, item.Quantity); err != nil {
				return err
			}
		}
	}

	for _, svc := range r.Services {
		if strings.TrimSpace(svc.Type) == "" {
			return database.NewValidationError("services.type", "is required")
		}
		if strings.TrimSpace(svc.Description) == "" {
			return database.NewValidationError("services.description", "is required")
		}
		if svc.Quantity <= 0 {
			return database.NewValidationError("services.quantity", "must be greater than zero")
		}
		if err := checkLinePrice("services", svc.UnitPrice, svc.Quantity); err != nil {
			return err
		}
		if len(svc.Details) > 0 && !json.Valid(svc.Details) {
			return database.NewValidationError("services.details", "must be valid JSON")
		}
	}

	return nil
}

func checkLinePrice(prefix string, unitPrice decimal.Decimal, quantity int) error {
	if unitPrice.IsNegative() {
		return database.NewValidationError(prefix+".unit_price", "must not be negative")
	}
	if unitPrice.GreaterThan(MaxUnitPrice) {
		return database.NewValidationError(prefix+".unit_price", "must not exceed "+MaxUnitPrice.String())
	}
	return checkLineSubtotal(prefix, unitPrice.Round(2), quantity)
}

func checkLineSubtotal(prefix string, unitPrice decimal.Decimal, quantity int) error {
	if unitPrice.Mul(decimal.NewFromInt(int64(quantity))).GreaterThan(MaxAmount) {
		return database.NewValidationError(prefix+".quantity", "line subtotal must not exceed "+MaxAmount.String())
	}
	return nil
}

// quantitiesByProduct sums the requested units per product so that two
// lines for the same product are checked against stock together.
func (r *CreateSaleRequest) quantitiesByProduct() map[string]int {
	totals := make(map[string]int, len(r.Items))
	for _, item := range r.Items {
		totals[item.ProductID] += item.Quantity
	}
	return totals
}
