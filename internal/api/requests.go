package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/models"
	"github.com/safar/stationery-pos/internal/sales"
	"github.com/safar/stationery-pos/internal/store"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type saleItemRequest struct {
	ProductID string           `json:"product_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type saleServiceRequest struct {
	Type        string          `json:"type" validate:"required,max=50"`
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Details     json.RawMessage `json:"details"`
}

type createSaleRequest struct {
	Items         []saleItemRequest    `json:"items" validate:"dive"`
	Services      []saleServiceRequest `json:"services" validate:"dive"`
	Subtotal      *decimal.Decimal     `json:"subtotal" validate:"required"`
	Tax           *decimal.Decimal     `json:"tax"`
	Total         *decimal.Decimal     `json:"total" validate:"required"`
	PaymentMethod string               `json:"payment_method" validate:"max=20"`
	Notes         *string              `json:"notes" validate:"omitempty,max=500"`
}

func (r createSaleRequest) toCore() sales.CreateSaleRequest {
	req := sales.CreateSaleRequest{
		Subtotal:      r.Subtotal,
		Tax:           r.Tax,
		Total:         r.Total,
		PaymentMethod: r.PaymentMethod,
		Notes:         r.Notes,
	}
	for _, item := range r.Items {
		req.Items = append(req.Items, sales.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	for _, svc := range r.Services {
		req.Services = append(req.Services, sales.ServiceRequest{
			Type:        svc.Type,
			Description: svc.Description,
			Quantity:    svc.Quantity,
			UnitPrice:   svc.UnitPrice,
			Details:     svc.Details,
		})
	}
	return req
}

type cancelSaleRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=255"`
}

type productRequest struct {
	Barcode        *string          `json:"barcode" validate:"omitempty,max=64"`
	Name           string           `json:"name" validate:"required,max=200"`
	Description    string           `json:"description" validate:"max=1000"`
	Category       string           `json:"category" validate:"max=100"`
	Brand          string           `json:"brand" validate:"max=100"`
	Model          string           `json:"model" validate:"max=100"`
	UnitCost       decimal.Decimal  `json:"unit_cost"`
	SalePrice      decimal.Decimal  `json:"sale_price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price"`
	Stock          int              `json:"stock" validate:"gte=0"`
	MinStock       int              `json:"min_stock" validate:"gte=0"`
	Unit           string           `json:"unit" validate:"max=50"`
}

func (r productRequest) toModel() models.Product {
	return models.Product{
		Barcode:        r.Barcode,
		Name:           strings.TrimSpace(r.Name),
		Description:    r.Description,
		Category:       strings.TrimSpace(r.Category),
		Brand:          r.Brand,
		Model:          r.Model,
		UnitCost:       r.UnitCost,
		SalePrice:      r.SalePrice,
		WholesalePrice: r.WholesalePrice,
		Stock:          r.Stock,
		MinStock:       r.MinStock,
		Unit:           strings.TrimSpace(r.Unit),
	}
}

type productPatchRequest struct {
	Barcode        *string          `json:"barcode" validate:"omitempty,max=64"`
	Name           *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description    *string          `json:"description" validate:"omitempty,max=1000"`
	Category       *string          `json:"category" validate:"omitempty,max=100"`
	Brand          *string          `json:"brand" validate:"omitempty,max=100"`
	Model          *string          `json:"model" validate:"omitempty,max=100"`
	UnitCost       *decimal.Decimal `json:"unit_cost"`
	SalePrice      *decimal.Decimal `json:"sale_price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price"`
	Stock          *int             `json:"stock" validate:"omitempty,gte=0"`
	MinStock       *int             `json:"min_stock" validate:"omitempty,gte=0"`
	Unit           *string          `json:"unit" validate:"omitempty,max=50"`
	Version        *int             `json:"version" validate:"omitempty,gt=0"`
}

func (r productPatchRequest) toPatch() store.ProductPatch {
	return store.ProductPatch{
		Barcode:        r.Barcode,
		Name:           r.Name,
		Description:    r.Description,
		Category:       r.Category,
		Brand:          r.Brand,
		Model:          r.Model,
		UnitCost:       r.UnitCost,
		SalePrice:      r.SalePrice,
		WholesalePrice: r.WholesalePrice,
		Stock:          r.Stock,
		MinStock:       r.MinStock,
		Unit:           r.Unit,
		Version:        r.Version,
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func (h *Handler) decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return database.NewValidationError("body", "invalid JSON: "+err.Error())
		}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return database.NewValidationError("body", "must contain a single JSON object")
	}

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return database.NewValidationError(fieldPath(fe), describeTag(fe))
		}
		return database.NewValidationError("body", err.Error())
	}
	return nil
}

// fieldPath drops the struct name from the validator namespace:
// createSaleRequest.items[0].quantity becomes items[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " characters"
	case "max":
		return "must have at most " + fe.Param() + " characters"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// pagination reads page and page_size, clamping page_size to [1, 100].
func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func queryLimit(r *http.Request, def, max int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
