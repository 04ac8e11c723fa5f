package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLineDTO is one product line with its current effective price.
type CartLineDTO struct {
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	VariantID    *uuid.UUID      `json:"variant_id,omitempty"`
	VariantLabel *string         `json:"variant_label,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
	AvailableQty int             `json:"available_qty"`
}

// CartDTO is the full cart projection. Prices are recomputed from the live
// catalog on every read; nothing here is a committed price.
type CartDTO struct {
	ID       uuid.UUID       `json:"id"`
	Lines    []CartLineDTO   `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// AddItemInput captures the payload for adding or bumping a cart line.
type AddItemInput struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
}

// UpdateItemInput captures an absolute quantity change for a line.
type UpdateItemInput struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}
