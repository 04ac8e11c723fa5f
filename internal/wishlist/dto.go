package wishlist

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WishlistEntryDTO is one saved product with its current price.
type WishlistEntryDTO struct {
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	IsActive     bool            `json:"is_active"`
	AvailableQty int             `json:"available_qty"`
	AddedAt      time.Time       `json:"added_at"`
}

// AddEntryInput captures the payload for saving a product.
type AddEntryInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}
