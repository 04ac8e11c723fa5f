package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexchakra/storefront-backend/pkg/db/models"
	"github.com/nexchakra/storefront-backend/pkg/enums"
)

// OrderItemDTO is one committed line of an order.
type OrderItemDTO struct {
	ProductID    uuid.UUID       `json:"product_id"`
	ProductName  string          `json:"product_name"`
	VariantID    *uuid.UUID      `json:"variant_id,omitempty"`
	VariantLabel *string         `json:"variant_label,omitempty"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// OrderDTO is the full order projection.
type OrderDTO struct {
	ID            uuid.UUID           `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	AddressID     uuid.UUID           `json:"address_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	Items         []OrderItemDTO      `json:"items"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderPageDTO is one page of a user's order history.
type OrderPageDTO struct {
	Items      []OrderDTO `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
	Total      int64      `json:"total"`
}

// UpdateStatusInput captures the admin payload for a status transition.
type UpdateStatusInput struct {
	Status string `json:"status" validate:"required"`
}

// Actor identifies who is performing an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// IsAdmin reports whether the actor may touch orders they do not own.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// ToDTO converts the persistence model into the public projection.
func ToDTO(order models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			VariantID:    item.VariantID,
			VariantLabel: item.VariantLabel,
			UnitPrice:    item.UnitPrice,
			Quantity:     item.Quantity,
			LineTotal:    item.LineTotal,
		})
	}
	return OrderDTO{
		ID:            order.ID,
		UserID:        order.UserID,
		AddressID:     order.AddressID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		Items:         items,
		CancelledAt:   order.CancelledAt,
		CreatedAt:     order.CreatedAt,
	}
}
