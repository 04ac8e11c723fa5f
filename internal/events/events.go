package events

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the wire-level event discriminator.
type Type string

const (
	TypeStockUpdate     Type = "STOCK_UPDATE"
	TypeLowStockWarning Type = "LOW_STOCK_WARNING"
	TypeNewOrder        Type = "NEW_ORDER"
	TypeOrderCancelled  Type = "ORDER_CANCELLED"
)

// LowStockThreshold is the fixed quantity at or below which a
// LOW_STOCK_WARNING follows every stock update.
const LowStockThreshold = 5

// Event is any payload the hub can broadcast. Each concrete event carries
// its discriminator in the "event" JSON field.
type Event interface {
	EventType() Type
}

// StockUpdate reports the post-change available quantity of a product.
type StockUpdate struct {
	Event        Type      `json:"event"`
	ProductID    uuid.UUID `json:"product_id"`
	AvailableQty int       `json:"available_qty"`
}

// EventType implements Event.
func (e StockUpdate) EventType() Type { return e.Event }

// NewStockUpdate builds a STOCK_UPDATE event.
func NewStockUpdate(productID uuid.UUID, availableQty int) StockUpdate {
	return StockUpdate{
		Event:        TypeStockUpdate,
		ProductID:    productID,
		AvailableQty: availableQty,
	}
}

// LowStockWarning fires when a product's quantity sits at or below the threshold.
type LowStockWarning struct {
	Event        Type      `json:"event"`
	ProductID    uuid.UUID `json:"product_id"`
	AvailableQty int       `json:"available_qty"`
	Threshold    int       `json:"threshold"`
}

// EventType implements Event.
func (e LowStockWarning) EventType() Type { return e.Event }

// NewLowStockWarning builds a LOW_STOCK_WARNING event.
func NewLowStockWarning(productID uuid.UUID, availableQty int) LowStockWarning {
	return LowStockWarning{
		Event:        TypeLowStockWarning,
		ProductID:    productID,
		AvailableQty: availableQty,
		Threshold:    LowStockThreshold,
	}
}

// NewOrder announces a successfully placed order.
type NewOrder struct {
	Event       Type            `json:"event"`
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// EventType implements Event.
func (e NewOrder) EventType() Type { return e.Event }

// NewNewOrder builds a NEW_ORDER event.
func NewNewOrder(orderID, userID uuid.UUID, total decimal.Decimal) NewOrder {
	return NewOrder{
		Event:       TypeNewOrder,
		OrderID:     orderID,
		UserID:      userID,
		TotalAmount: total,
	}
}

// OrderCancelled announces a cancellation and the restock it caused.
type OrderCancelled struct {
	Event   Type      `json:"event"`
	OrderID uuid.UUID `json:"order_id"`
}

// EventType implements Event.
func (e OrderCancelled) EventType() Type { return e.Event }

// NewOrderCancelled builds an ORDER_CANCELLED event.
func NewOrderCancelled(orderID uuid.UUID) OrderCancelled {
	return OrderCancelled{
		Event:   TypeOrderCancelled,
		OrderID: orderID,
	}
}
