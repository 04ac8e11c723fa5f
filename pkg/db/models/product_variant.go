package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariant is one concrete option of a product, such as a size or a
// chain length. A nil price means the variant sells at the product's price.
type ProductVariant struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string           `gorm:"column:name;not null"`
	Value     string           `gorm:"column:value;not null"`
	Price     *decimal.Decimal `gorm:"column:price;type:numeric(10,2)"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Label renders the variant for order snapshots, e.g. "size: 18 inch".
func (v ProductVariant) Label() string {
	return fmt.Sprintf("%s: %s", v.Name, v.Value)
}
