package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/pkg/db/models"
)

// Repository encapsulates cart persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to a transaction handle.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindOrCreateByUser loads the user's cart with items, creating an empty
// cart on first touch.
func (r *Repository) FindOrCreateByUser(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("user_id = ?", userID).
		First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	record = models.CartRecord{ID: uuid.New(), UserID: userID}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertItem adds a line or replaces the quantity of an existing one. Lines
// are keyed by (cart, product, variant); a nil variant is its own key.
func (r *Repository) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID, quantity int) error {
	var existing models.CartItem
	err := lineScope(r.db.WithContext(ctx), cartID, productID, variantID).
		First(&existing).Error
	if err == nil {
		return r.db.WithContext(ctx).
			Model(&existing).
			UpdateColumn("quantity", quantity).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	item := models.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
	}
	return r.db.WithContext(ctx).Create(&item).Error
}

// RemoveItem deletes a single line. Returns the number of rows removed.
func (r *Repository) RemoveItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (int64, error) {
	res := lineScope(r.db.WithContext(ctx), cartID, productID, variantID).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

func lineScope(db *gorm.DB, cartID, productID uuid.UUID, variantID *uuid.UUID) *gorm.DB {
	db = db.Where("cart_id = ? AND product_id = ?", cartID, productID)
	if variantID == nil {
		return db.Where("variant_id IS NULL")
	}
	return db.Where("variant_id = ?", *variantID)
}

// ClearItems empties the cart. Called at the tail of a successful checkout.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}
