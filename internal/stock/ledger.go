package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nexchakra/storefront-backend/pkg/db/models"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

// SetLockTimeout bounds how long row-lock acquisition may wait inside the
// current transaction. Postgres raises SQLSTATE 55P03 when it expires.
func SetLockTimeout(ctx context.Context, tx *gorm.DB, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
	if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "setting lock timeout")
	}
	return nil
}

// LockItems acquires row locks for the given products in ascending product
// ID order so concurrent checkouts cannot deadlock against each other.
// Every requested product must have a ledger row.
func LockItems(ctx context.Context, tx *gorm.DB, productIDs []uuid.UUID) (map[uuid.UUID]models.StockItem, error) {
	if len(productIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no products to lock")
	}

	ids := make([]uuid.UUID, len(productIDs))
	copy(ids, productIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var rows []models.StockItem
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id IN ?", ids).
		Order("product_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking stock rows")
	}

	locked := make(map[uuid.UUID]models.StockItem, len(rows))
	for _, row := range rows {
		locked[row.ProductID] = row
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock record not found").
				WithDetails(map[string]any{"product_id": id})
		}
	}
	return locked, nil
}

// Decrement subtracts qty from a product's available count. The UPDATE is
// guarded so the row can never go negative even if the caller's
// availability check was stale. Returns the remaining quantity.
func Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (int, error) {
	if qty <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("product_id = ? AND available_qty >= ?", productID, qty).
		UpdateColumns(map[string]any{
			"available_qty": gorm.Expr("available_qty - ?", qty),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrementing stock")
	}
	if res.RowsAffected == 0 {
		available, err := currentQty(ctx, tx, productID)
		if err != nil {
			return 0, err
		}
		return 0, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{
				"product_id": productID,
				"requested":  qty,
				"available":  available,
			})
	}

	return currentQty(ctx, tx, productID)
}

// Increment returns qty units of a product to the ledger and reports the
// new available count.
func Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (int, error) {
	if qty <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.StockItem{}).
		Where("product_id = ?", productID).
		UpdateColumns(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", qty),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "incrementing stock")
	}
	if res.RowsAffected == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "stock record not found").
			WithDetails(map[string]any{"product_id": productID})
	}

	return currentQty(ctx, tx, productID)
}

func currentQty(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	var item models.StockItem
	err := tx.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "stock record not found").
				WithDetails(map[string]any{"product_id": productID})
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading stock row")
	}
	return item.AvailableQty, nil
}
