package stock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/pkg/db/models"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:stock_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS stock_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func seedStock(t *testing.T, db *gorm.DB, productID uuid.UUID, qty int) {
	t.Helper()
	if err := db.Create(&models.StockItem{ProductID: productID, AvailableQty: qty}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func TestLockItemsReturnsAllRows(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productA := uuid.New()
	productB := uuid.New()
	seedStock(t, db, productA, 5)
	seedStock(t, db, productB, 1)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := LockItems(ctx, tx, []uuid.UUID{productB, productA})
		if err != nil {
			return err
		}
		if len(locked) != 2 {
			t.Fatalf("expected 2 locked rows, got %d", len(locked))
		}
		if locked[productA].AvailableQty != 5 {
			t.Fatalf("unexpected qty for product a: %d", locked[productA].AvailableQty)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lock transaction: %v", err)
	}
}

func TestLockItemsMissingRow(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedStock(t, db, product, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := LockItems(ctx, tx, []uuid.UUID{product, uuid.New()})
		return err
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestDecrementGuardsAgainstOverdraw(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedStock(t, db, product, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		remaining, err := Decrement(ctx, tx, product, 3)
		if err != nil {
			return err
		}
		if remaining != 2 {
			t.Fatalf("expected 2 remaining, got %d", remaining)
		}

		_, err = Decrement(ctx, tx, product, 3)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
			t.Fatalf("expected insufficient stock error, got %v", err)
		}
		details, ok := typed.Details().(map[string]any)
		if !ok {
			t.Fatalf("expected details map, got %T", typed.Details())
		}
		if details["available"] != 2 {
			t.Fatalf("expected available=2 in details, got %v", details["available"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	var item models.StockItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	if item.AvailableQty != 2 {
		t.Fatalf("expected 2 available after transaction, got %d", item.AvailableQty)
	}
}

func TestDecrementRejectsInvalidQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	product := uuid.New()
	seedStock(t, db, product, 5)

	_, err := Decrement(context.Background(), db, product, 0)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIncrementRestocks(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedStock(t, db, product, 1)

	remaining, err := Increment(ctx, db, product, 4)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("expected 5 after restock, got %d", remaining)
	}
}

func TestIncrementUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, err := Increment(context.Background(), db, uuid.New(), 1)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSetLockTimeoutSkipsNonPostgres(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	if err := SetLockTimeout(context.Background(), db, 0); err != nil {
		t.Fatalf("zero timeout should be a no-op: %v", err)
	}
	if err := SetLockTimeout(context.Background(), db, 5*time.Second); err != nil {
		t.Fatalf("non-postgres dialect should be skipped: %v", err)
	}
}
