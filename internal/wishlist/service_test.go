package wishlist

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/internal/catalog"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:wishlist_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  category_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  discount_price TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS stock_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS product_images (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  url TEXT NOT NULL,
  alt_text TEXT,
  position INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  value TEXT NOT NULL,
  price TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS wishlist_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  created_at DATETIME,
  UNIQUE (user_id, product_id)
);`,
	}
	for _, schema := range schemas {
		if err := db.Exec(schema).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type wishlistFixture struct {
	db     *gorm.DB
	svc    Service
	userID uuid.UUID
}

func newWishlistFixture(t *testing.T) *wishlistFixture {
	t.Helper()

	db := newTestDB(t)
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(db),
		ProductRepo: catalog.NewRepository(db),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &wishlistFixture{db: db, svc: svc, userID: uuid.New()}
}

func (f *wishlistFixture) seedProduct(t *testing.T, name, price string, active bool) uuid.UUID {
	t.Helper()

	product := models.Product{
		ID:         uuid.New(),
		CategoryID: uuid.New(),
		SKU:        fmt.Sprintf("SKU-%s", uuid.NewString()[:8]),
		Name:       name,
		Price:      decimal.RequireFromString(price),
		IsActive:   active,
	}
	if err := f.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := f.db.Create(&models.StockItem{ProductID: product.ID, AvailableQty: 4}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	return product.ID
}

func TestWishlistAddAndList(t *testing.T) {
	t.Parallel()

	f := newWishlistFixture(t)
	ctx := context.Background()
	ring := f.seedProduct(t, "Gold Ring", "120.00", true)
	cuff := f.seedProduct(t, "Silver Cuff", "45.50", false)

	if err := f.svc.Add(ctx, f.userID, AddEntryInput{ProductID: ring}); err != nil {
		t.Fatalf("add ring: %v", err)
	}
	if err := f.svc.Add(ctx, f.userID, AddEntryInput{ProductID: cuff}); err != nil {
		t.Fatalf("add cuff: %v", err)
	}

	entries, err := f.svc.List(ctx, f.userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ProductID != ring {
		t.Fatalf("expected insertion order, got %+v", entries)
	}
	if !entries[0].UnitPrice.Equal(decimal.RequireFromString("120.00")) {
		t.Fatalf("expected current price, got %s", entries[0].UnitPrice)
	}
	if entries[1].IsActive {
		t.Fatalf("inactive product must be flagged")
	}
	if entries[0].AvailableQty != 4 {
		t.Fatalf("expected availability 4, got %d", entries[0].AvailableQty)
	}
}

func TestWishlistDuplicateConflicts(t *testing.T) {
	t.Parallel()

	f := newWishlistFixture(t)
	ctx := context.Background()
	ring := f.seedProduct(t, "Gold Ring", "120.00", true)

	if err := f.svc.Add(ctx, f.userID, AddEntryInput{ProductID: ring}); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := f.svc.Add(ctx, f.userID, AddEntryInput{ProductID: ring})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	// A different user may save the same product.
	if err := f.svc.Add(ctx, uuid.New(), AddEntryInput{ProductID: ring}); err != nil {
		t.Fatalf("other user add: %v", err)
	}
}

func TestWishlistUnknownProductRejected(t *testing.T) {
	t.Parallel()

	f := newWishlistFixture(t)
	err := f.svc.Add(context.Background(), f.userID, AddEntryInput{ProductID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWishlistRemove(t *testing.T) {
	t.Parallel()

	f := newWishlistFixture(t)
	ctx := context.Background()
	ring := f.seedProduct(t, "Gold Ring", "120.00", true)

	if err := f.svc.Add(ctx, f.userID, AddEntryInput{ProductID: ring}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.svc.Remove(ctx, f.userID, ring); err != nil {
		t.Fatalf("remove: %v", err)
	}

	err := f.svc.Remove(ctx, f.userID, ring)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found on second remove, got %v", err)
	}

	entries, err := f.svc.List(ctx, f.userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty wishlist, got %d entries", len(entries))
	}
}
