package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/internal/addresses"
	"github.com/nexchakra/storefront-backend/internal/cart"
	"github.com/nexchakra/storefront-backend/internal/catalog"
	"github.com/nexchakra/storefront-backend/internal/events"
	"github.com/nexchakra/storefront-backend/internal/orders"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	"github.com/nexchakra/storefront-backend/pkg/enums"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:checkout_%s?mode=memory&cache=shared", uuid.NewString())
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
		`CREATE TABLE IF NOT EXISTS cart_records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
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
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  address_id TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  product_name TEXT NOT NULL,
  variant_label TEXT,
  unit_price TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  line_total TEXT NOT NULL,
  created_at DATETIME
);`,
	}
	for _, schema := range schemas {
		if err := db.Exec(schema).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubAddressSvc struct {
	err error
}

func (s stubAddressSvc) List(context.Context, uuid.UUID) ([]addresses.AddressDTO, error) {
	return nil, nil
}

func (s stubAddressSvc) Create(context.Context, uuid.UUID, addresses.CreateAddressInput) (addresses.AddressDTO, error) {
	return addresses.AddressDTO{}, nil
}

func (s stubAddressSvc) Delete(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (s stubAddressSvc) EnsureOwned(context.Context, uuid.UUID, uuid.UUID) error {
	return s.err
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	hub     *events.Hub
	obs     *events.Observer
	userID  uuid.UUID
	cartID  uuid.UUID
	address uuid.UUID
}

func newFixture(t *testing.T, addrErr error) *fixture {
	t.Helper()

	db := newTestDB(t)
	hub := events.NewHub(events.HubParams{ObserverBuffer: 32})
	obs := hub.Subscribe()
	t.Cleanup(obs.Close)

	svc, err := NewService(ServiceParams{
		TxRunner:    testTxRunner{db: db},
		CartRepo:    cart.NewRepository(db),
		ProductRepo: catalog.NewRepository(db),
		OrderRepo:   orders.NewRepository(db),
		AddressSvc:  stubAddressSvc{err: addrErr},
		Hub:         hub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	userID := uuid.New()
	cartID := uuid.New()
	if err := db.Create(&models.CartRecord{ID: cartID, UserID: userID}).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	return &fixture{
		db:      db,
		svc:     svc,
		hub:     hub,
		obs:     obs,
		userID:  userID,
		cartID:  cartID,
		address: uuid.New(),
	}
}

func (f *fixture) seedProduct(t *testing.T, price string, discount *string, stockQty int, active bool) uuid.UUID {
	t.Helper()

	product := models.Product{
		ID:         uuid.New(),
		CategoryID: uuid.New(),
		SKU:        uuid.NewString(),
		Name:       "product-" + uuid.NewString()[:8],
		Price:      decimal.RequireFromString(price),
		IsActive:   active,
	}
	if discount != nil {
		d := decimal.RequireFromString(*discount)
		product.DiscountPrice = &d
	}
	if err := f.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := f.db.Create(&models.StockItem{ProductID: product.ID, AvailableQty: stockQty}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	return product.ID
}

func (f *fixture) seedVariant(t *testing.T, productID uuid.UUID, name, value string, price *string) uuid.UUID {
	t.Helper()
	variant := models.ProductVariant{
		ID:        uuid.New(),
		ProductID: productID,
		Name:      name,
		Value:     value,
	}
	if price != nil {
		p := decimal.RequireFromString(*price)
		variant.Price = &p
	}
	if err := f.db.Create(&variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant.ID
}

func (f *fixture) addLine(t *testing.T, productID uuid.UUID, qty int) {
	t.Helper()
	f.addLineTo(t, f.cartID, productID, nil, qty)
}

func (f *fixture) addLineTo(t *testing.T, cartID, productID uuid.UUID, variantID *uuid.UUID, qty int) {
	t.Helper()
	item := models.CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  qty,
	}
	if err := f.db.Create(&item).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
}

func (f *fixture) availableQty(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var item models.StockItem
	if err := f.db.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	return item.AvailableQty
}

func (f *fixture) drainEventTypes(t *testing.T) []events.Type {
	t.Helper()
	var types []events.Type
	for {
		select {
		case payload := <-f.obs.C():
			var envelope struct {
				Event events.Type `json:"event"`
			}
			if err := json.Unmarshal(payload, &envelope); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			types = append(types, envelope.Event)
		default:
			return types
		}
	}
}

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	discount := "8.00"
	productA := f.seedProduct(t, "10.00", &discount, 10, true)
	productB := f.seedProduct(t, "5.00", nil, 6, true)
	f.addLine(t, productA, 2)
	f.addLine(t, productB, 6)

	order, err := f.svc.Execute(ctx, f.userID, CheckoutInput{AddressID: f.address})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", order.Status)
	}
	// 2 * 8.00 (discount applies) + 6 * 5.00 = 46.00
	if !order.TotalAmount.Equal(decimal.RequireFromString("46.00")) {
		t.Fatalf("unexpected total %s", order.TotalAmount)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	for _, item := range order.Items {
		if item.ProductID == productA && !item.UnitPrice.Equal(decimal.RequireFromString("8.00")) {
			t.Fatalf("expected discount price captured, got %s", item.UnitPrice)
		}
	}

	if qty := f.availableQty(t, productA); qty != 8 {
		t.Fatalf("expected 8 left for product a, got %d", qty)
	}
	if qty := f.availableQty(t, productB); qty != 0 {
		t.Fatalf("expected 0 left for product b, got %d", qty)
	}

	var cartCount int64
	if err := f.db.Model(&models.CartItem{}).Where("cart_id = ?", f.cartID).Count(&cartCount).Error; err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	if cartCount != 0 {
		t.Fatalf("expected cart to be cleared, %d lines remain", cartCount)
	}

	types := f.drainEventTypes(t)
	if len(types) == 0 {
		t.Fatalf("expected events after commit")
	}
	if types[len(types)-1] != events.TypeNewOrder {
		t.Fatalf("expected NEW_ORDER last, got %v", types)
	}
	sawWarning := false
	for _, typ := range types {
		if typ == events.TypeLowStockWarning {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Fatalf("expected low stock warning for product b, got %v", types)
	}
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	productA := f.seedProduct(t, "10.00", nil, 10, true)
	productB := f.seedProduct(t, "5.00", nil, 3, true)
	f.addLine(t, productA, 2)
	f.addLine(t, productB, 5)

	_, err := f.svc.Execute(ctx, f.userID, CheckoutInput{AddressID: f.address})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	if qty := f.availableQty(t, productA); qty != 10 {
		t.Fatalf("expected rollback to restore product a, got %d", qty)
	}
	if qty := f.availableQty(t, productB); qty != 3 {
		t.Fatalf("expected rollback to restore product b, got %d", qty)
	}

	var orderCount int64
	if err := f.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("expected no orders after failed checkout, got %d", orderCount)
	}

	var cartCount int64
	if err := f.db.Model(&models.CartItem{}).Where("cart_id = ?", f.cartID).Count(&cartCount).Error; err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	if cartCount != 2 {
		t.Fatalf("expected cart to survive failed checkout, got %d lines", cartCount)
	}

	if types := f.drainEventTypes(t); len(types) != 0 {
		t.Fatalf("no events may leak from a rolled back checkout, got %v", types)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.svc.Execute(context.Background(), f.userID, CheckoutInput{AddressID: f.address})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckoutInactiveProduct(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	product := f.seedProduct(t, "10.00", nil, 10, false)
	f.addLine(t, product, 1)

	_, err := f.svc.Execute(context.Background(), f.userID, CheckoutInput{AddressID: f.address})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if qty := f.availableQty(t, product); qty != 10 {
		t.Fatalf("inactive product stock must not change, got %d", qty)
	}
}

func TestCheckoutCapturesVariantPrice(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	product := f.seedProduct(t, "10.00", nil, 10, true)
	variantPrice := "12.50"
	variant := f.seedVariant(t, product, "size", "18 inch", &variantPrice)
	f.addLineTo(t, f.cartID, product, &variant, 2)

	order, err := f.svc.Execute(ctx, f.userID, CheckoutInput{AddressID: f.address})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if !order.TotalAmount.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("expected variant price to drive the total, got %s", order.TotalAmount)
	}
	if len(order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(order.Items))
	}
	item := order.Items[0]
	if item.VariantID == nil || *item.VariantID != variant {
		t.Fatalf("expected variant id on the order line, got %v", item.VariantID)
	}
	if item.VariantLabel == nil || *item.VariantLabel != "size: 18 inch" {
		t.Fatalf("expected variant label snapshot, got %v", item.VariantLabel)
	}
	if !item.UnitPrice.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected variant unit price captured, got %s", item.UnitPrice)
	}
}

func TestCheckoutRejectsForeignVariant(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	product := f.seedProduct(t, "10.00", nil, 10, true)
	other := f.seedProduct(t, "20.00", nil, 10, true)
	foreign := f.seedVariant(t, other, "size", "20 inch", nil)
	f.addLineTo(t, f.cartID, product, &foreign, 1)

	_, err := f.svc.Execute(context.Background(), f.userID, CheckoutInput{AddressID: f.address})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if qty := f.availableQty(t, product); qty != 10 {
		t.Fatalf("stock must not change on a rejected line, got %d", qty)
	}
}

// serialTxRunner serializes transactions the way the row lock on the stock
// ledger would; the sqlite test driver ignores locking clauses.
type serialTxRunner struct {
	mu sync.Mutex
	db *gorm.DB
}

func (r *serialTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.WithContext(ctx).Transaction(fn)
}

func TestCheckoutRaceForLastUnit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	product := f.seedProduct(t, "10.00", nil, 1, true)
	f.addLine(t, product, 1)

	rivalID := uuid.New()
	rivalCart := uuid.New()
	if err := f.db.Create(&models.CartRecord{ID: rivalCart, UserID: rivalID}).Error; err != nil {
		t.Fatalf("seed rival cart: %v", err)
	}
	f.addLineTo(t, rivalCart, product, nil, 1)

	svc, err := NewService(ServiceParams{
		TxRunner:    &serialTxRunner{db: f.db},
		CartRepo:    cart.NewRepository(f.db),
		ProductRepo: catalog.NewRepository(f.db),
		OrderRepo:   orders.NewRepository(f.db),
		AddressSvc:  stubAddressSvc{},
		Hub:         f.hub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, userID := range []uuid.UUID{f.userID, rivalID} {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := svc.Execute(context.Background(), userID, CheckoutInput{AddressID: uuid.New()})
			errs <- err
		}(userID)
	}
	wg.Wait()
	close(errs)

	successes, insufficient := 0, 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
			t.Fatalf("unexpected error: %v", err)
		}
		insufficient++
	}
	if successes != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one winner and one insufficient stock, got %d/%d", successes, insufficient)
	}

	if qty := f.availableQty(t, product); qty != 0 {
		t.Fatalf("expected stock drained to 0, got %d", qty)
	}
	var orderCount int64
	if err := f.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 1 {
		t.Fatalf("expected exactly one order, got %d", orderCount)
	}
}

func TestCheckoutRejectsForeignAddress(t *testing.T) {
	t.Parallel()

	f := newFixture(t, pkgerrors.New(pkgerrors.CodeForbidden, "address does not belong to user"))
	product := f.seedProduct(t, "10.00", nil, 10, true)
	f.addLine(t, product, 1)

	_, err := f.svc.Execute(context.Background(), f.userID, CheckoutInput{AddressID: f.address})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}
