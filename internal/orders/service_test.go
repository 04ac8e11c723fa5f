package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/internal/events"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	"github.com/nexchakra/storefront-backend/pkg/enums"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:orders_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS stock_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
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

type ordersFixture struct {
	db    *gorm.DB
	svc   Service
	obs   *events.Observer
	owner Actor
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()

	db := newTestDB(t)
	hub := events.NewHub(events.HubParams{ObserverBuffer: 32})
	obs := hub.Subscribe()
	t.Cleanup(obs.Close)

	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(db),
		TxRunner: testTxRunner{db: db},
		Hub:      hub,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &ordersFixture{
		db:  db,
		svc: svc,
		obs: obs,
		owner: Actor{
			UserID: uuid.New(),
			Role:   enums.UserRoleCustomer,
		},
	}
}

func (f *ordersFixture) seedOrder(t *testing.T, status enums.OrderStatus, lines map[uuid.UUID]int) uuid.UUID {
	t.Helper()

	order := models.Order{
		ID:            uuid.New(),
		UserID:        f.owner.UserID,
		AddressID:     uuid.New(),
		Status:        status,
		PaymentStatus: enums.PaymentStatusPending,
		TotalAmount:   decimal.RequireFromString("30.00"),
	}
	for productID, qty := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   productID,
			ProductName: "snapshot",
			UnitPrice:   decimal.RequireFromString("10.00"),
			Quantity:    qty,
			LineTotal:   decimal.RequireFromString("10.00").Mul(decimal.NewFromInt(int64(qty))),
		})
	}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order.ID
}

func (f *ordersFixture) seedStock(t *testing.T, productID uuid.UUID, qty int) {
	t.Helper()
	if err := f.db.Create(&models.StockItem{ProductID: productID, AvailableQty: qty}).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func (f *ordersFixture) availableQty(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var item models.StockItem
	if err := f.db.First(&item, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	return item.AvailableQty
}

func (f *ordersFixture) drainEventTypes(t *testing.T) []events.Type {
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

func TestCancelPendingOrderRestocks(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	product := uuid.New()
	f.seedStock(t, product, 2)
	orderID := f.seedOrder(t, enums.OrderStatusPending, map[uuid.UUID]int{product: 3})

	dto, err := f.svc.Cancel(ctx, f.owner, orderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", dto.Status)
	}
	if dto.CancelledAt == nil {
		t.Fatalf("expected cancelled_at to be stamped")
	}

	if qty := f.availableQty(t, product); qty != 5 {
		t.Fatalf("expected restock to 5, got %d", qty)
	}

	types := f.drainEventTypes(t)
	if len(types) != 2 {
		t.Fatalf("expected 2 events (stock update, cancelled), got %v", types)
	}
	if types[0] != events.TypeStockUpdate {
		t.Fatalf("expected stock update first, got %v", types)
	}
	if types[1] != events.TypeOrderCancelled {
		t.Fatalf("expected order cancelled last, got %v", types)
	}
}

func TestCancelPaidOrderRejected(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	product := uuid.New()
	f.seedStock(t, product, 2)
	orderID := f.seedOrder(t, enums.OrderStatusPaid, map[uuid.UUID]int{product: 3})

	_, err := f.svc.Cancel(ctx, f.owner, orderID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict for paid order, got %v", err)
	}

	if qty := f.availableQty(t, product); qty != 2 {
		t.Fatalf("rejected cancel must not restock, got %d", qty)
	}
	order, err := f.svc.Get(ctx, f.owner, orderID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected order to stay paid, got %s", order.Status)
	}
	if types := f.drainEventTypes(t); len(types) != 0 {
		t.Fatalf("rejected cancel must not publish events, got %v", types)
	}
}

func TestCancelTwiceRejected(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	product := uuid.New()
	f.seedStock(t, product, 0)
	orderID := f.seedOrder(t, enums.OrderStatusPending, map[uuid.UUID]int{product: 1})

	if _, err := f.svc.Cancel(ctx, f.owner, orderID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	f.drainEventTypes(t)

	_, err := f.svc.Cancel(ctx, f.owner, orderID)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// Restock must not run twice.
	if qty := f.availableQty(t, product); qty != 1 {
		t.Fatalf("expected stock 1 after single restock, got %d", qty)
	}
	if types := f.drainEventTypes(t); len(types) != 0 {
		t.Fatalf("failed cancel must not publish events, got %v", types)
	}
}

func TestCancelShippedRejected(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	product := uuid.New()
	f.seedStock(t, product, 0)
	orderID := f.seedOrder(t, enums.OrderStatusShipped, map[uuid.UUID]int{product: 1})

	_, err := f.svc.Cancel(context.Background(), f.owner, orderID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCancelForeignOrderForbidden(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	product := uuid.New()
	f.seedStock(t, product, 0)
	orderID := f.seedOrder(t, enums.OrderStatusPending, map[uuid.UUID]int{product: 1})

	stranger := Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	_, err := f.svc.Cancel(context.Background(), stranger, orderID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	if _, err := f.svc.Cancel(context.Background(), admin, orderID); err != nil {
		t.Fatalf("admin cancel should succeed: %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	product := uuid.New()
	f.seedStock(t, product, 0)
	orderID := f.seedOrder(t, enums.OrderStatusPending, map[uuid.UUID]int{product: 1})

	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	dto, err := f.svc.UpdateStatus(ctx, admin, orderID, enums.OrderStatusPaid)
	if err != nil {
		t.Fatalf("pending -> paid: %v", err)
	}
	if dto.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", dto.Status)
	}
	if dto.PaymentStatus != enums.PaymentStatusSuccess {
		t.Fatalf("expected payment status success, got %s", dto.PaymentStatus)
	}

	if _, err := f.svc.UpdateStatus(ctx, admin, orderID, enums.OrderStatusDelivered); err == nil {
		t.Fatalf("paid -> delivered must be rejected")
	}

	if _, err := f.svc.UpdateStatus(ctx, f.owner, orderID, enums.OrderStatusShipped); err == nil {
		t.Fatalf("non-admin must not update status")
	}

	if _, err := f.svc.UpdateStatus(ctx, admin, orderID, enums.OrderStatusShipped); err != nil {
		t.Fatalf("paid -> shipped: %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, admin, orderID, enums.OrderStatusDelivered); err != nil {
		t.Fatalf("shipped -> delivered: %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	f := newOrdersFixture(t)
	ctx := context.Background()
	product := uuid.New()
	f.seedStock(t, product, 0)
	orderID := f.seedOrder(t, enums.OrderStatusPending, map[uuid.UUID]int{product: 1})

	if _, err := f.svc.Get(ctx, f.owner, orderID); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	stranger := Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	if _, err := f.svc.Get(ctx, stranger, orderID); err == nil {
		t.Fatalf("stranger read must fail")
	}

	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	if _, err := f.svc.Get(ctx, admin, orderID); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}
