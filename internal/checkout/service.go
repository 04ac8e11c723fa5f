package checkout

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/internal/addresses"
	"github.com/nexchakra/storefront-backend/internal/cart"
	"github.com/nexchakra/storefront-backend/internal/catalog"
	"github.com/nexchakra/storefront-backend/internal/events"
	"github.com/nexchakra/storefront-backend/internal/orders"
	"github.com/nexchakra/storefront-backend/internal/stock"
	"github.com/nexchakra/storefront-backend/pkg/db"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	"github.com/nexchakra/storefront-backend/pkg/enums"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
	"github.com/nexchakra/storefront-backend/pkg/logger"
	"github.com/nexchakra/storefront-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutInput captures the payload for a checkout attempt.
type CheckoutInput struct {
	AddressID uuid.UUID `json:"address_id" validate:"required"`
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	TxRunner    txRunner
	CartRepo    *cart.Repository
	ProductRepo *catalog.Repository
	OrderRepo   *orders.Repository
	AddressSvc  addresses.Service
	Hub         events.Publisher
	Metrics     *metrics.CheckoutMetrics
	Logger      *logger.Logger
	LockTimeout time.Duration
}

// Service converts a cart into an order atomically.
type Service interface {
	Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (orders.OrderDTO, error)
}

type service struct {
	txRunner    txRunner
	cartRepo    *cart.Repository
	productRepo *catalog.Repository
	orderRepo   *orders.Repository
	addressSvc  addresses.Service
	hub         events.Publisher
	metrics     *metrics.CheckoutMetrics
	logg        *logger.Logger
	lockTimeout time.Duration
}

// NewService builds a checkout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx runner is required")
	}
	if params.CartRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order repo is required")
	}
	if params.AddressSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address service is required")
	}
	return &service{
		txRunner:    params.TxRunner,
		cartRepo:    params.CartRepo,
		productRepo: params.ProductRepo,
		orderRepo:   params.OrderRepo,
		addressSvc:  params.AddressSvc,
		hub:         params.Hub,
		metrics:     params.Metrics,
		logg:        params.Logger,
		lockTimeout: params.LockTimeout,
	}, nil
}

// Execute runs the checkout pipeline: lock stock in ascending product ID
// order, verify and decrement availability, snapshot prices, create the
// order, clear the cart, then publish events after the commit.
func (s *service) Execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (orders.OrderDTO, error) {
	started := time.Now()

	result, err := s.execute(ctx, userID, input)
	s.metrics.Observe(resultLabel(err), time.Since(started))
	return result, err
}

func (s *service) execute(ctx context.Context, userID uuid.UUID, input CheckoutInput) (orders.OrderDTO, error) {
	if userID == uuid.Nil {
		return orders.OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if err := s.addressSvc.EnsureOwned(ctx, userID, input.AddressID); err != nil {
		return orders.OrderDTO{}, err
	}

	var (
		result orders.OrderDTO
		buf    events.Buffer
	)

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := stock.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}

		cartRepo := s.cartRepo.WithTx(tx)
		record, err := cartRepo.FindOrCreateByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		lines := sortedLines(record.Items)
		productIDs := make([]uuid.UUID, len(lines))
		for i, line := range lines {
			productIDs[i] = line.ProductID
		}

		if _, err := stock.LockItems(ctx, tx, productIDs); err != nil {
			return err
		}

		productRows, err := s.productRepo.WithTx(tx).FindProductsByIDs(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading products")
		}
		products := make(map[uuid.UUID]models.Product, len(productRows))
		for _, p := range productRows {
			products[p.ID] = p
		}

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			product, ok := products[line.ProductID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product no longer exists").
					WithDetails(map[string]any{"product_id": line.ProductID})
			}
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
					WithDetails(map[string]any{"product_id": line.ProductID})
			}

			var variant *models.ProductVariant
			var variantLabel *string
			if line.VariantID != nil {
				if variant = product.FindVariant(*line.VariantID); variant == nil {
					return pkgerrors.New(pkgerrors.CodeValidation, "variant no longer exists").
						WithDetails(map[string]any{"product_id": line.ProductID, "variant_id": *line.VariantID})
				}
				label := variant.Label()
				variantLabel = &label
			}

			remaining, err := stock.Decrement(ctx, tx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			buf.Add(events.NewStockUpdate(line.ProductID, remaining))
			if remaining <= events.LowStockThreshold {
				buf.Add(events.NewLowStockWarning(line.ProductID, remaining))
			}

			unit := product.UnitPrice(variant)
			lineTotal := unit.Mul(decimal.NewFromInt(int64(line.Quantity)))
			total = total.Add(lineTotal)
			items = append(items, models.OrderItem{
				ProductID:    line.ProductID,
				VariantID:    line.VariantID,
				ProductName:  product.Name,
				VariantLabel: variantLabel,
				UnitPrice:    unit,
				Quantity:     line.Quantity,
				LineTotal:    lineTotal,
			})
		}

		order := models.Order{
			UserID:        userID,
			AddressID:     input.AddressID,
			Status:        enums.OrderStatusPending,
			PaymentStatus: enums.PaymentStatusPending,
			TotalAmount:   total,
			Items:         items,
		}
		if err := s.orderRepo.WithTx(tx).Create(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating order")
		}

		if err := cartRepo.ClearItems(ctx, record.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cart")
		}

		buf.Add(events.NewNewOrder(order.ID, userID, total))
		result = orders.ToDTO(order)
		return nil
	})
	if err != nil {
		if db.IsLockTimeout(err) {
			return orders.OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "stock rows are busy")
		}
		return orders.OrderDTO{}, err
	}

	buf.Flush(ctx, s.hub)
	if s.logg != nil {
		entry := s.logg.WithFields(ctx, map[string]any{
			"order_id": result.ID.String(),
			"total":    result.TotalAmount.String(),
		})
		s.logg.Info(entry, "checkout completed")
	}
	return result, nil
}

// sortedLines returns the cart lines ordered by ascending product ID so
// every checkout acquires row locks in the same global order.
func sortedLines(items []models.CartItem) []models.CartItem {
	lines := make([]models.CartItem, len(items))
	copy(lines, items)
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})
	return lines
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeInsufficientStock:
			return "insufficient_stock"
		case pkgerrors.CodeLockTimeout:
			return "lock_timeout"
		case pkgerrors.CodeValidation:
			return "validation"
		}
	}
	return "error"
}
