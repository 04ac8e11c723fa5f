package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/internal/events"
	"github.com/nexchakra/storefront-backend/internal/stock"
	"github.com/nexchakra/storefront-backend/pkg/db"
	"github.com/nexchakra/storefront-backend/pkg/enums"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
	"github.com/nexchakra/storefront-backend/pkg/logger"
	"github.com/nexchakra/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the orders service.
type ServiceParams struct {
	Repo        *Repository
	TxRunner    txRunner
	Hub         events.Publisher
	Logger      *logger.Logger
	LockTimeout time.Duration
}

// Service exposes order reads, cancellation, and admin lifecycle transitions.
type Service interface {
	Get(ctx context.Context, actor Actor, orderID uuid.UUID) (OrderDTO, error)
	ListMine(ctx context.Context, actor Actor, params pagination.Params) (OrderPageDTO, error)
	Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (OrderDTO, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, next enums.OrderStatus) (OrderDTO, error)
}

type service struct {
	repo        *Repository
	txRunner    txRunner
	hub         events.Publisher
	logg        *logger.Logger
	lockTimeout time.Duration
}

// NewService builds an orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders repo is required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx runner is required")
	}
	return &service{
		repo:        params.Repo,
		txRunner:    params.TxRunner,
		hub:         params.Hub,
		logg:        params.Logger,
		lockTimeout: params.LockTimeout,
	}, nil
}

func (s *service) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
		}
		return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
	}
	if order.UserID != actor.UserID && !actor.IsAdmin() {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return ToDTO(*order), nil
}

func (s *service) ListMine(ctx context.Context, actor Actor, params pagination.Params) (OrderPageDTO, error) {
	page, err := s.repo.ListByUser(ctx, actor.UserID, params)
	if err != nil {
		return OrderPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing orders")
	}
	return page, nil
}

// Cancel moves an order to cancelled and returns every item's quantity to
// the stock ledger. The status write and the restock share one transaction;
// events go out only after commit.
func (s *service) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (OrderDTO, error) {
	var (
		result OrderDTO
		buf    events.Buffer
	)

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := stock.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
		}
		if order.UserID != actor.UserID && !actor.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if !order.Status.Cancellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}

		if err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusCancelled); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating order status")
		}

		// Restock announces the new quantity only; low stock warnings are
		// reserved for decrements.
		for _, item := range order.Items {
			remaining, err := stock.Increment(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			buf.Add(events.NewStockUpdate(item.ProductID, remaining))
		}
		buf.Add(events.NewOrderCancelled(order.ID))

		refreshed, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading order")
		}
		result = ToDTO(*refreshed)
		return nil
	})
	if err != nil {
		if db.IsLockTimeout(err) {
			return OrderDTO{}, pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "order is busy")
		}
		return OrderDTO{}, err
	}

	buf.Flush(ctx, s.hub)
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "order_id", orderID.String()), "order cancelled")
	}
	return result, nil
}

// UpdateStatus applies an admin lifecycle transition. Cancellation goes
// through Cancel so the restock path cannot be skipped.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, next enums.OrderStatus) (OrderDTO, error) {
	if !actor.IsAdmin() {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if !next.IsValid() {
		return OrderDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if next == enums.OrderStatusCancelled {
		return s.Cancel(ctx, actor, orderID)
	}

	var result OrderDTO
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading order")
		}
		if !order.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "state transition disallowed").
				WithDetails(map[string]any{"from": order.Status, "to": next})
		}
		if err := repo.UpdateStatus(ctx, order.ID, next); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating order status")
		}

		refreshed, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reloading order")
		}
		result = ToDTO(*refreshed)
		return nil
	})
	if err != nil {
		return OrderDTO{}, err
	}
	return result, nil
}
