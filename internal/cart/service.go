package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/internal/catalog"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

// ServiceParams groups dependencies for the cart service.
type ServiceParams struct {
	CartRepo    *Repository
	ProductRepo *catalog.Repository
}

// Service exposes business rules for cart management.
type Service interface {
	GetCart(ctx context.Context, userID uuid.UUID) (CartDTO, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (CartDTO, error)
	UpdateItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) (CartDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID) (CartDTO, error)
}

type service struct {
	cartRepo    *Repository
	productRepo *catalog.Repository
}

// NewService builds a cart service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.CartRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	return &service{
		cartRepo:    params.CartRepo,
		productRepo: params.ProductRepo,
	}, nil
}

func (s *service) GetCart(ctx context.Context, userID uuid.UUID) (CartDTO, error) {
	record, err := s.cartRepo.FindOrCreateByUser(ctx, userID)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}
	return s.project(ctx, record.ID, record.UserID)
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (CartDTO, error) {
	if input.Quantity <= 0 {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.productRepo.FindProductByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}
	if !product.IsActive {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	if input.VariantID != nil && product.FindVariant(*input.VariantID) == nil {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product").
			WithDetails(map[string]any{"product_id": input.ProductID, "variant_id": *input.VariantID})
	}

	record, err := s.cartRepo.FindOrCreateByUser(ctx, userID)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}
	if err := s.cartRepo.UpsertItem(ctx, record.ID, input.ProductID, input.VariantID, input.Quantity); err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving cart item")
	}
	return s.project(ctx, record.ID, userID)
}

func (s *service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) (CartDTO, error) {
	return s.AddItem(ctx, userID, AddItemInput{ProductID: productID, VariantID: variantID, Quantity: quantity})
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID) (CartDTO, error) {
	record, err := s.cartRepo.FindOrCreateByUser(ctx, userID)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}
	affected, err := s.cartRepo.RemoveItem(ctx, record.ID, productID, variantID)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "removing cart item")
	}
	if affected == 0 {
		return CartDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.project(ctx, record.ID, userID)
}

// project rebuilds the cart DTO against the live catalog. Inactive products
// stay visible with their lines so checkout can reject them explicitly.
func (s *service) project(ctx context.Context, cartID, userID uuid.UUID) (CartDTO, error) {
	record, err := s.cartRepo.FindOrCreateByUser(ctx, userID)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}

	ids := make([]uuid.UUID, 0, len(record.Items))
	for _, item := range record.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productRepo.FindProductsByIDs(ctx, ids)
	if err != nil {
		return CartDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart products")
	}
	byID := make(map[uuid.UUID]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	dto := CartDTO{ID: cartID, Lines: make([]CartLineDTO, 0, len(record.Items)), Subtotal: decimal.Zero}
	for _, item := range record.Items {
		idx, ok := byID[item.ProductID]
		if !ok {
			continue
		}
		product := products[idx]

		var variant *models.ProductVariant
		var variantLabel *string
		if item.VariantID != nil {
			if variant = product.FindVariant(*item.VariantID); variant != nil {
				label := variant.Label()
				variantLabel = &label
			}
		}

		unit := product.UnitPrice(variant)
		line := unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		available := 0
		if product.Stock != nil {
			available = product.Stock.AvailableQty
		}
		dto.Lines = append(dto.Lines, CartLineDTO{
			ProductID:    product.ID,
			ProductName:  product.Name,
			VariantID:    item.VariantID,
			VariantLabel: variantLabel,
			UnitPrice:    unit,
			Quantity:     item.Quantity,
			LineSubtotal: line,
			AvailableQty: available,
		})
		dto.Subtotal = dto.Subtotal.Add(line)
	}
	return dto, nil
}
