package wishlist

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/internal/catalog"
	"github.com/nexchakra/storefront-backend/pkg/db"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	Repo        *Repository
	ProductRepo *catalog.Repository
}

// Service exposes business rules for saved products.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]WishlistEntryDTO, error)
	Add(ctx context.Context, userID uuid.UUID, input AddEntryInput) error
	Remove(ctx context.Context, userID, productID uuid.UUID) error
}

type service struct {
	repo        *Repository
	productRepo *catalog.Repository
}

// NewService builds a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist repo is required")
	}
	if params.ProductRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product repo is required")
	}
	return &service{
		repo:        params.Repo,
		productRepo: params.ProductRepo,
	}, nil
}

// List projects the user's entries against the live catalog. Products that
// were deleted since being saved are skipped.
func (s *service) List(ctx context.Context, userID uuid.UUID) ([]WishlistEntryDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing wishlist")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	products, err := s.productRepo.FindProductsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading wishlist products")
	}
	byID := make(map[uuid.UUID]int, len(products))
	for i, p := range products {
		byID[p.ID] = i
	}

	entries := make([]WishlistEntryDTO, 0, len(rows))
	for _, row := range rows {
		idx, ok := byID[row.ProductID]
		if !ok {
			continue
		}
		product := products[idx]
		available := 0
		if product.Stock != nil {
			available = product.Stock.AvailableQty
		}
		entries = append(entries, WishlistEntryDTO{
			ProductID:    product.ID,
			ProductName:  product.Name,
			UnitPrice:    product.EffectivePrice(),
			IsActive:     product.IsActive,
			AvailableQty: available,
			AddedAt:      row.CreatedAt,
		})
	}
	return entries, nil
}

func (s *service) Add(ctx context.Context, userID uuid.UUID, input AddEntryInput) error {
	if _, err := s.productRepo.FindProductByID(ctx, input.ProductID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}

	item := models.WishlistItem{UserID: userID, ProductID: input.ProductID}
	if err := s.repo.Add(ctx, &item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product already saved")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving wishlist entry")
	}
	return nil
}

func (s *service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	affected, err := s.repo.Remove(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "removing wishlist entry")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wishlist entry not found")
	}
	return nil
}
