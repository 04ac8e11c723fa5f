package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/pkg/db"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
	"github.com/nexchakra/storefront-backend/pkg/pagination"
)

// ServiceParams groups dependencies for the catalog service.
type ServiceParams struct {
	Repo *Repository
}

// Service exposes business rules for browsing and administering the catalog.
type Service interface {
	ListCategories(ctx context.Context) ([]CategoryDTO, error)
	CreateCategory(ctx context.Context, input CreateCategoryInput) (CategoryDTO, error)
	ListProducts(ctx context.Context, categoryID *uuid.UUID, params pagination.Params) (ProductPageDTO, error)
	GetProduct(ctx context.Context, id uuid.UUID) (ProductDTO, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (ProductDTO, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (ProductDTO, error)
}

type service struct {
	repo *Repository
}

// NewService builds a catalog service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	return &service{repo: params.Repo}, nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing categories")
	}
	out := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryToDTO(c))
	}
	return out, nil
}

func (s *service) CreateCategory(ctx context.Context, input CreateCategoryInput) (CategoryDTO, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if slug == "" {
		return CategoryDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}

	category := models.Category{
		Name:        strings.TrimSpace(input.Name),
		Slug:        slug,
		Description: input.Description,
	}
	if err := s.repo.CreateCategory(ctx, &category); err != nil {
		if db.IsUniqueViolation(err, "") {
			return CategoryDTO{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "category slug already exists")
		}
		return CategoryDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating category")
	}
	return categoryToDTO(category), nil
}

func (s *service) ListProducts(ctx context.Context, categoryID *uuid.UUID, params pagination.Params) (ProductPageDTO, error) {
	page, err := s.repo.ListProducts(ctx, categoryID, params)
	if err != nil {
		return ProductPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing products")
	}
	return page, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (ProductDTO, error) {
	product, err := s.repo.FindProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}
	return productToDTO(*product), nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (ProductDTO, error) {
	if err := validatePricing(input.Price, input.DiscountPrice); err != nil {
		return ProductDTO{}, err
	}
	if input.InitialStock < 0 {
		return ProductDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "initial stock cannot be negative")
	}
	if _, err := s.repo.FindCategoryByID(ctx, input.CategoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "category not found")
		}
		return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading category")
	}

	variants := make([]models.ProductVariant, 0, len(input.Variants))
	for _, v := range input.Variants {
		if v.Price != nil && v.Price.IsNegative() {
			return ProductDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "variant price cannot be negative")
		}
		variants = append(variants, models.ProductVariant{
			Name:  strings.TrimSpace(v.Name),
			Value: strings.TrimSpace(v.Value),
			Price: v.Price,
		})
	}

	product := models.Product{
		CategoryID:    input.CategoryID,
		SKU:           strings.TrimSpace(input.SKU),
		Name:          strings.TrimSpace(input.Name),
		Description:   input.Description,
		Price:         input.Price,
		DiscountPrice: input.DiscountPrice,
		IsActive:      true,
		Variants:      variants,
	}
	if err := s.repo.CreateProduct(ctx, &product, input.InitialStock); err != nil {
		if db.IsUniqueViolation(err, "") {
			return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already exists")
		}
		return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating product")
	}

	product.Stock = &models.StockItem{ProductID: product.ID, AvailableQty: input.InitialStock}
	return productToDTO(product), nil
}

func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (ProductDTO, error) {
	product, err := s.repo.FindProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "product not found")
		}
		return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}

	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.DiscountPrice != nil {
		product.DiscountPrice = input.DiscountPrice
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if err := validatePricing(product.Price, product.DiscountPrice); err != nil {
		return ProductDTO{}, err
	}

	if err := s.repo.SaveProduct(ctx, product); err != nil {
		return ProductDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving product")
	}
	return productToDTO(*product), nil
}

func validatePricing(price decimal.Decimal, discount *decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if discount != nil {
		if discount.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount price cannot be negative")
		}
		if discount.GreaterThan(price) {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount price cannot exceed list price")
		}
	}
	return nil
}
