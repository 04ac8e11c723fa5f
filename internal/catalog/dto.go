package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexchakra/storefront-backend/pkg/db/models"
)

// CategoryDTO is the public category projection.
type CategoryDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
}

// ProductImageDTO is one gallery entry.
type ProductImageDTO struct {
	ID       uuid.UUID `json:"id"`
	URL      string    `json:"url"`
	AltText  *string   `json:"alt_text,omitempty"`
	Position int       `json:"position"`
}

// ProductVariantDTO is one selectable option of a product.
type ProductVariantDTO struct {
	ID    uuid.UUID        `json:"id"`
	Name  string           `json:"name"`
	Value string           `json:"value"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

// ProductDTO is the public product projection including live stock.
type ProductDTO struct {
	ID             uuid.UUID           `json:"id"`
	CategoryID     uuid.UUID           `json:"category_id"`
	SKU            string              `json:"sku"`
	Name           string              `json:"name"`
	Description    *string             `json:"description,omitempty"`
	Price          decimal.Decimal     `json:"price"`
	DiscountPrice  *decimal.Decimal    `json:"discount_price,omitempty"`
	EffectivePrice decimal.Decimal     `json:"effective_price"`
	IsActive       bool                `json:"is_active"`
	AvailableQty   int                 `json:"available_qty"`
	Images         []ProductImageDTO   `json:"images"`
	Variants       []ProductVariantDTO `json:"variants"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// ProductPageDTO is one page of catalog results.
type ProductPageDTO struct {
	Items      []ProductDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
	Total      int64        `json:"total"`
}

// CreateVariantInput captures one variant row inside a product create.
type CreateVariantInput struct {
	Name  string           `json:"name" validate:"required"`
	Value string           `json:"value" validate:"required"`
	Price *decimal.Decimal `json:"price"`
}

// CreateProductInput captures the admin payload for a new listing.
type CreateProductInput struct {
	CategoryID    uuid.UUID            `json:"category_id" validate:"required"`
	SKU           string               `json:"sku" validate:"required"`
	Name          string               `json:"name" validate:"required"`
	Description   *string              `json:"description"`
	Price         decimal.Decimal      `json:"price" validate:"required"`
	DiscountPrice *decimal.Decimal     `json:"discount_price"`
	InitialStock  int                  `json:"initial_stock" validate:"gte=0"`
	Variants      []CreateVariantInput `json:"variants" validate:"dive"`
}

// UpdateProductInput captures a partial admin update.
type UpdateProductInput struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	IsActive      *bool            `json:"is_active"`
}

// CreateCategoryInput captures the admin payload for a new category.
type CreateCategoryInput struct {
	Name        string  `json:"name" validate:"required"`
	Slug        string  `json:"slug" validate:"required"`
	Description *string `json:"description"`
}

func categoryToDTO(c models.Category) CategoryDTO {
	return CategoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
	}
}

func productToDTO(p models.Product) ProductDTO {
	images := make([]ProductImageDTO, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, ProductImageDTO{
			ID:       img.ID,
			URL:      img.URL,
			AltText:  img.AltText,
			Position: img.Position,
		})
	}

	variants := make([]ProductVariantDTO, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, ProductVariantDTO{
			ID:    v.ID,
			Name:  v.Name,
			Value: v.Value,
			Price: v.Price,
		})
	}

	available := 0
	if p.Stock != nil {
		available = p.Stock.AvailableQty
	}

	return ProductDTO{
		ID:             p.ID,
		CategoryID:     p.CategoryID,
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		DiscountPrice:  p.DiscountPrice,
		EffectivePrice: p.EffectivePrice(),
		IsActive:       p.IsActive,
		AvailableQty:   available,
		Images:         images,
		Variants:       variants,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
