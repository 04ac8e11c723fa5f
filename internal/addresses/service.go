package addresses

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/pkg/db/models"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
)

// ServiceParams groups dependencies for the address service.
type ServiceParams struct {
	Repo *Repository
}

// Service exposes business rules for shipping addresses.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error)
	Create(ctx context.Context, userID uuid.UUID, input CreateAddressInput) (AddressDTO, error)
	Delete(ctx context.Context, userID, addressID uuid.UUID) error
	EnsureOwned(ctx context.Context, userID, addressID uuid.UUID) error
}

type service struct {
	repo *Repository
}

// NewService builds an address service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address repo is required")
	}
	return &service{repo: params.Repo}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing addresses")
	}
	out := make([]AddressDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateAddressInput) (AddressDTO, error) {
	if userID == uuid.Nil {
		return AddressDTO{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	address := models.Address{
		UserID:     userID,
		Line1:      strings.TrimSpace(input.Line1),
		Line2:      input.Line2,
		City:       strings.TrimSpace(input.City),
		State:      strings.TrimSpace(input.State),
		PostalCode: strings.TrimSpace(input.PostalCode),
		Country:    strings.TrimSpace(input.Country),
		IsDefault:  input.IsDefault,
	}
	if err := s.repo.Create(ctx, &address); err != nil {
		return AddressDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating address")
	}
	return toDTO(address), nil
}

func (s *service) Delete(ctx context.Context, userID, addressID uuid.UUID) error {
	affected, err := s.repo.Delete(ctx, userID, addressID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting address")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return nil
}

// EnsureOwned verifies the address exists and belongs to the given user.
func (s *service) EnsureOwned(ctx context.Context, userID, addressID uuid.UUID) error {
	address, err := s.repo.FindByID(ctx, addressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "address not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading address")
	}
	if address.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "address does not belong to user")
	}
	return nil
}
