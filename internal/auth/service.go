package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nexchakra/storefront-backend/pkg/auth"
	"github.com/nexchakra/storefront-backend/pkg/auth/session"
	"github.com/nexchakra/storefront-backend/pkg/config"
	"github.com/nexchakra/storefront-backend/pkg/db"
	"github.com/nexchakra/storefront-backend/pkg/db/models"
	"github.com/nexchakra/storefront-backend/pkg/enums"
	pkgerrors "github.com/nexchakra/storefront-backend/pkg/errors"
	"github.com/nexchakra/storefront-backend/pkg/logger"
	"github.com/nexchakra/storefront-backend/pkg/security"
)

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams groups dependencies for the auth service.
type ServiceParams struct {
	Repo     *Repository
	Sessions sessionManager
	JWT      config.JWTConfig
	Password config.PasswordConfig
	Logger   *logger.Logger
}

// Service exposes registration and the session lifecycle.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (UserDTO, error)
	Login(ctx context.Context, input LoginInput) (TokenPairDTO, error)
	Refresh(ctx context.Context, userID uuid.UUID, accessID string, input RefreshInput) (TokenPairDTO, error)
	Logout(ctx context.Context, accessID string) error
	Me(ctx context.Context, userID uuid.UUID) (UserDTO, error)
}

type service struct {
	repo     *Repository
	sessions sessionManager
	jwtCfg   config.JWTConfig
	pwCfg    config.PasswordConfig
	logg     *logger.Logger
}

// NewService builds an auth service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user repo is required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session manager is required")
	}
	return &service{
		repo:     params.Repo,
		sessions: params.Sessions,
		jwtCfg:   params.JWT,
		pwCfg:    params.Password,
		logg:     params.Logger,
	}, nil
}

// Register creates a customer account. Duplicate emails surface as a conflict.
func (s *service) Register(ctx context.Context, input RegisterInput) (UserDTO, error) {
	hash, err := security.HashPassword(input.Password, s.pwCfg)
	if err != nil {
		return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing password")
	}

	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Phone:        input.Phone,
		Role:         enums.UserRoleCustomer,
		Status:       enums.UserStatusActive,
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		if db.IsUniqueViolation(err, "") {
			return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating user")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "user_id", user.ID.String()), "user registered")
	}
	return toUserDTO(user), nil
}

// Login verifies credentials and issues an access/refresh token pair. The
// refresh token is stored in Redis keyed by the JWT's jti.
func (s *service) Login(ctx context.Context, input LoginInput) (TokenPairDTO, error) {
	user, err := s.repo.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPairDTO{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying password")
	}
	if !ok {
		return TokenPairDTO{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	if user.Status != enums.UserStatusActive {
		return TokenPairDTO{}, pkgerrors.New(pkgerrors.CodeForbidden, "account is not active").
			WithDetails(map[string]any{"status": user.Status})
	}

	pair, err := s.issueTokens(ctx, *user, session.NewAccessID())
	if err != nil {
		return TokenPairDTO{}, err
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID, time.Now()); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "user_id", user.ID.String()), "stamping last login failed")
	}
	return pair, nil
}

// Refresh rotates the refresh token tied to the given access ID and mints a
// fresh JWT under the new session identifier.
func (s *service) Refresh(ctx context.Context, userID uuid.UUID, accessID string, input RefreshInput) (TokenPairDTO, error) {
	if strings.TrimSpace(accessID) == "" {
		return TokenPairDTO{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session id is required")
	}

	newAccessID, newRefresh, err := s.sessions.Rotate(ctx, accessID, input.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "refresh token rejected")
		}
		return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotating session")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user")
	}

	access, err := auth.MintAccessToken(s.jwtCfg, time.Now(), auth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		JTI:    newAccessID,
	})
	if err != nil {
		return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}

	return TokenPairDTO{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.jwtCfg.ExpirationMinutes * 60,
		User:         toUserDTO(*user),
	}, nil
}

// Logout revokes the Redis session tied to the presented token's jti.
func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "session id is required")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoking session")
	}
	return nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (UserDTO, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return UserDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user")
	}
	return toUserDTO(*user), nil
}

func (s *service) issueTokens(ctx context.Context, user models.User, accessID string) (TokenPairDTO, error) {
	access, err := auth.MintAccessToken(s.jwtCfg, time.Now(), auth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}

	refresh, err := s.sessions.Generate(ctx, accessID)
	if err != nil {
		return TokenPairDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing session")
	}

	return TokenPairDTO{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.jwtCfg.ExpirationMinutes * 60,
		User:         toUserDTO(user),
	}, nil
}
