package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

type identityUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// IdentityConfig holds token verification settings.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// IdentityService verifies access tokens issued by the identity service and checks
// the account is still allowed in.
type IdentityService struct {
	users  identityUserReader
	config IdentityConfig
}

// NewIdentityService constructs the verifier.
func NewIdentityService(users identityUserReader, cfg IdentityConfig) *IdentityService {
	return &IdentityService{users: users, config: cfg}
}

// ParseToken validates the token signature and claims without touching the store.
func (s *IdentityService) ParseToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.config.Audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// VerifyCredential resolves a token into an identity. Suspended or inactive accounts
// are rejected even when the token itself is valid.
func (s *IdentityService) VerifyCredential(ctx context.Context, tokenString string) (*models.Identity, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	identity := &models.Identity{
		UserID:   claims.UserID,
		Role:     claims.Role,
		Email:    claims.Email,
		FullName: claims.FullName,
		Status:   models.UserStatusActive,
	}
	if s.users == nil {
		return identity, nil
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if user.Status != models.UserStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, fmt.Sprintf("account is %s", strings.ToLower(string(user.Status))))
	}
	identity.Role = user.Role
	identity.Status = user.Status
	identity.Email = user.Email
	identity.FullName = user.FullName()
	return identity, nil
}
