package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/pkg/httputil"
)

// ProfileReader resolves the profile behind a token subject.
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
}

// TokenConfig contains settings for tokens issued by the identity provider.
type TokenConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// TokenValidator validates HS256 access tokens of the identity provider.
// Roles are never taken from the token: they come from the local profile.
type TokenValidator struct {
	secret   []byte
	parser   *jwt.Parser
	profiles ProfileReader
}

// NewTokenValidator creates a new TokenValidator.
func NewTokenValidator(config TokenConfig, profiles ProfileReader) (*TokenValidator, error) {
	if config.Secret == "" {
		return nil, errors.New("token secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	return &TokenValidator{
		secret:   []byte(config.Secret),
		parser:   jwt.NewParser(opts...),
		profiles: profiles,
	}, nil
}

// ValidateToken implements httputil.TokenValidator.
func (v *TokenValidator) ValidateToken(ctx context.Context, token string) (*httputil.Principal, error) {
	var claims jwt.RegisteredClaims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	profile, err := v.profiles.GetProfile(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			// The user.created webhook has not arrived yet.
			return &httputil.Principal{UserID: claims.Subject, Role: domain.RoleUser}, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	return &httputil.Principal{UserID: profile.ID, Role: profile.Role}, nil
}
