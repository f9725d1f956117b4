package service

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/trovehq/trove/internal/config"
)

var tracer = otel.Tracer("auth")

type AuthService struct {
	config config.Auth
}

func NewAuthService(config config.Auth) *AuthService {
	return &AuthService{
		config: config,
	}
}

// AuthResult is the identity the rest of the system consumes. The core
// never provisions identities; it only validates tokens minted by the
// identity collaborator.
type AuthResult struct {
	UserID      string
	DisplayName string
	IsAdmin     bool
}

type tokenClaims struct {
	jwt.RegisteredClaims
	DisplayName string `json:"name,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

// AuthToken validates a bearer token and extracts the requester identity.
func (s *AuthService) AuthToken(ctx context.Context, token string) (*AuthResult, error) {
	_, span := tracer.Start(ctx, "Auth.Service.AuthToken")
	defer span.End()

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.config.Secret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.config.Issuer),
	)
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return nil, err
	}

	if claims.Subject == "" {
		err := fmt.Errorf("jwt subject is empty")
		span.RecordError(err)
		return nil, err
	}

	return &AuthResult{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		IsAdmin:     claims.Admin,
	}, nil
}
