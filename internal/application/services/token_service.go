package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskmaster/scheduler/internal/infrastructure/config"
)

// ErrAuthDisabled is returned when tokens are requested without a secret.
var ErrAuthDisabled = errors.New("auth secret is not configured")

// Claims identifies the caller of the persistence endpoint.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and validates the HS256 bearer tokens that guard
// /api/blob when auth.secret is set.
type TokenService struct {
	cfg config.AuthConfig
	now func() time.Time
}

// NewTokenService creates a new token service
func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{cfg: cfg, now: time.Now}
}

// Enabled reports whether a secret is configured.
func (s *TokenService) Enabled() bool {
	return s.cfg.Enabled()
}

// Issue signs a short-lived token for subject.
func (s *TokenService) Issue(subject string) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate parses tokenString and checks its signature, expiry and issuer.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}

	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
