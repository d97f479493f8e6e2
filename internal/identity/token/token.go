// Package token issues and validates the signed access and refresh tokens.
// Both carry the same identity claim set; they differ in signing key and
// lifetime so a leaked refresh token can never pass as an access token.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certo/internal/identity"
	"certo/pkg/domerrors"
)

// Claims is the signed claim set carried by both token kinds.
type Claims struct {
	UserID   string `json:"id"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
}

func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "certo",
	}
}

func (s *Service) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// GenerateAccessToken signs a short-lived access token for the user.
func (s *Service) GenerateAccessToken(u *identity.User) (string, error) {
	return s.generate(u, s.accessKey, s.accessTTL)
}

// GenerateRefreshToken signs a longer-lived refresh token for the user.
func (s *Service) GenerateRefreshToken(u *identity.User) (string, error) {
	return s.generate(u, s.refreshKey, s.refreshTTL)
}

func (s *Service) generate(u *identity.User, key []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   u.ID.String(),
		Role:     string(u.Role),
		FullName: u.FullName,
		Email:    u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return t.SignedString(key)
}

// ValidateAccessToken parses and verifies an access token.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.accessKey)
}

// ValidateRefreshToken parses and verifies a refresh token.
func (s *Service) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.refreshKey)
}

func (s *Service) validate(tokenString string, key []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domerrors.New(domerrors.CodeUnauthorized, "token has expired")
		}
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, domerrors.New(domerrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
