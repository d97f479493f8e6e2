package token

import (
	"certo/internal/platform/middleware"
	"certo/internal/policy"
)

// MiddlewareAdapter exposes the token service through the shape the auth
// middleware expects.
type MiddlewareAdapter struct {
	svc *Service
}

func NewMiddlewareAdapter(svc *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{svc: svc}
}

func (a *MiddlewareAdapter) ValidateAccessToken(tokenString string) (*middleware.Claims, error) {
	claims, err := a.svc.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		UserID:   claims.UserID,
		Role:     policy.ParseRole(claims.Role),
		FullName: claims.FullName,
		Email:    claims.Email,
		JTI:      claims.ID,
	}, nil
}
