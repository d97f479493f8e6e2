package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"certo/internal/policy"
	"certo/pkg/domerrors"
)

// TokenValidator validates an access token and returns its identity claims.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// RevocationChecker reports whether a token's JTI has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// UserChecker confirms the user behind a token still exists and is active.
type UserChecker interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Claims is the identity attached to every authenticated request.
type Claims struct {
	UserID   string
	Role     policy.Role
	FullName string
	Email    string
	JTI      string
}

type contextKeyClaims struct{}

// GetClaims retrieves the authenticated identity from the context, or nil.
func GetClaims(ctx context.Context) *Claims {
	claims, ok := ctx.Value(contextKeyClaims{}).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims returns a context carrying the given identity. Exported for
// handler tests.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims{}, claims)
}

// tokenFromRequest extracts the access token from the Authorization header or
// the accessToken cookie, header taking precedence.
func tokenFromRequest(r *http.Request) string {
	const bearerPrefix = "Bearer "
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix); ok {
		return after
	}
	if c, err := r.Cookie("accessToken"); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth validates the access token, confirms the user still exists,
// and attaches the identity claims to the request context.
func RequireAuth(validator TokenValidator, users UserChecker, revocations RevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := tokenFromRequest(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, domerrors.New(domerrors.CodeUnauthorized, "no token provided"))
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, domerrors.New(domerrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			if revocations != nil && claims.JTI != "" {
				revoked, err := revocations.IsRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					writeJSONError(w, domerrors.New(domerrors.CodeInternal, "failed to validate token"))
					return
				}
				if revoked {
					writeJSONError(w, domerrors.New(domerrors.CodeUnauthorized, "token has been revoked"))
					return
				}
			}

			exists, err := users.UserExists(ctx, claims.UserID)
			if err != nil {
				logger.ErrorContext(ctx, "failed to load token user",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, domerrors.New(domerrors.CodeInternal, "failed to validate token"))
				return
			}
			if !exists {
				writeJSONError(w, domerrors.New(domerrors.CodeNotFound, "user not found"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

// RequireAction gates a route on the policy layer. Mount after RequireAuth.
func RequireAction(action policy.Action, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				writeJSONError(w, domerrors.New(domerrors.CodeUnauthorized, "authentication required"))
				return
			}
			if !policy.Can(claims.Role, action) {
				logger.WarnContext(r.Context(), "forbidden",
					"action", string(action),
					"role", string(claims.Role),
					"request_id", GetRequestID(r.Context()),
				)
				writeJSONError(w, domerrors.Newf(domerrors.CodeForbidden, "only admin can perform %s", action))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, err error) {
	status := domerrors.ToHTTPStatus(domerrors.CodeOf(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"statusCode": status,
		"success":    false,
		"message":    domerrors.MessageOf(err),
	})
}
