// Package handler exposes the identity endpoints. It stays thin: parse,
// delegate, respond with the shared envelope.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certo/internal/identity"
	identitysvc "certo/internal/identity/service"
	"certo/internal/platform/middleware"
	"certo/internal/platform/objectstore"
	"certo/internal/transport/http/shared"
	"certo/pkg/domerrors"
)

// Service is the identity surface this handler needs.
type Service interface {
	Register(ctx context.Context, in identitysvc.RegisterInput) (*identity.User, error)
	Login(ctx context.Context, in identitysvc.LoginInput) (*identity.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.AuthResult, error)
	Logout(ctx context.Context, userID uuid.UUID, accessJTI string) error
	GoogleLogin(ctx context.Context, providerToken string) (*identity.AuthResult, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*identity.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, upd identitysvc.ProfileUpdate) (*identity.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
}

type Handler struct {
	svc        Service
	logger     *slog.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(svc Service, logger *slog.Logger, accessTTL, refreshTTL time.Duration) *Handler {
	return &Handler{svc: svc, logger: logger, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Register mounts the auth routes. requireAuth guards the session-bound ones.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/refresh", h.handleRefresh)
	r.Post("/auth/google", h.handleGoogleLogin)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/auth/logout", h.handleLogout)
		r.Get("/auth/profile", h.handleGetProfile)
		r.Put("/auth/profile", h.handleUpdateProfile)
		r.Put("/auth/change-password", h.handleChangePassword)
	})
}

const maxUploadBytes = 10 << 20

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid multipart form"))
		return
	}

	year, _ := strconv.Atoi(r.FormValue("year"))
	in := identitysvc.RegisterInput{
		FullName:    r.FormValue("fullName"),
		Email:       r.FormValue("email"),
		Password:    r.FormValue("password"),
		CollegeName: r.FormValue("collegeName"),
		Department:  r.FormValue("department"),
		Year:        year,
	}

	if file, header, err := r.FormFile("avatar"); err == nil {
		defer file.Close()
		in.Avatar = &objectstore.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Reader:      file,
		}
	}

	user, err := h.svc.Register(r.Context(), in)
	if err != nil {
		h.logWarn(r, "register failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, user, "user registered successfully")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.svc.Login(r.Context(), identitysvc.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logWarn(r, "login failed", err)
		shared.WriteError(w, err)
		return
	}

	h.setTokenCookies(w, result)
	shared.WriteJSON(w, http.StatusOK, result, "user logged in successfully")
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	// The token may arrive in the body or the cookie.
	_ = shared.DecodeJSON(r, &req)
	if req.RefreshToken == "" {
		if c, err := r.Cookie("refreshToken"); err == nil {
			req.RefreshToken = c.Value
		}
	}

	result, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.logWarn(r, "token refresh failed", err)
		shared.WriteError(w, err)
		return
	}

	h.setTokenCookies(w, result)
	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	}, "tokens regenerated successfully")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeUnauthorized, "invalid token"))
		return
	}

	if err := h.svc.Logout(r.Context(), userID, claims.JTI); err != nil {
		shared.WriteError(w, err)
		return
	}

	h.clearTokenCookies(w)
	shared.WriteJSON(w, http.StatusOK, map[string]any{}, "user logged out successfully")
}

func (h *Handler) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.svc.GoogleLogin(r.Context(), req.Token)
	if err != nil {
		h.logWarn(r, "google login failed", err)
		shared.WriteError(w, err)
		return
	}

	http.SetCookie(w, h.cookie("accessToken", result.AccessToken, h.accessTTL))
	shared.WriteJSON(w, http.StatusOK, result, "google login successful")
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	user, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user, "profile fetched successfully")
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var upd identitysvc.ProfileUpdate
	if err := shared.DecodeJSON(r, &upd); err != nil {
		shared.WriteError(w, err)
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), userID, upd)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user, "user details updated successfully")
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{}, "password updated successfully")
}

func authedUserID(r *http.Request) (uuid.UUID, error) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		return uuid.Nil, domerrors.New(domerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, domerrors.New(domerrors.CodeUnauthorized, "invalid token")
	}
	return id, nil
}

func (h *Handler) setTokenCookies(w http.ResponseWriter, result *identity.AuthResult) {
	http.SetCookie(w, h.cookie("accessToken", result.AccessToken, h.accessTTL))
	http.SetCookie(w, h.cookie("refreshToken", result.RefreshToken, h.refreshTTL))
}

func (h *Handler) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie("accessToken", "", -time.Second))
	http.SetCookie(w, h.cookie("refreshToken", "", -time.Second))
}

func (h *Handler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	} else {
		c.MaxAge = -1
	}
	return c
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(r.Context()),
	)
}
