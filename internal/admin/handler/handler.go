// Package handler exposes the admin surface: user management, the
// registration overview, the dashboard and the analytics views. Every
// route is admin-gated by the caller-supplied middleware.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certo/internal/analytics"
	"certo/internal/event"
	"certo/internal/identity"
	identitysvc "certo/internal/identity/service"
	"certo/internal/platform/middleware"
	"certo/internal/policy"
	"certo/internal/registration"
	"certo/internal/transport/http/shared"
	"certo/pkg/domerrors"
)

// IdentityAdmin is the user-management surface.
type IdentityAdmin interface {
	ListUsers(ctx context.Context, filter identity.Filter) ([]*identity.User, error)
	AdminUpdateUser(ctx context.Context, actorID, userID uuid.UUID, upd identitysvc.AdminUserUpdate) (*identity.User, error)
	DeactivateUser(ctx context.Context, actorID, userID uuid.UUID) error
}

// EventLister is the catalog surface for the admin event overview, which
// includes inactive events.
type EventLister interface {
	List(ctx context.Context, q event.Query) (*event.Page, error)
}

// RegistrationLister pages the global registration overview.
type RegistrationLister interface {
	List(ctx context.Context, page, limit int) ([]*registration.Registration, int, error)
}

// Analytics is the reporting surface.
type Analytics interface {
	DashboardSummary(ctx context.Context) (*analytics.DashboardSummary, error)
	GlobalAnalytics(ctx context.Context) (*analytics.GlobalAnalytics, error)
	EventPerformance(ctx context.Context, eventID *uuid.UUID) ([]*analytics.EventPerformance, error)
	UserPerformance(ctx context.Context) ([]*analytics.UserPerformance, error)
	CategoryPerformance(ctx context.Context) ([]*analytics.CategoryPerformance, error)
	Leaderboard(ctx context.Context, limit int) ([]registration.LeaderboardEntry, error)
}

type Handler struct {
	users         IdentityAdmin
	events        EventLister
	registrations RegistrationLister
	analytics     Analytics
	logger        *slog.Logger
}

func New(users IdentityAdmin, events EventLister, registrations RegistrationLister, analytics Analytics, logger *slog.Logger) *Handler {
	return &Handler{users: users, events: events, registrations: registrations, analytics: analytics, logger: logger}
}

// Register mounts the admin routes behind the supplied guards.
func (h *Handler) Register(r chi.Router, requireAuth, requireUsers, requireView, requireAnalytics func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireUsers)
		r.Get("/admin/users", h.handleListUsers)
		r.Put("/admin/users/{id}", h.handleUpdateUser)
		r.Delete("/admin/users/{id}", h.handleDeactivateUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireView)
		r.Get("/admin/events", h.handleListEvents)
		r.Get("/admin/registrations", h.handleListRegistrations)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireAnalytics)
		r.Get("/admin/dashboard", h.handleDashboard)
		r.Get("/admin/analytics", h.handleGlobalAnalytics)
		r.Get("/analytics/events", h.handleEventPerformance)
		r.Get("/analytics/users", h.handleUserPerformance)
		r.Get("/analytics/categories", h.handleCategoryPerformance)
		r.Get("/analytics/leaderboard", h.handleLeaderboard)
	})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	filter := identity.Filter{Search: r.URL.Query().Get("search")}
	if role := r.URL.Query().Get("role"); role != "" {
		filter.Role = policy.ParseRole(role)
	}
	users, err := h.users.ListUsers(r.Context(), filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, users, "users retrieved successfully")
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid user id"))
		return
	}
	var upd identitysvc.AdminUserUpdate
	if err := shared.DecodeJSON(r, &upd); err != nil {
		shared.WriteError(w, err)
		return
	}

	user, err := h.users.AdminUpdateUser(r.Context(), actorID, id, upd)
	if err != nil {
		h.logWarn(r, "admin user update failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, user, "user updated successfully")
}

func (h *Handler) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid user id"))
		return
	}
	if err := h.users.DeactivateUser(r.Context(), actorID, id); err != nil {
		h.logWarn(r, "user deactivation failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nil, "user deactivated successfully")
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	result, err := h.events.List(r.Context(), event.Query{Page: page, Limit: limit})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result, "events retrieved successfully")
}

func (h *Handler) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)
	rows, total, err := h.registrations.List(r.Context(), page, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"items": rows,
		"total": total,
	}, "registrations retrieved successfully")
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analytics.DashboardSummary(r.Context())
	if err != nil {
		h.logWarn(r, "dashboard summary failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary, "dashboard retrieved successfully")
}

func (h *Handler) handleGlobalAnalytics(w http.ResponseWriter, r *http.Request) {
	result, err := h.analytics.GlobalAnalytics(r.Context())
	if err != nil {
		h.logWarn(r, "global analytics failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result, "analytics retrieved successfully")
}

func (h *Handler) handleEventPerformance(w http.ResponseWriter, r *http.Request) {
	var eventID *uuid.UUID
	if raw := r.URL.Query().Get("eventId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid event id"))
			return
		}
		eventID = &id
	}
	result, err := h.analytics.EventPerformance(r.Context(), eventID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result, "event performance retrieved successfully")
}

func (h *Handler) handleUserPerformance(w http.ResponseWriter, r *http.Request) {
	result, err := h.analytics.UserPerformance(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result, "user performance retrieved successfully")
}

func (h *Handler) handleCategoryPerformance(w http.ResponseWriter, r *http.Request) {
	result, err := h.analytics.CategoryPerformance(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result, "category performance retrieved successfully")
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := h.analytics.Leaderboard(r.Context(), limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result, "leaderboard retrieved successfully")
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
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

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(r.Context()),
	)
}
