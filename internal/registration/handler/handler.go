// Package handler exposes the registration endpoints.
//
// POST /registrations doubles as the external form-submission webhook, so
// it accepts either an authenticated session or the shared webhook secret;
// unauthenticated calls without the secret are rejected rather than
// trusting caller-supplied identity.
package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certo/internal/platform/middleware"
	"certo/internal/policy"
	"certo/internal/registration"
	registrationsvc "certo/internal/registration/service"
	"certo/internal/transport/http/shared"
	"certo/pkg/domerrors"
)

// Service is the registration surface this handler needs.
type Service interface {
	CreateOrReactivate(ctx context.Context, userEmail string, eventID uuid.UUID) (*registration.Registration, bool, error)
	ListForUser(ctx context.Context, actorID uuid.UUID, actorRole policy.Role, userID uuid.UUID) ([]*registration.Registration, error)
	ListForEvent(ctx context.Context, eventID uuid.UUID) ([]*registration.Detail, error)
	Update(ctx context.Context, actorID, id uuid.UUID, upd registrationsvc.Update) (*registration.Registration, error)
	Cancel(ctx context.Context, actorID uuid.UUID, actorRole policy.Role, id uuid.UUID) (*registration.Registration, error)
}

type Handler struct {
	svc           Service
	logger        *slog.Logger
	webhookSecret string
}

func New(svc Service, logger *slog.Logger, webhookSecret string) *Handler {
	return &Handler{svc: svc, logger: logger, webhookSecret: webhookSecret}
}

// Register mounts the registration routes.
func (h *Handler) Register(r chi.Router, requireAuth, requireView, requireGrade func(http.Handler) http.Handler) {
	r.With(h.webhookOrAuth(requireAuth)).Post("/registrations", h.handleCreate)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/registrations/user/{userId}", h.handleListForUser)
		r.Delete("/registrations/{id}", h.handleCancel)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireView)
		r.Get("/registrations/event/{eventId}", h.handleListForEvent)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireGrade)
		r.Put("/registrations/{id}", h.handleUpdate)
	})
}

// webhookOrAuth admits requests carrying the shared webhook secret and
// falls back to normal session auth for everyone else.
func (h *Handler) webhookOrAuth(requireAuth func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authed := requireAuth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Secret")
			if h.webhookSecret != "" && got != "" &&
				subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		EventID string `json:"eventId"`
	}
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid event id"))
		return
	}

	// Session callers register themselves; only admins and the webhook
	// may register an arbitrary email.
	email := req.Email
	if claims := middleware.GetClaims(r.Context()); claims != nil && claims.Role != policy.RoleAdmin {
		email = claims.Email
	}

	reg, already, err := h.svc.CreateOrReactivate(r.Context(), email, eventID)
	if err != nil {
		h.logWarn(r, "registration failed", err)
		shared.WriteError(w, err)
		return
	}
	if already {
		shared.WriteJSON(w, http.StatusOK, reg, "already registered for this event")
		return
	}
	shared.WriteJSON(w, http.StatusCreated, reg, "registration successful")
}

func (h *Handler) handleListForUser(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid user id"))
		return
	}

	regs, err := h.svc.ListForUser(r.Context(), actorID, claims.Role, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, regs, "registrations retrieved successfully")
}

func (h *Handler) handleListForEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventId"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid event id"))
		return
	}
	details, err := h.svc.ListForEvent(r.Context(), eventID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, details, "registrations retrieved successfully")
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid registration id"))
		return
	}
	var upd registrationsvc.Update
	if err := shared.DecodeJSON(r, &upd); err != nil {
		shared.WriteError(w, err)
		return
	}

	reg, err := h.svc.Update(r.Context(), actorID, id, upd)
	if err != nil {
		h.logWarn(r, "update registration failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reg, "registration updated successfully")
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid registration id"))
		return
	}

	reg, err := h.svc.Cancel(r.Context(), actorID, claims.Role, id)
	if err != nil {
		h.logWarn(r, "cancel registration failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reg, "registration cancelled successfully")
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

