// Package handler exposes the question bank endpoints. The whole surface
// is admin-only.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certo/internal/event"
	"certo/internal/platform/middleware"
	"certo/internal/questionbank"
	banksvc "certo/internal/questionbank/service"
	"certo/internal/transport/http/shared"
	"certo/pkg/domerrors"
)

// Service is the bank surface this handler needs.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, in banksvc.CreateInput) (*questionbank.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*questionbank.Entry, error)
	Update(ctx context.Context, actorID, id uuid.UUID, in banksvc.UpdateInput) (*questionbank.Entry, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
	List(ctx context.Context, f questionbank.Filter) (*questionbank.Page, error)
	Pick(ctx context.Context, category, difficulty string, count int) ([]event.Question, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the question bank routes behind the given guards.
func (h *Handler) Register(r chi.Router, requireAuth, requireManage func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireManage)
		r.Get("/questions", h.handleList)
		r.Get("/questions/pick", h.handlePick)
		r.Post("/questions", h.handleCreate)
		r.Get("/questions/{id}", h.handleGet)
		r.Put("/questions/{id}", h.handleUpdate)
		r.Delete("/questions/{id}", h.handleDelete)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var in banksvc.CreateInput
	if err := shared.DecodeJSON(r, &in); err != nil {
		shared.WriteError(w, err)
		return
	}

	created, err := h.svc.Create(r.Context(), actorID, in)
	if err != nil {
		h.logWarn(r, "create question failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, created, "question created successfully")
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, e, "question retrieved successfully")
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var in banksvc.UpdateInput
	if err := shared.DecodeJSON(r, &in); err != nil {
		shared.WriteError(w, err)
		return
	}

	updated, err := h.svc.Update(r.Context(), actorID, id, in)
	if err != nil {
		h.logWarn(r, "update question failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, updated, "question updated successfully")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), actorID, id); err != nil {
		h.logWarn(r, "delete question failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nil, "question deleted successfully")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	f := questionbank.Filter{}
	query := r.URL.Query()
	if c := query.Get("category"); c != "" {
		category, err := event.ParseCategory(c)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		f.Category = category
	}
	if d := query.Get("difficulty"); d != "" {
		difficulty, err := event.ParseDifficulty(d)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		f.Difficulty = difficulty
	}
	if t := query.Get("type"); t != "" {
		qtype, err := event.ParseQuestionType(t)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		f.Type = qtype
	}
	f.OnlyActive = query.Get("includeInactive") != "true"
	f.Page, _ = strconv.Atoi(query.Get("page"))
	f.Limit, _ = strconv.Atoi(query.Get("limit"))

	page, err := h.svc.List(r.Context(), f)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, page, "questions retrieved successfully")
}

func (h *Handler) handlePick(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	count, _ := strconv.Atoi(query.Get("count"))
	questions, err := h.svc.Pick(r.Context(), query.Get("category"), query.Get("difficulty"), count)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, questions, "questions picked successfully")
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domerrors.New(domerrors.CodeValidation, "invalid question id")
	}
	return id, nil
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
