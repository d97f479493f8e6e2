// Package handler exposes the event catalog endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certo/internal/event"
	eventsvc "certo/internal/event/service"
	"certo/internal/platform/middleware"
	"certo/internal/platform/objectstore"
	"certo/internal/transport/http/shared"
	"certo/pkg/domerrors"
)

// Service is the catalog surface this handler needs.
type Service interface {
	Create(ctx context.Context, actorID uuid.UUID, in eventsvc.CreateInput) (*event.Event, error)
	Get(ctx context.Context, id uuid.UUID) (*event.Event, error)
	Update(ctx context.Context, actorID, id uuid.UUID, in eventsvc.UpdateInput) (*event.Event, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
	List(ctx context.Context, q event.Query) (*event.Page, error)
	ListByCategory(ctx context.Context, category string, page, limit int) (*event.Page, error)
	ListByDifficulty(ctx context.Context, difficulty string, page, limit int) (*event.Page, error)
	Search(ctx context.Context, term string, page, limit int) (*event.Page, error)
	Categories(ctx context.Context) ([]event.Category, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the event routes. Reads are public; mutations require an
// authenticated admin.
func (h *Handler) Register(r chi.Router, requireAuth, requireManage func(http.Handler) http.Handler) {
	r.Get("/events", h.handleList)
	r.Get("/events/categories", h.handleCategories)
	r.Get("/events/search", h.handleSearch)
	r.Get("/events/category/{category}", h.handleByCategory)
	r.Get("/events/difficulty/{difficulty}", h.handleByDifficulty)
	r.Get("/events/{id}", h.handleGet)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireManage)
		r.Post("/events", h.handleCreate)
		r.Put("/events/{id}", h.handleUpdate)
		r.Delete("/events/{id}", h.handleDelete)
	})
}

const maxUploadBytes = 10 << 20

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid multipart form"))
		return
	}

	in, err := createInputFromForm(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	created, err := h.svc.Create(r.Context(), actorID, in)
	if err != nil {
		h.logWarn(r, "create event failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, created, "event created successfully")
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
	shared.WriteJSON(w, http.StatusOK, e, "event retrieved successfully")
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
	var in eventsvc.UpdateInput
	if err := shared.DecodeJSON(r, &in); err != nil {
		shared.WriteError(w, err)
		return
	}

	updated, err := h.svc.Update(r.Context(), actorID, id, in)
	if err != nil {
		h.logWarn(r, "update event failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, updated, "event updated successfully")
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
		h.logWarn(r, "delete event failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nil, "event deleted successfully")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := event.Query{OnlyActive: true}
	if c := r.URL.Query().Get("category"); c != "" {
		category, err := event.ParseCategory(c)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		q.Category = category
	}
	if d := r.URL.Query().Get("difficulty"); d != "" {
		difficulty, err := event.ParseDifficulty(d)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		q.Difficulty = difficulty
	}
	q.Page, q.Limit = pagination(r)

	page, err := h.svc.List(r.Context(), q)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, page, "events retrieved successfully")
}

func (h *Handler) handleByCategory(w http.ResponseWriter, r *http.Request) {
	pageNum, limit := pagination(r)
	page, err := h.svc.ListByCategory(r.Context(), chi.URLParam(r, "category"), pageNum, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, page, "events retrieved successfully")
}

func (h *Handler) handleByDifficulty(w http.ResponseWriter, r *http.Request) {
	pageNum, limit := pagination(r)
	page, err := h.svc.ListByDifficulty(r.Context(), chi.URLParam(r, "difficulty"), pageNum, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, page, "events retrieved successfully")
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	pageNum, limit := pagination(r)
	term := r.URL.Query().Get("title")
	if term == "" {
		term = r.URL.Query().Get("q")
	}
	page, err := h.svc.Search(r.Context(), term, pageNum, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, page, "events retrieved successfully")
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, categories, "categories retrieved successfully")
}

// createInputFromForm reads the multipart fields of a create request.
// Questions arrive as a JSON array in the "questions" field.
func createInputFromForm(r *http.Request) (eventsvc.CreateInput, error) {
	duration, _ := strconv.Atoi(r.FormValue("duration"))
	maxParticipants, _ := strconv.Atoi(r.FormValue("maxParticipants"))

	in := eventsvc.CreateInput{
		Title:           r.FormValue("title"),
		Description:     r.FormValue("description"),
		Category:        r.FormValue("category"),
		Difficulty:      r.FormValue("difficulty"),
		DurationMinutes: duration,
		MaxParticipants: maxParticipants,
	}

	var err error
	if in.StartDate, err = parseDate(r.FormValue("startDate")); err != nil {
		return in, err
	}
	if in.EndDate, err = parseDate(r.FormValue("endDate")); err != nil {
		return in, err
	}

	if raw := r.FormValue("questions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Questions); err != nil {
			return in, domerrors.New(domerrors.CodeValidation, "invalid questions payload")
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return in, domerrors.New(domerrors.CodeValidation, "image is required")
	}
	in.Image = &objectstore.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
	return in, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, domerrors.New(domerrors.CodeValidation, "start and end dates are required")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domerrors.New(domerrors.CodeValidation, "dates must be RFC 3339 timestamps")
	}
	return t, nil
}

func pagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domerrors.New(domerrors.CodeValidation, "invalid event id")
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
