// Package handler exposes the certificate endpoints. Reads require a
// session; issuance, mutation and deletion are admin-only.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"certo/internal/certificate"
	certificatesvc "certo/internal/certificate/service"
	"certo/internal/platform/middleware"
	"certo/internal/platform/objectstore"
	"certo/internal/transport/http/shared"
	"certo/pkg/domerrors"
)

// Service is the certificate surface this handler needs.
type Service interface {
	Upload(ctx context.Context, actorID uuid.UUID, in certificatesvc.UploadInput) (*certificate.Certificate, error)
	Get(ctx context.Context, id uuid.UUID) (*certificate.Certificate, error)
	GetByUser(ctx context.Context, userID uuid.UUID) ([]*certificate.Certificate, error)
	Update(ctx context.Context, actorID, id uuid.UUID, in certificatesvc.UpdateInput) (*certificate.Certificate, error)
	Delete(ctx context.Context, actorID, id uuid.UUID) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the certificate routes.
func (h *Handler) Register(r chi.Router, requireAuth, requireManage func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/certificates/{id}", h.handleGet)
		r.Get("/certificates/user/{userId}", h.handleGetByUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireManage)
		r.Post("/certificates/upload", h.handleUpload)
		r.Put("/certificates/{id}", h.handleUpdate)
		r.Delete("/certificates/{id}", h.handleDelete)
	})
}

const maxUploadBytes = 10 << 20

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid multipart form"))
		return
	}

	userID, err := uuid.Parse(r.FormValue("userId"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid user id"))
		return
	}
	eventID, err := uuid.Parse(r.FormValue("eventId"))
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid event id"))
		return
	}
	score, err := strconv.ParseFloat(r.FormValue("score"), 64)
	if err != nil {
		shared.WriteError(w, domerrors.New(domerrors.CodeValidation, "invalid score"))
		return
	}

	in := certificatesvc.UploadInput{UserID: userID, EventID: eventID, Score: score}
	if file, header, err := r.FormFile("certificate"); err == nil {
		defer file.Close()
		in.File = &objectstore.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Reader:      file,
		}
	}

	cert, err := h.svc.Upload(r.Context(), actorID, in)
	if err != nil {
		h.logWarn(r, "certificate upload failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, cert, "certificate uploaded successfully")
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "invalid certificate id")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	cert, err := h.svc.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, cert, "certificate retrieved successfully")
}

func (h *Handler) handleGetByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userId", "invalid user id")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	certs, err := h.svc.GetByUser(r.Context(), userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, certs, "certificates retrieved successfully")
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := pathID(r, "id", "invalid certificate id")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var in certificatesvc.UpdateInput
	if err := shared.DecodeJSON(r, &in); err != nil {
		shared.WriteError(w, err)
		return
	}

	cert, err := h.svc.Update(r.Context(), actorID, id, in)
	if err != nil {
		h.logWarn(r, "certificate update failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, cert, "certificate updated successfully")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actorID, err := authedUserID(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := pathID(r, "id", "invalid certificate id")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.Delete(r.Context(), actorID, id); err != nil {
		h.logWarn(r, "certificate delete failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nil, "certificate deleted successfully")
}

func pathID(r *http.Request, param, msg string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, domerrors.New(domerrors.CodeValidation, msg)
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
