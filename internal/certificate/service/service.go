// Package service implements certificate issuance. One certificate per
// (user, event); the file lives in the object store and only a reference
// is persisted.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"certo/internal/audit"
	"certo/internal/certificate"
	"certo/internal/event"
	"certo/internal/identity"
	"certo/internal/platform/metrics"
	"certo/internal/platform/objectstore"
	"certo/internal/registration"
	"certo/pkg/domerrors"
	"certo/pkg/sentinel"
)

// Store persists certificates.
type Store interface {
	Create(ctx context.Context, c *certificate.Certificate) error
	FindByID(ctx context.Context, id uuid.UUID) (*certificate.Certificate, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*certificate.Certificate, error)
	Update(ctx context.Context, c *certificate.Certificate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserFinder validates the certificate holder.
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// EventFinder validates the certified event.
type EventFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*event.Event, error)
}

// RegistrationLinker mirrors the issued certificate onto the holder's
// registration record.
type RegistrationLinker interface {
	FindByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*registration.Registration, error)
	Update(ctx context.Context, r *registration.Registration) error
}

// Recorder receives audit events for issuance and revocation.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type Service struct {
	certs         Store
	users         UserFinder
	events        EventFinder
	registrations RegistrationLinker
	files         objectstore.Store
	recorder      Recorder
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func New(certs Store, users UserFinder, events EventFinder, registrations RegistrationLinker, files objectstore.Store, recorder Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		certs:         certs,
		users:         users,
		events:        events,
		registrations: registrations,
		files:         files,
		recorder:      recorder,
		metrics:       m,
		logger:        logger,
	}
}

// UploadInput carries the fields accepted when issuing a certificate.
type UploadInput struct {
	UserID  uuid.UUID
	EventID uuid.UUID
	Score   float64
	File    *objectstore.Upload
}

// Upload issues a certificate: validates holder and event, rejects a second
// issuance for the pair, stores the file, persists the record, and mirrors
// the reference onto the registration.
func (s *Service) Upload(ctx context.Context, actorID uuid.UUID, in UploadInput) (*certificate.Certificate, error) {
	if in.File == nil {
		return nil, domerrors.New(domerrors.CodeValidation, "certificate file is required")
	}
	if in.Score < 0 || in.Score > 100 {
		return nil, domerrors.New(domerrors.CodeValidation, "score must be between 0 and 100")
	}
	if _, err := s.users.FindByID(ctx, in.UserID); err != nil {
		return nil, asNotFound(err, "user not found")
	}
	if _, err := s.events.FindByID(ctx, in.EventID); err != nil {
		return nil, asNotFound(err, "event not found")
	}

	fileURL, err := s.files.Put(ctx, *in.File)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeUpload, "failed to store certificate file")
	}

	now := time.Now().UTC()
	c := &certificate.Certificate{
		ID:         uuid.New(),
		UserID:     in.UserID,
		EventID:    in.EventID,
		Score:      in.Score,
		IssuedDate: now,
		FileURL:    fileURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.certs.Create(ctx, c); err != nil {
		if delErr := s.files.Delete(ctx, fileURL); delErr != nil {
			s.logger.WarnContext(ctx, "orphaned certificate file", "url", fileURL, "error", delErr)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domerrors.New(domerrors.CodeConflict, "certificate already issued for this user and event")
		}
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	s.linkRegistration(ctx, c)
	s.metrics.CertificatesIssued.Inc()
	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionCertificateIssued,
		Resource:   "certificate",
		ResourceID: c.ID.String(),
		Detail:     map[string]string{"userId": in.UserID.String(), "eventId": in.EventID.String()},
	})
	return c, nil
}

// linkRegistration mirrors the certificate onto the registration record.
// Best effort: a holder without a registration row is unusual but not an
// issuance failure.
func (s *Service) linkRegistration(ctx context.Context, c *certificate.Certificate) {
	r, err := s.registrations.FindByUserAndEvent(ctx, c.UserID, c.EventID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "certificate link lookup failed", "certificate_id", c.ID, "error", err)
		}
		return
	}
	r.Certificate = &registration.CertificateRef{ID: c.ID, IssuedDate: c.IssuedDate, FileURL: c.FileURL}
	r.UpdatedAt = time.Now().UTC()
	if err := s.registrations.Update(ctx, r); err != nil {
		s.logger.WarnContext(ctx, "certificate link update failed", "certificate_id", c.ID, "error", err)
	}
}

// Get returns one certificate.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*certificate.Certificate, error) {
	c, err := s.certs.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "certificate not found")
	}
	return c, nil
}

// GetByUser returns all certificates issued to one user, newest first.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) ([]*certificate.Certificate, error) {
	certs, err := s.certs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	if certs == nil {
		certs = []*certificate.Certificate{}
	}
	return certs, nil
}

// UpdateInput mutates score and revocation state; nil fields keep their
// stored value.
type UpdateInput struct {
	Score         *float64 `json:"score"`
	IsRevoked     *bool    `json:"isRevoked"`
	RevokedReason *string  `json:"revokedReason"`
}

func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (*certificate.Certificate, error) {
	c, err := s.certs.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "certificate not found")
	}

	if in.Score != nil {
		if *in.Score < 0 || *in.Score > 100 {
			return nil, domerrors.New(domerrors.CodeValidation, "score must be between 0 and 100")
		}
		c.Score = *in.Score
	}
	if in.IsRevoked != nil {
		c.IsRevoked = *in.IsRevoked
		if c.IsRevoked {
			now := time.Now().UTC()
			c.RevokedDate = &now
			if in.RevokedReason != nil {
				c.RevokedReason = *in.RevokedReason
			}
		} else {
			c.RevokedDate = nil
			c.RevokedReason = ""
		}
	}

	c.UpdatedAt = time.Now().UTC()
	if err := s.certs.Update(ctx, c); err != nil {
		return nil, asNotFound(err, "certificate not found")
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionCertificateUpdated,
		Resource:   "certificate",
		ResourceID: c.ID.String(),
	})
	return c, nil
}

// Delete removes a certificate and its stored file.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	c, err := s.certs.FindByID(ctx, id)
	if err != nil {
		return asNotFound(err, "certificate not found")
	}
	if err := s.certs.Delete(ctx, id); err != nil {
		return asNotFound(err, "certificate not found")
	}
	if err := s.files.Delete(ctx, c.FileURL); err != nil {
		s.logger.WarnContext(ctx, "orphaned certificate file", "url", c.FileURL, "error", err)
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionCertificateDeleted,
		Resource:   "certificate",
		ResourceID: id.String(),
	})
	return nil
}

func asNotFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return domerrors.New(domerrors.CodeNotFound, msg)
	}
	return err
}
