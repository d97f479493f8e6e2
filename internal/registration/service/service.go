// Package service implements the registration lifecycle. Registering is
// idempotent per (user, event): an active registration is returned as-is, a
// cancelled one is reactivated in place, and only then is a new record
// created. Cancellation never deletes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"certo/internal/audit"
	"certo/internal/event"
	"certo/internal/identity"
	"certo/internal/platform/metrics"
	"certo/internal/policy"
	"certo/internal/registration"
	"certo/pkg/domerrors"
	"certo/pkg/sentinel"
)

// Store persists registrations.
type Store interface {
	Create(ctx context.Context, r *registration.Registration) error
	FindByID(ctx context.Context, id uuid.UUID) (*registration.Registration, error)
	FindByUserAndEvent(ctx context.Context, userID, eventID uuid.UUID) (*registration.Registration, error)
	Update(ctx context.Context, r *registration.Registration) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*registration.Registration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*registration.Registration, error)
	List(ctx context.Context, page, limit int) ([]*registration.Registration, int, error)
	CountActiveByEvent(ctx context.Context, eventID uuid.UUID) (int, error)
}

// UserFinder resolves participants.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*identity.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// EventFinder resolves events.
type EventFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*event.Event, error)
}

// Recorder receives audit events for grading.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type Service struct {
	store    Store
	users    UserFinder
	events   EventFinder
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(store Store, users UserFinder, events EventFinder, recorder Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, users: users, events: events, recorder: recorder, metrics: m, logger: logger}
}

// CreateOrReactivate is the only way to become registered. The second call
// for the same pair returns the existing active record; a cancelled record
// is flipped back to registered with a fresh timestamp, never duplicated.
// The bool result reports whether the caller was already registered.
func (s *Service) CreateOrReactivate(ctx context.Context, userEmail string, eventID uuid.UUID) (*registration.Registration, bool, error) {
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))
	if userEmail == "" {
		return nil, false, domerrors.New(domerrors.CodeValidation, "email is required")
	}

	user, err := s.users.FindByEmail(ctx, userEmail)
	if err != nil {
		return nil, false, asNotFound(err, "user not found")
	}
	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, false, asNotFound(err, "event not found")
	}
	if !ev.IsActive {
		return nil, false, domerrors.New(domerrors.CodeValidation, "event is no longer active")
	}

	existing, err := s.store.FindByUserAndEvent(ctx, user.ID, eventID)
	switch {
	case err == nil && existing.Active():
		s.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return existing, true, nil
	case err == nil:
		return s.reactivate(ctx, existing, ev)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, fmt.Errorf("find registration: %w", err)
	}

	if err := s.checkCapacity(ctx, ev); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	r := &registration.Registration{
		ID:               uuid.New(),
		UserID:           user.ID,
		EventID:          eventID,
		Status:           registration.StatusRegistered,
		RegistrationDate: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent registration for the same
			// pair; the winner's record is the answer.
			return s.refetch(ctx, user.ID, eventID)
		}
		return nil, false, fmt.Errorf("create registration: %w", err)
	}

	s.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeCreated).Inc()
	return r, false, nil
}

func (s *Service) reactivate(ctx context.Context, r *registration.Registration, ev *event.Event) (*registration.Registration, bool, error) {
	if err := s.checkCapacity(ctx, ev); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	r.Status = registration.StatusRegistered
	r.RegistrationDate = now
	r.UpdatedAt = now
	if err := s.store.Update(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return s.refetch(ctx, r.UserID, r.EventID)
		}
		return nil, false, fmt.Errorf("reactivate registration: %w", err)
	}

	s.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeReactivated).Inc()
	return r, false, nil
}

func (s *Service) refetch(ctx context.Context, userID, eventID uuid.UUID) (*registration.Registration, bool, error) {
	r, err := s.store.FindByUserAndEvent(ctx, userID, eventID)
	if err != nil {
		return nil, false, fmt.Errorf("refetch registration: %w", err)
	}
	s.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
	return r, true, nil
}

func (s *Service) checkCapacity(ctx context.Context, ev *event.Event) error {
	active, err := s.store.CountActiveByEvent(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("count active registrations: %w", err)
	}
	if active >= ev.MaxParticipants {
		return domerrors.New(domerrors.CodeConflict, "event is full")
	}
	return nil
}

// ListForUser returns a user's registrations, own history for users, any
// user for admins.
func (s *Service) ListForUser(ctx context.Context, actorID uuid.UUID, actorRole policy.Role, userID uuid.UUID) ([]*registration.Registration, error) {
	if actorID != userID && !policy.Can(actorRole, policy.ActionViewRegistrations) {
		return nil, domerrors.New(domerrors.CodeForbidden, "cannot view another user's registrations")
	}
	out, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	if out == nil {
		out = []*registration.Registration{}
	}
	return out, nil
}

// ListForEvent returns an event's registrations enriched with participant
// contact info and event summary fields for admin consumption. A missing
// participant degrades to placeholder fields rather than failing the list.
func (s *Service) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]*registration.Detail, error) {
	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, asNotFound(err, "event not found")
	}
	rows, err := s.store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	out := make([]*registration.Detail, 0, len(rows))
	for _, r := range rows {
		detail := &registration.Detail{
			Registration:     *r,
			ParticipantName:  "Unknown User",
			ParticipantEmail: "unknown",
			EventTitle:       ev.Title,
			EventCategory:    string(ev.Category),
		}
		if user, err := s.users.FindByID(ctx, r.UserID); err == nil {
			detail.ParticipantName = user.FullName
			detail.ParticipantEmail = user.Email
		} else {
			s.logger.WarnContext(ctx, "participant lookup failed",
				"user_id", r.UserID, "error", err)
		}
		out = append(out, detail)
	}
	return out, nil
}

// List pages all registrations for the admin overview.
func (s *Service) List(ctx context.Context, page, limit int) ([]*registration.Registration, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	rows, total, err := s.store.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	return rows, total, nil
}

// Update is the typed partial update used by grading flows. Only the fields
// listed here are mutable; setting a score on a registered attempt marks it
// completed.
type Update struct {
	Status          *string               `json:"status"`
	Score           *float64              `json:"score"`
	Answers         []registration.Answer `json:"answers"`
	StartTime       *time.Time            `json:"startTime"`
	EndTime         *time.Time            `json:"endTime"`
	DurationMinutes *int                  `json:"durationTaken"`
}

func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, upd Update) (*registration.Registration, error) {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "registration not found")
	}

	graded := false
	if upd.Score != nil {
		if *upd.Score < 0 || *upd.Score > 100 {
			return nil, domerrors.New(domerrors.CodeValidation, "score must be between 0 and 100")
		}
		r.Score = upd.Score
		graded = true
		if r.Status == registration.StatusRegistered {
			r.Status = registration.StatusCompleted
		}
	}
	if upd.Status != nil {
		status, err := registration.ParseStatus(*upd.Status)
		if err != nil {
			return nil, err
		}
		r.Status = status
	}
	if upd.Answers != nil {
		r.Answers = upd.Answers
	}
	if upd.StartTime != nil {
		r.StartTime = upd.StartTime
	}
	if upd.EndTime != nil {
		r.EndTime = upd.EndTime
	}
	if upd.DurationMinutes != nil {
		r.DurationMinutes = upd.DurationMinutes
	}

	r.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domerrors.New(domerrors.CodeConflict, "user already has an active registration for this event")
		}
		return nil, asNotFound(err, "registration not found")
	}

	if r.Status == registration.StatusCompleted && graded {
		s.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
	}
	if graded {
		s.recorder.Record(ctx, audit.Event{
			Actor:      actorID.String(),
			Action:     audit.ActionRegistrationGraded,
			Resource:   "registration",
			ResourceID: r.ID.String(),
			Detail:     map[string]string{"score": fmt.Sprintf("%.2f", *r.Score)},
		})
	}
	return r, nil
}

// Cancel transitions a registration to cancelled. Users may cancel their
// own; admins may cancel any. Cancelling twice is a conflict.
func (s *Service) Cancel(ctx context.Context, actorID uuid.UUID, actorRole policy.Role, id uuid.UUID) (*registration.Registration, error) {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "registration not found")
	}
	if r.UserID != actorID && !policy.Can(actorRole, policy.ActionViewRegistrations) {
		return nil, domerrors.New(domerrors.CodeForbidden, "cannot cancel another user's registration")
	}
	if r.Status == registration.StatusCancelled {
		return nil, domerrors.New(domerrors.CodeConflict, "registration is already cancelled")
	}

	r.Status = registration.StatusCancelled
	r.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, r); err != nil {
		return nil, asNotFound(err, "registration not found")
	}

	s.metrics.RegistrationsTotal.WithLabelValues(metrics.OutcomeCancelled).Inc()
	return r, nil
}

func asNotFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return domerrors.New(domerrors.CodeNotFound, msg)
	}
	return err
}
