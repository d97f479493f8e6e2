// Package service implements the event catalog: admin-managed CRUD plus
// the public browse, filter and search operations.
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
	"certo/internal/platform/metrics"
	"certo/internal/platform/objectstore"
	"certo/pkg/domerrors"
	"certo/pkg/sentinel"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// EventStore persists events.
type EventStore interface {
	Create(ctx context.Context, e *event.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*event.Event, error)
	Update(ctx context.Context, e *event.Event) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q event.Query) ([]*event.Event, int, error)
	DistinctCategories(ctx context.Context) ([]event.Category, error)
}

// ParticipantCounter reports active registration counts so the catalog can
// derive CurrentParticipants on read.
type ParticipantCounter interface {
	CountActiveByEvent(ctx context.Context, eventID uuid.UUID) (int, error)
	CountActiveByEvents(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

// Recorder receives audit events for admin mutations.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type Service struct {
	events   EventStore
	counts   ParticipantCounter
	files    objectstore.Store
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(events EventStore, counts ParticipantCounter, files objectstore.Store, recorder Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{events: events, counts: counts, files: files, recorder: recorder, metrics: m, logger: logger}
}

// CreateInput carries the fields accepted when creating an event.
type CreateInput struct {
	Title           string
	Description     string
	Category        string
	Difficulty      string
	StartDate       time.Time
	EndDate         time.Time
	DurationMinutes int
	MaxParticipants int
	Questions       []event.Question
	Image           *objectstore.Upload
}

// Create validates and stores a new event on behalf of actorID.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in CreateInput) (*event.Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" || in.Description == "" {
		return nil, domerrors.New(domerrors.CodeValidation, "title and description are required")
	}
	category, err := event.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	difficulty, err := event.ParseDifficulty(in.Difficulty)
	if err != nil {
		return nil, err
	}
	if err := validateSchedule(in.StartDate, in.EndDate, in.DurationMinutes, in.MaxParticipants); err != nil {
		return nil, err
	}
	if err := validateQuestions(in.Questions); err != nil {
		return nil, err
	}
	if in.Image == nil {
		return nil, domerrors.New(domerrors.CodeValidation, "image is required")
	}

	imageURL, err := s.files.Put(ctx, *in.Image)
	if err != nil {
		return nil, domerrors.Wrap(err, domerrors.CodeUpload, "failed to store event image")
	}

	now := time.Now().UTC()
	e := &event.Event{
		ID:              uuid.New(),
		Title:           in.Title,
		Description:     in.Description,
		Category:        category,
		Difficulty:      difficulty,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		DurationMinutes: in.DurationMinutes,
		MaxParticipants: in.MaxParticipants,
		Questions:       in.Questions,
		ImageURL:        imageURL,
		IsActive:        true,
		CreatedBy:       actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.events.Create(ctx, e); err != nil {
		if delErr := s.files.Delete(ctx, imageURL); delErr != nil {
			s.logger.WarnContext(ctx, "orphaned event image", "url", imageURL, "error", delErr)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domerrors.New(domerrors.CodeConflict, "an event with this title and description already exists")
		}
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.metrics.EventsCreated.Inc()
	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionEventCreated,
		Resource:   "event",
		ResourceID: e.ID.String(),
		Detail:     map[string]string{"title": e.Title},
	})
	return s.withCount(ctx, e)
}

// Get returns one event with its derived participant count.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	e, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "event not found")
	}
	return s.withCount(ctx, e)
}

// UpdateInput applies to fields that are present; nil fields keep their
// stored value. Participant counts are derived and cannot be set.
type UpdateInput struct {
	Title           *string          `json:"title"`
	Description     *string          `json:"description"`
	Category        *string          `json:"category"`
	Difficulty      *string          `json:"difficulty"`
	StartDate       *time.Time       `json:"startDate"`
	EndDate         *time.Time       `json:"endDate"`
	DurationMinutes *int             `json:"duration"`
	MaxParticipants *int             `json:"maxParticipants"`
	Questions       []event.Question `json:"questions"`
	IsActive        *bool            `json:"isActive"`
}

// Update applies a partial update to an existing event.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (*event.Event, error) {
	e, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err, "event not found")
	}

	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if e.Title == "" || e.Description == "" {
		return nil, domerrors.New(domerrors.CodeValidation, "title and description are required")
	}
	if in.Category != nil {
		category, err := event.ParseCategory(*in.Category)
		if err != nil {
			return nil, err
		}
		e.Category = category
	}
	if in.Difficulty != nil {
		difficulty, err := event.ParseDifficulty(*in.Difficulty)
		if err != nil {
			return nil, err
		}
		e.Difficulty = difficulty
	}
	if in.StartDate != nil {
		e.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		e.EndDate = *in.EndDate
	}
	if in.DurationMinutes != nil {
		e.DurationMinutes = *in.DurationMinutes
	}
	if in.MaxParticipants != nil {
		e.MaxParticipants = *in.MaxParticipants
	}
	if in.Questions != nil {
		if err := validateQuestions(in.Questions); err != nil {
			return nil, err
		}
		e.Questions = in.Questions
	}
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
	if err := validateSchedule(e.StartDate, e.EndDate, e.DurationMinutes, e.MaxParticipants); err != nil {
		return nil, err
	}

	e.UpdatedAt = time.Now().UTC()
	if err := s.events.Update(ctx, e); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domerrors.New(domerrors.CodeConflict, "an event with this title and description already exists")
		}
		return nil, asNotFound(err, "event not found")
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionEventUpdated,
		Resource:   "event",
		ResourceID: e.ID.String(),
	})
	return s.withCount(ctx, e)
}

// Delete deactivates an event. Existing registrations and certificates
// keep their history.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if err := s.events.Deactivate(ctx, id); err != nil {
		return asNotFound(err, "event not found")
	}
	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionEventDeleted,
		Resource:   "event",
		ResourceID: id.String(),
	})
	return nil
}

// List returns a page of events matching the query. An empty result is a
// successful empty page, not an error.
func (s *Service) List(ctx context.Context, q event.Query) (*event.Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}

	items, total, err := s.events.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if err := s.fillCounts(ctx, items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []*event.Event{}
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + q.Limit - 1) / q.Limit
	}
	return &event.Page{Items: items, Total: total, Page: q.Page, TotalPages: totalPages}, nil
}

// ListByCategory pages active events in one category.
func (s *Service) ListByCategory(ctx context.Context, category string, page, limit int) (*event.Page, error) {
	c, err := event.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, event.Query{Category: c, OnlyActive: true, Page: page, Limit: limit})
}

// ListByDifficulty pages active events at one difficulty.
func (s *Service) ListByDifficulty(ctx context.Context, difficulty string, page, limit int) (*event.Page, error) {
	d, err := event.ParseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	return s.List(ctx, event.Query{Difficulty: d, OnlyActive: true, Page: page, Limit: limit})
}

// Search pages active events whose title contains the term.
func (s *Service) Search(ctx context.Context, term string, page, limit int) (*event.Page, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, domerrors.New(domerrors.CodeValidation, "search term is required")
	}
	return s.List(ctx, event.Query{Title: term, OnlyActive: true, Page: page, Limit: limit})
}

// Categories returns the distinct categories present in the catalog.
func (s *Service) Categories(ctx context.Context) ([]event.Category, error) {
	categories, err := s.events.DistinctCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *Service) withCount(ctx context.Context, e *event.Event) (*event.Event, error) {
	n, err := s.counts.CountActiveByEvent(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	e.CurrentParticipants = n
	return e, nil
}

func (s *Service) fillCounts(ctx context.Context, items []*event.Event) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, e := range items {
		ids = append(ids, e.ID)
	}
	counts, err := s.counts.CountActiveByEvents(ctx, ids)
	if err != nil {
		return fmt.Errorf("count participants: %w", err)
	}
	for _, e := range items {
		e.CurrentParticipants = counts[e.ID]
	}
	return nil
}

func validateSchedule(start, end time.Time, duration, maxParticipants int) error {
	if start.IsZero() || end.IsZero() {
		return domerrors.New(domerrors.CodeValidation, "start and end dates are required")
	}
	if !end.After(start) {
		return domerrors.New(domerrors.CodeValidation, "end date must be after start date")
	}
	if duration <= 0 {
		return domerrors.New(domerrors.CodeValidation, "duration must be positive")
	}
	if maxParticipants <= 0 {
		return domerrors.New(domerrors.CodeValidation, "max participants must be positive")
	}
	return nil
}

func validateQuestions(questions []event.Question) error {
	for i := range questions {
		q := &questions[i]
		if strings.TrimSpace(q.Question) == "" {
			return domerrors.New(domerrors.CodeValidation, "question text is required")
		}
		switch q.Type {
		case event.QuestionMultipleChoice:
			if len(q.Options) < 2 {
				return domerrors.New(domerrors.CodeValidation, "multiple choice questions need at least two options")
			}
		case event.QuestionTrueFalse, event.QuestionFillBlank, event.QuestionEssay:
		default:
			return domerrors.New(domerrors.CodeValidation, "invalid question type")
		}
		if q.Points <= 0 {
			return domerrors.New(domerrors.CodeValidation, "question points must be positive")
		}
		if q.QuestionID == uuid.Nil {
			q.QuestionID = uuid.New()
		}
	}
	return nil
}

func asNotFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return domerrors.New(domerrors.CodeNotFound, msg)
	}
	return err
}
