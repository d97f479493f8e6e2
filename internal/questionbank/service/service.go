// Package service manages the reusable question bank. Admins curate
// entries here and pull random selections when assembling events.
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
	"certo/internal/questionbank"
	"certo/pkg/domerrors"
	"certo/pkg/sentinel"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxPickSize     = 50
)

// Store persists bank entries.
type Store interface {
	Create(ctx context.Context, e *questionbank.Entry) error
	FindByID(ctx context.Context, id uuid.UUID) (*questionbank.Entry, error)
	Update(ctx context.Context, e *questionbank.Entry) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f questionbank.Filter) ([]*questionbank.Entry, int, error)
	Pick(ctx context.Context, category event.Category, difficulty event.Difficulty, n int) ([]*questionbank.Entry, error)
}

// Recorder receives audit events for bank mutations.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event)
}

type Service struct {
	bank     Store
	recorder Recorder
	logger   *slog.Logger
}

func New(bank Store, recorder Recorder, logger *slog.Logger) *Service {
	return &Service{bank: bank, recorder: recorder, logger: logger}
}

// CreateInput carries the fields accepted when adding a bank entry.
type CreateInput struct {
	Question      string   `json:"question"`
	Type          string   `json:"type"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Points        int      `json:"points"`
	Explanation   string   `json:"explanation"`
	Tags          []string `json:"tags"`
}

// Create validates and stores a new bank entry on behalf of actorID.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in CreateInput) (*questionbank.Entry, error) {
	e := &questionbank.Entry{
		ID:          uuid.New(),
		Question:    strings.TrimSpace(in.Question),
		Options:     in.Options,
		Points:      in.Points,
		Explanation: strings.TrimSpace(in.Explanation),
		Tags:        in.Tags,
		CreatedBy:   actorID,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	if e.Points == 0 {
		e.Points = 1
	}

	var err error
	if e.Type, err = event.ParseQuestionType(in.Type); err != nil {
		return nil, err
	}
	if e.Category, err = event.ParseCategory(in.Category); err != nil {
		return nil, err
	}
	if e.Difficulty, err = event.ParseDifficulty(in.Difficulty); err != nil {
		return nil, err
	}
	e.CorrectAnswer = strings.TrimSpace(in.CorrectAnswer)
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	if err := s.bank.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionQuestionCreated,
		Resource:   "question",
		ResourceID: e.ID.String(),
		Detail:     map[string]string{"category": string(e.Category), "difficulty": string(e.Difficulty)},
	})
	return e, nil
}

// Get returns one bank entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*questionbank.Entry, error) {
	e, err := s.bank.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err)
	}
	return e, nil
}

// UpdateInput applies to fields that are present; nil fields keep their
// stored value.
type UpdateInput struct {
	Question      *string  `json:"question"`
	Type          *string  `json:"type"`
	Category      *string  `json:"category"`
	Difficulty    *string  `json:"difficulty"`
	Options       []string `json:"options"`
	CorrectAnswer *string  `json:"correctAnswer"`
	Points        *int     `json:"points"`
	Explanation   *string  `json:"explanation"`
	Tags          []string `json:"tags"`
	IsActive      *bool    `json:"isActive"`
}

// Update applies a partial update to an existing bank entry.
func (s *Service) Update(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (*questionbank.Entry, error) {
	e, err := s.bank.FindByID(ctx, id)
	if err != nil {
		return nil, asNotFound(err)
	}

	if in.Question != nil {
		e.Question = strings.TrimSpace(*in.Question)
	}
	if in.Type != nil {
		if e.Type, err = event.ParseQuestionType(*in.Type); err != nil {
			return nil, err
		}
	}
	if in.Category != nil {
		if e.Category, err = event.ParseCategory(*in.Category); err != nil {
			return nil, err
		}
	}
	if in.Difficulty != nil {
		if e.Difficulty, err = event.ParseDifficulty(*in.Difficulty); err != nil {
			return nil, err
		}
	}
	if in.Options != nil {
		e.Options = in.Options
	}
	if in.CorrectAnswer != nil {
		e.CorrectAnswer = strings.TrimSpace(*in.CorrectAnswer)
	}
	if in.Points != nil {
		e.Points = *in.Points
	}
	if in.Explanation != nil {
		e.Explanation = strings.TrimSpace(*in.Explanation)
	}
	if in.Tags != nil {
		e.Tags = in.Tags
	}
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	if err := s.bank.Update(ctx, e); err != nil {
		return nil, asNotFound(err)
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionQuestionUpdated,
		Resource:   "question",
		ResourceID: e.ID.String(),
	})
	return e, nil
}

// Delete deactivates a bank entry. Events that embedded it keep their
// copies.
func (s *Service) Delete(ctx context.Context, actorID, id uuid.UUID) error {
	if err := s.bank.Deactivate(ctx, id); err != nil {
		return asNotFound(err)
	}
	s.recorder.Record(ctx, audit.Event{
		Actor:      actorID.String(),
		Action:     audit.ActionQuestionDeleted,
		Resource:   "question",
		ResourceID: id.String(),
	})
	return nil
}

// List returns a page of bank entries matching the filter.
func (s *Service) List(ctx context.Context, f questionbank.Filter) (*questionbank.Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	items, total, err := s.bank.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if items == nil {
		items = []*questionbank.Entry{}
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + f.Limit - 1) / f.Limit
	}
	return &questionbank.Page{Items: items, Total: total, Page: f.Page, TotalPages: totalPages}, nil
}

// Pick draws up to count random active entries matching category and
// difficulty and returns them as denormalized event question copies.
func (s *Service) Pick(ctx context.Context, category, difficulty string, count int) ([]event.Question, error) {
	c, err := event.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	d, err := event.ParseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, domerrors.New(domerrors.CodeValidation, "count must be positive")
	}
	if count > maxPickSize {
		count = maxPickSize
	}

	entries, err := s.bank.Pick(ctx, c, d, count)
	if err != nil {
		return nil, fmt.Errorf("pick questions: %w", err)
	}
	questions := make([]event.Question, 0, len(entries))
	for _, e := range entries {
		questions = append(questions, e.Snapshot())
	}
	return questions, nil
}

func validateEntry(e *questionbank.Entry) error {
	if e.Question == "" {
		return domerrors.New(domerrors.CodeValidation, "question text is required")
	}
	if e.Points <= 0 {
		return domerrors.New(domerrors.CodeValidation, "question points must be positive")
	}
	if e.Type == event.QuestionMultipleChoice && len(e.Options) < 2 {
		return domerrors.New(domerrors.CodeValidation, "multiple choice questions need at least two options")
	}
	if e.Type != event.QuestionEssay && e.CorrectAnswer == "" {
		return domerrors.New(domerrors.CodeValidation, "correct answer is required")
	}
	return nil
}

func asNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return domerrors.New(domerrors.CodeNotFound, "question not found")
	}
	return err
}
