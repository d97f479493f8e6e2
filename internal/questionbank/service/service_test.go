package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certo/internal/audit"
	"certo/internal/event"
	"certo/internal/questionbank"
	"certo/internal/questionbank/store"
	"certo/pkg/domerrors"
)

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, audit.Event) {}

type QuestionBankServiceSuite struct {
	suite.Suite
	svc   *Service
	admin uuid.UUID
}

func TestQuestionBankServiceSuite(t *testing.T) {
	suite.Run(t, new(QuestionBankServiceSuite))
}

func (s *QuestionBankServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(store.NewMemory(), noopRecorder{}, logger)
	s.admin = uuid.New()
}

func validInput() CreateInput {
	return CreateInput{
		Question:      "What does TCP stand for?",
		Type:          "multiple_choice",
		Category:      "Technical",
		Difficulty:    "easy",
		Options:       []string{"Transmission Control Protocol", "Transport Copy Protocol"},
		CorrectAnswer: "Transmission Control Protocol",
		Points:        2,
		Tags:          []string{"networking"},
	}
}

func (s *QuestionBankServiceSuite) TestCreate() {
	ctx := context.Background()

	s.Run("stores a valid entry", func() {
		created, err := s.svc.Create(ctx, s.admin, validInput())
		s.Require().NoError(err)
		s.NotEqual(uuid.Nil, created.ID)
		s.Equal(event.QuestionMultipleChoice, created.Type)
		s.Equal(event.CategoryTechnical, created.Category)
		s.Equal(2, created.Points)
		s.Equal(s.admin, created.CreatedBy)
		s.True(created.IsActive)
	})

	s.Run("defaults points to one", func() {
		in := validInput()
		in.Points = 0
		created, err := s.svc.Create(ctx, s.admin, in)
		s.Require().NoError(err)
		s.Equal(1, created.Points)
	})

	s.Run("rejects empty question text", func() {
		in := validInput()
		in.Question = "   "
		_, err := s.svc.Create(ctx, s.admin, in)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("rejects unknown type", func() {
		in := validInput()
		in.Type = "matching"
		_, err := s.svc.Create(ctx, s.admin, in)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("rejects multiple choice with one option", func() {
		in := validInput()
		in.Options = []string{"only one"}
		_, err := s.svc.Create(ctx, s.admin, in)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("requires a correct answer except for essays", func() {
		in := validInput()
		in.Type = "fill_blank"
		in.Options = nil
		in.CorrectAnswer = ""
		_, err := s.svc.Create(ctx, s.admin, in)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))

		in.Type = "essay"
		_, err = s.svc.Create(ctx, s.admin, in)
		s.NoError(err)
	})
}

func (s *QuestionBankServiceSuite) TestUpdate() {
	ctx := context.Background()
	created, err := s.svc.Create(ctx, s.admin, validInput())
	s.Require().NoError(err)

	s.Run("patches only the provided fields", func() {
		text := "What does UDP stand for?"
		points := 5
		updated, err := s.svc.Update(ctx, s.admin, created.ID, UpdateInput{
			Question: &text,
			Points:   &points,
		})
		s.Require().NoError(err)
		s.Equal(text, updated.Question)
		s.Equal(5, updated.Points)
		s.Equal(created.CorrectAnswer, updated.CorrectAnswer)
		s.Equal(created.Options, updated.Options)
	})

	s.Run("rejects a patch that breaks validation", func() {
		_, err := s.svc.Update(ctx, s.admin, created.ID, UpdateInput{Options: []string{"one"}})
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("unknown entry is not found", func() {
		_, err := s.svc.Update(ctx, s.admin, uuid.New(), UpdateInput{})
		s.True(domerrors.HasCode(err, domerrors.CodeNotFound))
	})
}

func (s *QuestionBankServiceSuite) TestDelete() {
	ctx := context.Background()
	created, err := s.svc.Create(ctx, s.admin, validInput())
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Delete(ctx, s.admin, created.ID))

	got, err := s.svc.Get(ctx, created.ID)
	s.Require().NoError(err)
	s.False(got.IsActive)

	page, err := s.svc.List(ctx, questionbank.Filter{OnlyActive: true})
	s.Require().NoError(err)
	s.Empty(page.Items)

	s.True(domerrors.HasCode(s.svc.Delete(ctx, s.admin, uuid.New()), domerrors.CodeNotFound))
}

func (s *QuestionBankServiceSuite) TestList() {
	ctx := context.Background()
	for range 3 {
		_, err := s.svc.Create(ctx, s.admin, validInput())
		s.Require().NoError(err)
	}
	hard := validInput()
	hard.Difficulty = "hard"
	hard.Type = "true_false"
	hard.Options = nil
	hard.CorrectAnswer = "true"
	_, err := s.svc.Create(ctx, s.admin, hard)
	s.Require().NoError(err)

	s.Run("pages all entries", func() {
		page, err := s.svc.List(ctx, questionbank.Filter{Limit: 2})
		s.Require().NoError(err)
		s.Len(page.Items, 2)
		s.Equal(4, page.Total)
		s.Equal(2, page.TotalPages)
	})

	s.Run("filters by difficulty and type", func() {
		page, err := s.svc.List(ctx, questionbank.Filter{Difficulty: event.DifficultyHard})
		s.Require().NoError(err)
		s.Len(page.Items, 1)

		page, err = s.svc.List(ctx, questionbank.Filter{Type: event.QuestionTrueFalse})
		s.Require().NoError(err)
		s.Len(page.Items, 1)
	})

	s.Run("empty result is an empty page", func() {
		page, err := s.svc.List(ctx, questionbank.Filter{Category: event.CategoryVerbal})
		s.Require().NoError(err)
		s.NotNil(page.Items)
		s.Empty(page.Items)
		s.Equal(0, page.TotalPages)
	})
}

func (s *QuestionBankServiceSuite) TestPick() {
	ctx := context.Background()
	ids := make(map[uuid.UUID]bool)
	for range 5 {
		created, err := s.svc.Create(ctx, s.admin, validInput())
		s.Require().NoError(err)
		ids[created.ID] = true
	}
	retired, err := s.svc.Create(ctx, s.admin, validInput())
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Delete(ctx, s.admin, retired.ID))

	s.Run("draws snapshots of active entries", func() {
		questions, err := s.svc.Pick(ctx, "Technical", "easy", 3)
		s.Require().NoError(err)
		s.Len(questions, 3)
		for _, q := range questions {
			s.True(ids[q.QuestionID])
			s.NotEqual(retired.ID, q.QuestionID)
			s.Equal("What does TCP stand for?", q.Question)
		}
	})

	s.Run("returns fewer when the pool is small", func() {
		questions, err := s.svc.Pick(ctx, "Technical", "easy", 20)
		s.Require().NoError(err)
		s.Len(questions, 5)
	})

	s.Run("rejects a non-positive count", func() {
		_, err := s.svc.Pick(ctx, "Technical", "easy", 0)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})

	s.Run("rejects an unknown category", func() {
		_, err := s.svc.Pick(ctx, "Trivia", "easy", 3)
		s.True(domerrors.HasCode(err, domerrors.CodeValidation))
	})
}
