package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certo/internal/analytics"
	"certo/internal/event"
	eventstore "certo/internal/event/store"
	"certo/internal/identity"
	identitystore "certo/internal/identity/store"
	"certo/internal/policy"
	"certo/internal/registration"
	registrationstore "certo/internal/registration/store"
)

type AnalyticsServiceSuite struct {
	suite.Suite
	ctx    context.Context
	svc    *Service
	users  *identitystore.Memory
	events *eventstore.Memory
	regs   *registrationstore.Memory
}

func TestAnalyticsServiceSuite(t *testing.T) {
	suite.Run(t, new(AnalyticsServiceSuite))
}

func (s *AnalyticsServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.users = identitystore.NewMemory()
	s.events = eventstore.NewMemory()
	s.regs = registrationstore.NewMemory()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(s.users, s.events, s.regs, logger)
}

func (s *AnalyticsServiceSuite) seedUser(email string) *identity.User {
	u := &identity.User{
		ID:        uuid.New(),
		FullName:  "User " + email,
		Email:     email,
		Role:      policy.RoleUser,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.users.Create(s.ctx, u))
	return u
}

func (s *AnalyticsServiceSuite) seedEvent(title string, category event.Category, active bool) *event.Event {
	e := &event.Event{
		ID:              uuid.New(),
		Title:           title,
		Description:     "description of " + title,
		Category:        category,
		Difficulty:      event.DifficultyEasy,
		StartDate:       time.Now(),
		EndDate:         time.Now().Add(time.Hour),
		DurationMinutes: 30,
		MaxParticipants: 100,
		IsActive:        active,
		CreatedBy:       uuid.New(),
		CreatedAt:       time.Now(),
	}
	s.Require().NoError(s.events.Create(s.ctx, e))
	return e
}

func (s *AnalyticsServiceSuite) seedRegistration(userID, eventID uuid.UUID, status registration.Status, score *float64) {
	now := time.Now()
	s.Require().NoError(s.regs.Create(s.ctx, &registration.Registration{
		ID:               uuid.New(),
		UserID:           userID,
		EventID:          eventID,
		Status:           status,
		RegistrationDate: now,
		Score:            score,
		CreatedAt:        now,
		UpdatedAt:        now,
	}))
}

func ptr(f float64) *float64 { return &f }

func (s *AnalyticsServiceSuite) TestCompletionRate() {
	s.Equal("0.00", analytics.CompletionRate(0, 0))
	s.Equal("50.00", analytics.CompletionRate(1, 2))
	s.Equal("66.67", analytics.CompletionRate(2, 3))
	s.Equal("100.00", analytics.CompletionRate(3, 3))
}

func (s *AnalyticsServiceSuite) TestDashboardSummary() {
	alice := s.seedUser("alice@example.com")
	e1 := s.seedEvent("Event One", event.CategoryTechnical, true)
	s.seedEvent("Event Two", event.CategoryVerbal, false)
	s.seedRegistration(alice.ID, e1.ID, registration.StatusCompleted, ptr(80))
	s.seedRegistration(s.seedUser("bob@example.com").ID, e1.ID, registration.StatusRegistered, nil)

	summary, err := s.svc.DashboardSummary(s.ctx)
	s.Require().NoError(err)
	s.Equal(analytics.Totals{
		Users:                  2,
		Events:                 2,
		Registrations:          2,
		ActiveEvents:           1,
		CompletedRegistrations: 1,
	}, summary.Totals)
	s.Len(summary.RecentUsers, 2)
	s.Len(summary.RecentEvents, 2)
}

func (s *AnalyticsServiceSuite) TestGlobalAnalytics() {
	e1 := s.seedEvent("Tech Event", event.CategoryTechnical, true)
	s.seedEvent("Verbal Event", event.CategoryVerbal, true)
	s.seedRegistration(s.seedUser("a@example.com").ID, e1.ID, registration.StatusRegistered, nil)

	result, err := s.svc.GlobalAnalytics(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, result.EventsByCategory[event.CategoryTechnical])
	s.Equal(1, result.EventsByCategory[event.CategoryVerbal])
	s.Equal(2, result.EventsByDifficulty[event.DifficultyEasy])
	s.Require().Len(result.RegistrationTrend, 7)
	s.Equal(1, result.RegistrationTrend[6].Count)
}

func (s *AnalyticsServiceSuite) TestEventPerformance() {
	e := s.seedEvent("Scored Event", event.CategoryTechnical, true)
	s.seedRegistration(s.seedUser("u1@example.com").ID, e.ID, registration.StatusCompleted, ptr(70))
	s.seedRegistration(s.seedUser("u2@example.com").ID, e.ID, registration.StatusCompleted, ptr(90))
	s.seedRegistration(s.seedUser("u3@example.com").ID, e.ID, registration.StatusCancelled, nil)

	s.Run("reports counts, average and completion rate", func() {
		rows, err := s.svc.EventPerformance(s.ctx, nil)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		row := rows[0]
		s.Equal("Scored Event", row.Title)
		s.Equal(3, row.TotalRegistrations)
		s.Equal(2, row.Completed)
		s.Equal(1, row.Cancelled)
		s.Require().NotNil(row.AverageScore)
		s.InDelta(80.0, *row.AverageScore, 0.001)
		s.Equal("66.67", row.CompletionRate)
	})

	s.Run("scopes to a single event", func() {
		other := s.seedEvent("Quiet Event", event.CategoryVerbal, true)
		rows, err := s.svc.EventPerformance(s.ctx, &other.ID)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal(other.ID, rows[0].EventID)
		s.Equal(0, rows[0].TotalRegistrations)
		s.Equal("0.00", rows[0].CompletionRate)
		s.Nil(rows[0].AverageScore)
	})
}

func (s *AnalyticsServiceSuite) TestUserPerformance() {
	alice := s.seedUser("alice@example.com")
	s.seedRegistration(alice.ID, s.seedEvent("E1", event.CategoryTechnical, true).ID, registration.StatusCompleted, ptr(60))
	s.seedRegistration(alice.ID, s.seedEvent("E2", event.CategoryTechnical, true).ID, registration.StatusCompleted, ptr(100))
	s.seedRegistration(alice.ID, s.seedEvent("E3", event.CategoryTechnical, true).ID, registration.StatusCancelled, nil)

	rows, err := s.svc.UserPerformance(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	row := rows[0]
	s.Equal("User alice@example.com", row.FullName)
	s.Equal(3, row.Total)
	s.Equal(2, row.Completed)
	s.Require().NotNil(row.AverageScore)
	s.InDelta(80.0, *row.AverageScore, 0.001)
	s.Require().NotNil(row.BestScore)
	s.Equal(100.0, *row.BestScore)
	s.Equal("66.67", row.CompletionRate)
}

func (s *AnalyticsServiceSuite) TestCategoryPerformance() {
	tech := s.seedEvent("Tech A", event.CategoryTechnical, true)
	s.seedEvent("Tech B", event.CategoryTechnical, true)
	verbal := s.seedEvent("Verbal A", event.CategoryVerbal, true)

	s.seedRegistration(s.seedUser("p1@example.com").ID, tech.ID, registration.StatusCompleted, ptr(50))
	s.seedRegistration(s.seedUser("p2@example.com").ID, verbal.ID, registration.StatusRegistered, nil)

	rows, err := s.svc.CategoryPerformance(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)

	byCategory := make(map[string]*analytics.CategoryPerformance)
	for _, row := range rows {
		byCategory[row.Category] = row
	}
	s.Equal(2, byCategory["Technical"].Events)
	s.Equal(1, byCategory["Technical"].Participants)
	s.Equal("100.00", byCategory["Technical"].CompletionRate)
	s.Equal("0.00", byCategory["Verbal"].CompletionRate)
	s.Nil(byCategory["Verbal"].AverageScore)
}

func (s *AnalyticsServiceSuite) TestLeaderboard() {
	alice := s.seedUser("alice@example.com")
	ghost := uuid.New()
	s.seedRegistration(alice.ID, s.seedEvent("E1", event.CategoryTechnical, true).ID, registration.StatusCompleted, ptr(95))
	s.seedRegistration(ghost, s.seedEvent("E2", event.CategoryTechnical, true).ID, registration.StatusCompleted, ptr(75))

	s.Run("resolves names and degrades missing users", func() {
		entries, err := s.svc.Leaderboard(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal("User alice@example.com", entries[0].FullName)
		s.Equal("Unknown User", entries[1].FullName)
		s.Equal("unknown", entries[1].Email)
	})

	s.Run("defaults the limit", func() {
		entries, err := s.svc.Leaderboard(s.ctx, 0)
		s.Require().NoError(err)
		s.Len(entries, 2)
	})

	s.Run("empty board is an empty list", func() {
		empty := New(s.users, s.events, registrationstore.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)))
		entries, err := empty.Leaderboard(s.ctx, 10)
		s.Require().NoError(err)
		s.NotNil(entries)
		s.Empty(entries)
	})
}
