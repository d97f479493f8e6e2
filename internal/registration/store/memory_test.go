package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certo/internal/registration"
	"certo/pkg/sentinel"
)

type RegistrationStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Memory
}

func TestRegistrationStoreSuite(t *testing.T) {
	suite.Run(t, new(RegistrationStoreSuite))
}

func (s *RegistrationStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMemory()
}

func (s *RegistrationStoreSuite) seed(userID, eventID uuid.UUID, status registration.Status, score *float64) *registration.Registration {
	now := time.Now()
	r := &registration.Registration{
		ID:               uuid.New(),
		UserID:           userID,
		EventID:          eventID,
		Status:           status,
		RegistrationDate: now,
		Score:            score,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.Require().NoError(s.store.Create(s.ctx, r))
	return r
}

func ptr(f float64) *float64 { return &f }

func (s *RegistrationStoreSuite) TestActiveUniqueness() {
	userID, eventID := uuid.New(), uuid.New()

	s.Run("rejects a second active registration for the pair", func() {
		s.seed(userID, eventID, registration.StatusRegistered, nil)
		err := s.store.Create(s.ctx, &registration.Registration{
			ID:      uuid.New(),
			UserID:  userID,
			EventID: eventID,
			Status:  registration.StatusRegistered,
		})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("completed still counts as active", func() {
		err := s.store.Create(s.ctx, &registration.Registration{
			ID:      uuid.New(),
			UserID:  userID,
			EventID: eventID,
			Status:  registration.StatusCompleted,
		})
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("a cancelled row does not block a new one", func() {
		otherUser, otherEvent := uuid.New(), uuid.New()
		s.seed(otherUser, otherEvent, registration.StatusCancelled, nil)
		s.seed(otherUser, otherEvent, registration.StatusRegistered, nil)
	})

	s.Run("reactivating while another active row exists is rejected", func() {
		u, e := uuid.New(), uuid.New()
		cancelled := s.seed(u, e, registration.StatusCancelled, nil)
		s.seed(u, e, registration.StatusRegistered, nil)

		cancelled.Status = registration.StatusRegistered
		err := s.store.Update(s.ctx, cancelled)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *RegistrationStoreSuite) TestCounts() {
	eventID := uuid.New()
	s.seed(uuid.New(), eventID, registration.StatusRegistered, nil)
	s.seed(uuid.New(), eventID, registration.StatusCompleted, ptr(80))
	s.seed(uuid.New(), eventID, registration.StatusCancelled, nil)

	s.Run("active count excludes cancelled", func() {
		n, err := s.store.CountActiveByEvent(s.ctx, eventID)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("global counts tally by status", func() {
		counts, err := s.store.GlobalCounts(s.ctx)
		s.Require().NoError(err)
		s.Equal(registration.StatusCounts{Total: 3, Completed: 1, Cancelled: 1}, counts)
	})

	s.Run("batch active counts cover requested events only", func() {
		other := uuid.New()
		s.seed(uuid.New(), other, registration.StatusRegistered, nil)

		counts, err := s.store.CountActiveByEvents(s.ctx, []uuid.UUID{eventID})
		s.Require().NoError(err)
		s.Equal(map[uuid.UUID]int{eventID: 2}, counts)
	})
}

func (s *RegistrationStoreSuite) TestAggregates() {
	eventID := uuid.New()
	s.seed(uuid.New(), eventID, registration.StatusCompleted, ptr(60))
	s.seed(uuid.New(), eventID, registration.StatusCompleted, ptr(90))
	s.seed(uuid.New(), eventID, registration.StatusRegistered, nil)

	s.Run("averages exclude ungraded rows", func() {
		aggs, err := s.store.AggregatesByEvent(s.ctx)
		s.Require().NoError(err)
		agg := aggs[eventID]
		s.Equal(3, agg.Counts.Total)
		s.Equal(2, agg.Counts.Completed)
		s.Equal(2, agg.Scores.Graded)
		s.Require().NotNil(agg.Scores.Average)
		s.InDelta(75.0, *agg.Scores.Average, 0.001)
		s.Require().NotNil(agg.Scores.Best)
		s.Equal(90.0, *agg.Scores.Best)
	})

	s.Run("no graded rows means nil average", func() {
		other := uuid.New()
		s.seed(uuid.New(), other, registration.StatusRegistered, nil)

		agg, err := s.store.AggregateForEvents(s.ctx, []uuid.UUID{other})
		s.Require().NoError(err)
		s.Equal(1, agg.Counts.Total)
		s.Nil(agg.Scores.Average)
		s.Nil(agg.Scores.Best)
	})
}

func (s *RegistrationStoreSuite) TestLeaderboard() {
	high, low := uuid.New(), uuid.New()
	s.seed(high, uuid.New(), registration.StatusCompleted, ptr(95))
	s.seed(high, uuid.New(), registration.StatusCompleted, ptr(85))
	s.seed(low, uuid.New(), registration.StatusCompleted, ptr(40))
	// Excluded: not completed, or completed without a score.
	s.seed(uuid.New(), uuid.New(), registration.StatusRegistered, ptr(100))
	s.seed(uuid.New(), uuid.New(), registration.StatusCompleted, nil)

	s.Run("ranks by average completed score descending", func() {
		entries, err := s.store.Leaderboard(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal(high, entries[0].UserID)
		s.InDelta(90.0, entries[0].AverageScore, 0.001)
		s.Equal(2, entries[0].Completed)
		s.Equal(low, entries[1].UserID)
	})

	s.Run("truncates to the limit", func() {
		entries, err := s.store.Leaderboard(s.ctx, 1)
		s.Require().NoError(err)
		s.Len(entries, 1)
		s.Equal(high, entries[0].UserID)
	})
}

func (s *RegistrationStoreSuite) TestTrend() {
	s.seed(uuid.New(), uuid.New(), registration.StatusRegistered, nil)
	s.seed(uuid.New(), uuid.New(), registration.StatusRegistered, nil)

	points, err := s.store.Trend(s.ctx, 7)
	s.Require().NoError(err)
	s.Require().Len(points, 7)

	today := time.Now().UTC().Format("2006-01-02")
	s.Equal(today, points[6].Date)
	s.Equal(2, points[6].Count)
	for _, p := range points[:6] {
		s.Equal(0, p.Count)
	}
}

func (s *RegistrationStoreSuite) TestPaging() {
	eventID := uuid.New()
	for i := 0; i < 5; i++ {
		now := time.Now().Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.Create(s.ctx, &registration.Registration{
			ID:               uuid.New(),
			UserID:           uuid.New(),
			EventID:          eventID,
			Status:           registration.StatusRegistered,
			RegistrationDate: now,
			CreatedAt:        now,
		}))
	}

	s.Run("pages newest first", func() {
		rows, total, err := s.store.List(s.ctx, 1, 2)
		s.Require().NoError(err)
		s.Equal(5, total)
		s.Require().Len(rows, 2)
		s.True(rows[0].RegistrationDate.After(rows[1].RegistrationDate))
	})

	s.Run("past the end is an empty page", func() {
		rows, total, err := s.store.List(s.ctx, 4, 2)
		s.Require().NoError(err)
		s.Equal(5, total)
		s.Empty(rows)
	})
}
