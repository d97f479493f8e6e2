// Package service computes the admin analytics views. Independent reads
// within one view fan out concurrently; every average excludes ungraded
// scores from both numerator and denominator.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"certo/internal/analytics"
	"certo/internal/event"
	"certo/internal/identity"
	"certo/internal/registration"
)

const (
	recentLimit        = 5
	trendDays          = 7
	defaultLeaderboard = 10
)

// UserReader is the identity surface analytics reads.
type UserReader interface {
	Count(ctx context.Context) (int, error)
	ListRecent(ctx context.Context, limit int) ([]*identity.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// EventReader is the catalog surface analytics reads.
type EventReader interface {
	Count(ctx context.Context, onlyActive bool) (int, error)
	ListRecent(ctx context.Context, limit int) ([]*event.Event, error)
	FindByID(ctx context.Context, id uuid.UUID) (*event.Event, error)
	CountByCategory(ctx context.Context) (map[event.Category]int, error)
	CountByDifficulty(ctx context.Context) (map[event.Difficulty]int, error)
	IDsByCategory(ctx context.Context) (map[event.Category][]uuid.UUID, error)
}

// RegistrationReader is the registration surface analytics reads.
type RegistrationReader interface {
	GlobalCounts(ctx context.Context) (registration.StatusCounts, error)
	AggregatesByEvent(ctx context.Context) (map[uuid.UUID]registration.Aggregate, error)
	AggregatesByUser(ctx context.Context) (map[uuid.UUID]registration.Aggregate, error)
	AggregateForEvents(ctx context.Context, eventIDs []uuid.UUID) (registration.Aggregate, error)
	Trend(ctx context.Context, days int) ([]registration.TrendPoint, error)
	Leaderboard(ctx context.Context, limit int) ([]registration.LeaderboardEntry, error)
}

type Service struct {
	users         UserReader
	events        EventReader
	registrations RegistrationReader
	logger        *slog.Logger
}

func New(users UserReader, events EventReader, registrations RegistrationReader, logger *slog.Logger) *Service {
	return &Service{users: users, events: events, registrations: registrations, logger: logger}
}

// DashboardSummary collects the admin landing-page numbers.
func (s *Service) DashboardSummary(ctx context.Context) (*analytics.DashboardSummary, error) {
	var out analytics.DashboardSummary

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.totals(ctx)
		if err != nil {
			return err
		}
		out.Totals = totals
		return nil
	})
	g.Go(func() error {
		users, err := s.users.ListRecent(ctx, recentLimit)
		if err != nil {
			return fmt.Errorf("recent users: %w", err)
		}
		out.RecentUsers = users
		return nil
	})
	g.Go(func() error {
		events, err := s.events.ListRecent(ctx, recentLimit)
		if err != nil {
			return fmt.Errorf("recent events: %w", err)
		}
		out.RecentEvents = events
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if out.RecentUsers == nil {
		out.RecentUsers = []*identity.User{}
	}
	if out.RecentEvents == nil {
		out.RecentEvents = []*event.Event{}
	}
	return &out, nil
}

// GlobalAnalytics collects totals, distribution breakdowns and the 7-day
// registration trend.
func (s *Service) GlobalAnalytics(ctx context.Context) (*analytics.GlobalAnalytics, error) {
	var out analytics.GlobalAnalytics

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.totals(ctx)
		if err != nil {
			return err
		}
		out.Totals = totals
		return nil
	})
	g.Go(func() error {
		byCategory, err := s.events.CountByCategory(ctx)
		if err != nil {
			return fmt.Errorf("events by category: %w", err)
		}
		out.EventsByCategory = byCategory
		return nil
	})
	g.Go(func() error {
		byDifficulty, err := s.events.CountByDifficulty(ctx)
		if err != nil {
			return fmt.Errorf("events by difficulty: %w", err)
		}
		out.EventsByDifficulty = byDifficulty
		return nil
	})
	g.Go(func() error {
		trend, err := s.registrations.Trend(ctx, trendDays)
		if err != nil {
			return fmt.Errorf("registration trend: %w", err)
		}
		out.RegistrationTrend = trend
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventPerformance reports registration outcomes per event, or for a
// single event when eventID is non-nil.
func (s *Service) EventPerformance(ctx context.Context, eventID *uuid.UUID) ([]*analytics.EventPerformance, error) {
	aggregates, err := s.registrations.AggregatesByEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate by event: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(aggregates))
	if eventID != nil {
		ids = append(ids, *eventID)
	} else {
		for id := range aggregates {
			ids = append(ids, id)
		}
	}

	out := make([]*analytics.EventPerformance, 0, len(ids))
	for _, id := range ids {
		agg := aggregates[id]
		perf := &analytics.EventPerformance{
			EventID:            id,
			Title:              "Unknown Event",
			TotalRegistrations: agg.Counts.Total,
			Completed:          agg.Counts.Completed,
			Cancelled:          agg.Counts.Cancelled,
			AverageScore:       agg.Scores.Average,
			CompletionRate:     analytics.CompletionRate(agg.Counts.Completed, agg.Counts.Total),
		}
		if ev, err := s.events.FindByID(ctx, id); err == nil {
			perf.Title = ev.Title
			perf.Category = string(ev.Category)
		} else {
			s.logger.WarnContext(ctx, "event lookup failed", "event_id", id, "error", err)
		}
		out = append(out, perf)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TotalRegistrations > out[j].TotalRegistrations })
	return out, nil
}

// UserPerformance reports registration outcomes per user. Missing user
// lookups degrade to placeholder identity fields.
func (s *Service) UserPerformance(ctx context.Context) ([]*analytics.UserPerformance, error) {
	aggregates, err := s.registrations.AggregatesByUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate by user: %w", err)
	}

	out := make([]*analytics.UserPerformance, 0, len(aggregates))
	for id, agg := range aggregates {
		perf := &analytics.UserPerformance{
			UserID:         id,
			FullName:       "Unknown User",
			Email:          "unknown",
			Total:          agg.Counts.Total,
			Completed:      agg.Counts.Completed,
			Cancelled:      agg.Counts.Cancelled,
			AverageScore:   agg.Scores.Average,
			BestScore:      agg.Scores.Best,
			CompletionRate: analytics.CompletionRate(agg.Counts.Completed, agg.Counts.Total),
		}
		if user, err := s.users.FindByID(ctx, id); err == nil {
			perf.FullName = user.FullName
			perf.Email = user.Email
		}
		out = append(out, perf)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Completed > out[j].Completed })
	return out, nil
}

// CategoryPerformance rolls outcomes up per event category.
func (s *Service) CategoryPerformance(ctx context.Context) ([]*analytics.CategoryPerformance, error) {
	byCategory, err := s.events.IDsByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("event ids by category: %w", err)
	}

	categories := make([]event.Category, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	out := make([]*analytics.CategoryPerformance, 0, len(categories))
	for _, category := range categories {
		ids := byCategory[category]
		agg, err := s.registrations.AggregateForEvents(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("aggregate category %s: %w", category, err)
		}
		out = append(out, &analytics.CategoryPerformance{
			Category:       string(category),
			Events:         len(ids),
			Participants:   agg.Counts.Total,
			Completed:      agg.Counts.Completed,
			AverageScore:   agg.Scores.Average,
			CompletionRate: analytics.CompletionRate(agg.Counts.Completed, agg.Counts.Total),
		})
	}
	return out, nil
}

// Leaderboard ranks users by average completed score. Missing user lookups
// degrade to placeholders rather than failing the whole board.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]registration.LeaderboardEntry, error) {
	if limit < 1 {
		limit = defaultLeaderboard
	}
	entries, err := s.registrations.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	for i := range entries {
		user, err := s.users.FindByID(ctx, entries[i].UserID)
		if err != nil {
			s.logger.WarnContext(ctx, "leaderboard user lookup failed",
				"user_id", entries[i].UserID, "error", err)
			entries[i].FullName = "Unknown User"
			entries[i].Email = "unknown"
			continue
		}
		entries[i].FullName = user.FullName
		entries[i].Email = user.Email
	}
	if entries == nil {
		entries = []registration.LeaderboardEntry{}
	}
	return entries, nil
}

func (s *Service) totals(ctx context.Context) (analytics.Totals, error) {
	var out analytics.Totals

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.users.Count(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		out.Users = n
		return nil
	})
	g.Go(func() error {
		n, err := s.events.Count(ctx, false)
		if err != nil {
			return fmt.Errorf("count events: %w", err)
		}
		out.Events = n
		return nil
	})
	g.Go(func() error {
		n, err := s.events.Count(ctx, true)
		if err != nil {
			return fmt.Errorf("count active events: %w", err)
		}
		out.ActiveEvents = n
		return nil
	})
	g.Go(func() error {
		counts, err := s.registrations.GlobalCounts(ctx)
		if err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		out.Registrations = counts.Total
		out.CompletedRegistrations = counts.Completed
		return nil
	})
	if err := g.Wait(); err != nil {
		return analytics.Totals{}, err
	}
	return out, nil
}
