package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"certo/internal/registration"
	"certo/pkg/sentinel"
)

// Memory is an in-memory registration store for tests and single-node
// development. It enforces the one-active-registration rule the same way
// the Postgres partial unique index does.
type Memory struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*registration.Registration
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[uuid.UUID]*registration.Registration)}
}

func (s *Memory) Create(_ context.Context, r *registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Active() {
		for _, existing := range s.rows {
			if existing.UserID == r.UserID && existing.EventID == r.EventID && existing.Active() {
				return sentinel.ErrConflict
			}
		}
	}
	cp := *r
	s.rows[r.ID] = &cp
	return nil
}

func (s *Memory) FindByID(_ context.Context, id uuid.UUID) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// FindByUserAndEvent returns the most recent registration for the pair,
// whatever its status.
func (s *Memory) FindByUserAndEvent(_ context.Context, userID, eventID uuid.UUID) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *registration.Registration
	for _, r := range s.rows {
		if r.UserID != userID || r.EventID != eventID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Memory) Update(_ context.Context, r *registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.rows[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if r.Active() && !existing.Active() {
		for _, other := range s.rows {
			if other.ID != r.ID && other.UserID == r.UserID && other.EventID == r.EventID && other.Active() {
				return sentinel.ErrConflict
			}
		}
	}
	cp := *r
	s.rows[r.ID] = &cp
	return nil
}

func (s *Memory) ListByUser(_ context.Context, userID uuid.UUID) ([]*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*registration.Registration
	for _, r := range s.rows {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Memory) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*registration.Registration
	for _, r := range s.rows {
		if r.EventID == eventID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Memory) List(_ context.Context, page, limit int) ([]*registration.Registration, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*registration.Registration, 0, len(s.rows))
	for _, r := range s.rows {
		cp := *r
		all = append(all, &cp)
	}
	sortNewestFirst(all)

	total := len(all)
	start := (page - 1) * limit
	if start >= total {
		return []*registration.Registration{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *Memory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

func (s *Memory) GlobalCounts(_ context.Context) (registration.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts registration.StatusCounts
	for _, r := range s.rows {
		tally(&counts, r)
	}
	return counts, nil
}

func (s *Memory) CountActiveByEvent(_ context.Context, eventID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.rows {
		if r.EventID == eventID && r.Active() {
			n++
		}
	}
	return n, nil
}

func (s *Memory) CountActiveByEvents(_ context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[uuid.UUID]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}
	counts := make(map[uuid.UUID]int, len(eventIDs))
	for _, r := range s.rows {
		if wanted[r.EventID] && r.Active() {
			counts[r.EventID]++
		}
	}
	return counts, nil
}

func (s *Memory) AggregatesByEvent(_ context.Context) (map[uuid.UUID]registration.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregates(func(r *registration.Registration) uuid.UUID { return r.EventID }), nil
}

func (s *Memory) AggregatesByUser(_ context.Context) (map[uuid.UUID]registration.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregates(func(r *registration.Registration) uuid.UUID { return r.UserID }), nil
}

// AggregateForEvents folds all registrations for the given events into a
// single aggregate, used for per-category rollups.
func (s *Memory) AggregateForEvents(_ context.Context, eventIDs []uuid.UUID) (registration.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[uuid.UUID]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}
	var agg registration.Aggregate
	var sum float64
	for _, r := range s.rows {
		if !wanted[r.EventID] {
			continue
		}
		tally(&agg.Counts, r)
		if r.Score != nil {
			sum += *r.Score
			agg.Scores.Graded++
			if agg.Scores.Best == nil || *r.Score > *agg.Scores.Best {
				best := *r.Score
				agg.Scores.Best = &best
			}
		}
	}
	if agg.Scores.Graded > 0 {
		avg := sum / float64(agg.Scores.Graded)
		agg.Scores.Average = &avg
	}
	return agg, nil
}

// Trend returns one point per day for the trailing window, oldest first,
// counting registrations by their registration date. Empty days are zero.
func (s *Memory) Trend(_ context.Context, days int) ([]registration.TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := make(map[string]int)
	for _, r := range s.rows {
		byDay[r.RegistrationDate.UTC().Format("2006-01-02")]++
	}

	points := make([]registration.TrendPoint, 0, days)
	today := time.Now().UTC()
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		points = append(points, registration.TrendPoint{Date: day, Count: byDay[day]})
	}
	return points, nil
}

// Leaderboard ranks users by average score over completed graded
// registrations, descending. Names are resolved by the caller.
func (s *Memory) Leaderboard(_ context.Context, limit int) ([]registration.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type acc struct {
		sum float64
		n   int
	}
	byUser := make(map[uuid.UUID]*acc)
	for _, r := range s.rows {
		if r.Status != registration.StatusCompleted || r.Score == nil {
			continue
		}
		a, ok := byUser[r.UserID]
		if !ok {
			a = &acc{}
			byUser[r.UserID] = a
		}
		a.sum += *r.Score
		a.n++
	}

	entries := make([]registration.LeaderboardEntry, 0, len(byUser))
	for userID, a := range byUser {
		entries = append(entries, registration.LeaderboardEntry{
			UserID:       userID,
			AverageScore: a.sum / float64(a.n),
			Completed:    a.n,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AverageScore != entries[j].AverageScore {
			return entries[i].AverageScore > entries[j].AverageScore
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Memory) aggregates(key func(*registration.Registration) uuid.UUID) map[uuid.UUID]registration.Aggregate {
	sums := make(map[uuid.UUID]float64)
	out := make(map[uuid.UUID]registration.Aggregate)
	for _, r := range s.rows {
		k := key(r)
		agg := out[k]
		tally(&agg.Counts, r)
		if r.Score != nil {
			sums[k] += *r.Score
			agg.Scores.Graded++
			if agg.Scores.Best == nil || *r.Score > *agg.Scores.Best {
				best := *r.Score
				agg.Scores.Best = &best
			}
		}
		out[k] = agg
	}
	for k, agg := range out {
		if agg.Scores.Graded > 0 {
			avg := sums[k] / float64(agg.Scores.Graded)
			agg.Scores.Average = &avg
			out[k] = agg
		}
	}
	return out
}

func tally(counts *registration.StatusCounts, r *registration.Registration) {
	counts.Total++
	switch r.Status {
	case registration.StatusCompleted:
		counts.Completed++
	case registration.StatusCancelled:
		counts.Cancelled++
	}
}

func sortNewestFirst(rows []*registration.Registration) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].RegistrationDate.After(rows[j].RegistrationDate)
	})
}
