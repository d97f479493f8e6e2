package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"certo/internal/event"
	"certo/pkg/sentinel"
)

// Memory is an in-memory event store for tests and single-node development.
type Memory struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*event.Event
}

func NewMemory() *Memory {
	return &Memory{events: make(map[uuid.UUID]*event.Event)}
}

func (s *Memory) Create(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.Title == e.Title && existing.Description == e.Description {
			return sentinel.ErrConflict
		}
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *Memory) FindByID(_ context.Context, id uuid.UUID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Memory) Update(_ context.Context, e *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.events {
		if existing.ID != e.ID && existing.Title == e.Title && existing.Description == e.Description {
			return sentinel.ErrConflict
		}
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *Memory) Deactivate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.IsActive = false
	return nil
}

func (s *Memory) List(_ context.Context, q event.Query) ([]*event.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*event.Event
	for _, e := range s.events {
		if q.OnlyActive && !e.IsActive {
			continue
		}
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		if q.Difficulty != "" && e.Difficulty != q.Difficulty {
			continue
		}
		if q.Title != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(q.Title)) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if q.Limit > 0 {
		start := (q.Page - 1) * q.Limit
		if start < 0 {
			start = 0
		}
		if start >= total {
			return nil, total, nil
		}
		end := start + q.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *Memory) Count(_ context.Context, onlyActive bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !onlyActive {
		return len(s.events), nil
	}
	n := 0
	for _, e := range s.events {
		if e.IsActive {
			n++
		}
	}
	return n, nil
}

func (s *Memory) ListRecent(ctx context.Context, limit int) ([]*event.Event, error) {
	all, _, err := s.List(ctx, event.Query{})
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Memory) CountByCategory(_ context.Context) (map[event.Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[event.Category]int)
	for _, e := range s.events {
		out[e.Category]++
	}
	return out, nil
}

func (s *Memory) CountByDifficulty(_ context.Context) (map[event.Difficulty]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[event.Difficulty]int)
	for _, e := range s.events {
		out[e.Difficulty]++
	}
	return out, nil
}

func (s *Memory) IDsByCategory(_ context.Context) (map[event.Category][]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[event.Category][]uuid.UUID)
	for _, e := range s.events {
		out[e.Category] = append(out[e.Category], e.ID)
	}
	return out, nil
}

func (s *Memory) DistinctCategories(_ context.Context) ([]event.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[event.Category]bool)
	var out []event.Category
	for _, e := range s.events {
		if !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
