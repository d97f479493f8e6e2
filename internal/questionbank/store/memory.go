package store

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/google/uuid"

	"certo/internal/event"
	"certo/internal/questionbank"
	"certo/pkg/sentinel"
)

// Memory is an in-memory question-bank store for tests and single-node
// development.
type Memory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*questionbank.Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[uuid.UUID]*questionbank.Entry)}
}

func (s *Memory) Create(_ context.Context, e *questionbank.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *Memory) FindByID(_ context.Context, id uuid.UUID) (*questionbank.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Memory) Update(_ context.Context, e *questionbank.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *Memory) Deactivate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.IsActive = false
	return nil
}

func (s *Memory) List(_ context.Context, f questionbank.Filter) ([]*questionbank.Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matching(f)
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if f.Limit > 0 {
		start := (f.Page - 1) * f.Limit
		if start < 0 {
			start = 0
		}
		if start >= total {
			return nil, total, nil
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

// Pick returns up to n random active entries matching category and
// difficulty.
func (s *Memory) Pick(_ context.Context, category event.Category, difficulty event.Difficulty, n int) ([]*questionbank.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matching(questionbank.Filter{Category: category, Difficulty: difficulty, OnlyActive: true})
	rand.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })
	if len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

func (s *Memory) matching(f questionbank.Filter) []*questionbank.Entry {
	var out []*questionbank.Entry
	for _, e := range s.entries {
		if f.OnlyActive && !e.IsActive {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Difficulty != "" && e.Difficulty != f.Difficulty {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out
}
