package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"certo/internal/certificate"
	"certo/pkg/sentinel"
)

// Memory is an in-memory certificate store for tests and single-node
// development.
type Memory struct {
	mu    sync.RWMutex
	certs map[uuid.UUID]*certificate.Certificate
}

func NewMemory() *Memory {
	return &Memory{certs: make(map[uuid.UUID]*certificate.Certificate)}
}

func (s *Memory) Create(_ context.Context, c *certificate.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.certs {
		if existing.UserID == c.UserID && existing.EventID == c.EventID {
			return sentinel.ErrConflict
		}
	}
	cp := *c
	s.certs[c.ID] = &cp
	return nil
}

func (s *Memory) FindByID(_ context.Context, id uuid.UUID) (*certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Memory) ListByUser(_ context.Context, userID uuid.UUID) ([]*certificate.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*certificate.Certificate
	for _, c := range s.certs {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedDate.After(out[j].IssuedDate)
	})
	return out, nil
}

func (s *Memory) Update(_ context.Context, c *certificate.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *c
	s.certs[c.ID] = &cp
	return nil
}

func (s *Memory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.certs, id)
	return nil
}

func (s *Memory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.certs), nil
}
