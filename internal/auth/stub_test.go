package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type stubStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*Identity
	failErr error
}

func newStubStore() *stubStore {
	return &stubStore{byID: make(map[uuid.UUID]*Identity)}
}

func (s *stubStore) GetByID(_ context.Context, id uuid.UUID) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	if ident, ok := s.byID[id]; ok {
		cp := *ident
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *stubStore) GetByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	for _, ident := range s.byID {
		if ident.Email == email {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) Create(_ context.Context, in NewIdentity) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ident := range s.byID {
		if ident.Email == in.Email {
			return nil, ErrConflict
		}
	}
	now := time.Now().UTC()
	ident := &Identity{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Active:       in.Active,
		Elevated:     in.Elevated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[ident.ID] = ident
	cp := *ident
	return &cp, nil
}

func (s *stubStore) List(_ context.Context, limit, offset int) ([]*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Identity, 0, len(s.byID))
	for _, ident := range s.byID {
		cp := *ident
		out = append(out, &cp)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) SetActive(_ context.Context, id uuid.UUID, active bool) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	ident.Active = active
	cp := *ident
	return &cp, nil
}
