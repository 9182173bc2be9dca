package goal

import (
	"context"
	"sort"
	"sync"
)

// Store persists goals and group memberships.
type Store interface {
	Create(ctx context.Context, g Goal) error
	Get(ctx context.Context, id string) (Goal, error)
	Update(ctx context.Context, g Goal) error
	ListByOwner(ctx context.Context, ownerID string) ([]Goal, error)
	ListActive(ctx context.Context) ([]Goal, error)

	AddMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, goalID, memberID string) (Member, error)
	UpdateMember(ctx context.Context, m Member) error
	ListMembers(ctx context.Context, goalID string) ([]Member, error)
}

// MemoryStore is the in-process Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	goals   map[string]Goal
	members map[string]Member // goalID/memberID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		goals:   make(map[string]Goal),
		members: make(map[string]Member),
	}
}

func memberKey(goalID, memberID string) string { return goalID + "/" + memberID }

func (s *MemoryStore) Create(ctx context.Context, g Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return Goal{}, ErrNotFound
	}
	return g, nil
}

func (s *MemoryStore) Update(ctx context.Context, g Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; !ok {
		return ErrNotFound
	}
	s.goals[g.ID] = g
	return nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Goal
	for _, g := range s.goals {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Goal
	for _, g := range s.goals {
		if g.Active {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddMember(ctx context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey(m.GoalID, m.MemberID)] = m
	return nil
}

func (s *MemoryStore) GetMember(ctx context.Context, goalID, memberID string) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey(goalID, memberID)]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) UpdateMember(ctx context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey(m.GoalID, m.MemberID)] = m
	return nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, goalID string) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Member
	for _, m := range s.members {
		if m.GoalID == goalID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}
