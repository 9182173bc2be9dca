package round

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ContributionFilter narrows a contribution listing. Zero fields match
// everything.
type ContributionFilter struct {
	RoundID      string
	MembershipID string
	Status       ContributionStatus
	DueBefore    *time.Time
}

// Store persists rounds and their satellite records.
type Store interface {
	CreateRound(ctx context.Context, r Round) error
	GetRound(ctx context.Context, id string) (Round, error)
	UpdateRound(ctx context.Context, r Round) error
	ListRounds(ctx context.Context, status Status, limit int) ([]Round, error)

	CreateMembership(ctx context.Context, m Membership) error
	GetMembership(ctx context.Context, id string) (Membership, error)
	GetMembershipByMember(ctx context.Context, roundID, memberID string) (Membership, error)
	UpdateMembership(ctx context.Context, m Membership) error
	ListMemberships(ctx context.Context, roundID string) ([]Membership, error)

	CreateContributions(ctx context.Context, cs []Contribution) error
	GetContribution(ctx context.Context, id string) (Contribution, error)
	UpdateContribution(ctx context.Context, c Contribution) error
	ListContributions(ctx context.Context, f ContributionFilter) ([]Contribution, error)

	CreatePayouts(ctx context.Context, ps []Payout) error
	GetPayout(ctx context.Context, id string) (Payout, error)
	UpdatePayout(ctx context.Context, p Payout) error
	ListPayouts(ctx context.Context, roundID string) ([]Payout, error)
	ListDuePayouts(ctx context.Context, asOf time.Time) ([]Payout, error)

	GetProfile(ctx context.Context, memberID string) (Profile, error)
	UpdateProfile(ctx context.Context, p Profile) error

	CreateCompletionStats(ctx context.Context, s CompletionStats) error
	GetCompletionStats(ctx context.Context, roundID string) (CompletionStats, error)
}

// MemoryStore is the in-process Store used by tests and local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	rounds        map[string]Round
	memberships   map[string]Membership
	contributions map[string]Contribution
	payouts       map[string]Payout
	profiles      map[string]Profile
	stats         map[string]CompletionStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rounds:        make(map[string]Round),
		memberships:   make(map[string]Membership),
		contributions: make(map[string]Contribution),
		payouts:       make(map[string]Payout),
		profiles:      make(map[string]Profile),
		stats:         make(map[string]CompletionStats),
	}
}

func (s *MemoryStore) CreateRound(ctx context.Context, r Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[r.ID] = r
	return nil
}

func (s *MemoryStore) GetRound(ctx context.Context, id string) (Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rounds[id]
	if !ok {
		return Round{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) UpdateRound(ctx context.Context, r Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[r.ID]; !ok {
		return ErrNotFound
	}
	s.rounds[r.ID] = r
	return nil
}

func (s *MemoryStore) ListRounds(ctx context.Context, status Status, limit int) ([]Round, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Round
	for _, r := range s.rounds {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateMembership(ctx context.Context, m Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[m.ID] = m
	return nil
}

func (s *MemoryStore) GetMembership(ctx context.Context, id string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[id]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) GetMembershipByMember(ctx context.Context, roundID, memberID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.RoundID == roundID && m.MemberID == memberID {
			return m, nil
		}
	}
	return Membership{}, ErrNotFound
}

func (s *MemoryStore) UpdateMembership(ctx context.Context, m Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memberships[m.ID]; !ok {
		return ErrNotFound
	}
	s.memberships[m.ID] = m
	return nil
}

func (s *MemoryStore) ListMemberships(ctx context.Context, roundID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Membership
	for _, m := range s.memberships {
		if m.RoundID == roundID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *MemoryStore) CreateContributions(ctx context.Context, cs []Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cs {
		s.contributions[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) GetContribution(ctx context.Context, id string) (Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contributions[id]
	if !ok {
		return Contribution{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateContribution(ctx context.Context, c Contribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contributions[c.ID]; !ok {
		return ErrNotFound
	}
	s.contributions[c.ID] = c
	return nil
}

func (s *MemoryStore) ListContributions(ctx context.Context, f ContributionFilter) ([]Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Contribution
	for _, c := range s.contributions {
		if f.RoundID != "" && c.RoundID != f.RoundID {
			continue
		}
		if f.MembershipID != "" && c.MembershipID != f.MembershipID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.DueBefore != nil && !c.DueDate.Before(*f.DueBefore) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MembershipID != out[j].MembershipID {
			return out[i].MembershipID < out[j].MembershipID
		}
		return out[i].CycleNumber < out[j].CycleNumber
	})
	return out, nil
}

func (s *MemoryStore) CreatePayouts(ctx context.Context, ps []Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.payouts[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) GetPayout(ctx context.Context, id string) (Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payouts[id]
	if !ok {
		return Payout{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpdatePayout(ctx context.Context, p Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payouts[p.ID]; !ok {
		return ErrNotFound
	}
	s.payouts[p.ID] = p
	return nil
}

func (s *MemoryStore) ListPayouts(ctx context.Context, roundID string) ([]Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payout
	for _, p := range s.payouts {
		if p.RoundID == roundID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayoutCycle < out[j].PayoutCycle })
	return out, nil
}

func (s *MemoryStore) ListDuePayouts(ctx context.Context, asOf time.Time) ([]Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payout
	for _, p := range s.payouts {
		if p.Status == PayoutScheduled && !p.ScheduledDate.After(asOf) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, memberID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[memberID]
	if !ok {
		p = Profile{MemberID: memberID, TrustScore: DefaultTrustScore}
		s.profiles[memberID] = p
	}
	return p, nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.MemberID] = p
	return nil
}

func (s *MemoryStore) CreateCompletionStats(ctx context.Context, st CompletionStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stats[st.RoundID]; ok {
		return ErrValidation
	}
	s.stats[st.RoundID] = st
	return nil
}

func (s *MemoryStore) GetCompletionStats(ctx context.Context, roundID string) (CompletionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[roundID]
	if !ok {
		return CompletionStats{}, ErrNotFound
	}
	return st, nil
}
