package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMinVotes is the minimum tally size before auto-resolution is considered.
	DefaultMinVotes = 10
	// DefaultWinRatio is the vote share a choice needs to win automatically.
	DefaultWinRatio = 0.7
	// DefaultConflictConfidence is the informational prior on a new conflict.
	DefaultConflictConfidence = 0.8
)

// ResolutionPolicy holds the auto-resolution thresholds. Both are
// configuration, not structural constants.
type ResolutionPolicy struct {
	MinVotes int
	WinRatio float64
}

func DefaultResolutionPolicy() ResolutionPolicy {
	return ResolutionPolicy{MinVotes: DefaultMinVotes, WinRatio: DefaultWinRatio}
}

// ConflictStats is the registry summary read by dashboards.
type ConflictStats struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Voting      int     `json:"voting"`
	Resolved    int     `json:"resolved"`
	ResolveRate float64 `json:"resolve_rate"`
}

// StatusAll lists conflicts regardless of status.
const StatusAll = "all"

type conflictEntry struct {
	mu sync.Mutex
	c  *domain.Conflict
}

// ConflictService owns the conflict state machine and the auto-resolution
// policy. The in-memory table is authoritative; every mutation is written
// through to the store and a failed write is logged without rolling back.
type ConflictService struct {
	store  domain.ConflictStore
	policy ResolutionPolicy
	logger *zap.Logger

	mu        sync.RWMutex
	conflicts map[string]*conflictEntry
}

func NewConflictService(cs domain.ConflictStore, policy ResolutionPolicy, logger *zap.Logger) *ConflictService {
	if policy.MinVotes <= 0 {
		policy.MinVotes = DefaultMinVotes
	}
	if policy.WinRatio <= 0 || policy.WinRatio > 1 {
		policy.WinRatio = DefaultWinRatio
	}
	return &ConflictService{
		store:     cs,
		policy:    policy,
		logger:    logger,
		conflicts: make(map[string]*conflictEntry),
	}
}

// Load replays persisted conflicts into the in-memory table. Called once at
// startup before the service is shared.
func (s *ConflictService) Load(ctx context.Context) error {
	conflicts, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range conflicts {
		if c.Tally == nil {
			c.Tally = map[domain.Choice]int{domain.ChoiceA: 0, domain.ChoiceB: 0}
		}
		s.conflicts[c.ID] = &conflictEntry{c: c}
	}
	s.logger.Info("conflicts loaded", zap.Int("count", len(conflicts)))
	return nil
}

// CreateConflictInput carries the tuple supplied by the conflict-detection
// collaborator. ConceptID is the stable identifier its evolution history is
// keyed by; when empty the conflict id is used.
type CreateConflictInput struct {
	Question  string
	ConceptA  string
	ConceptB  string
	SourceA   string
	SourceB   string
	ConceptID string
}

func (s *ConflictService) Create(ctx context.Context, in CreateConflictInput) *domain.Conflict {
	now := time.Now().UTC()
	c := &domain.Conflict{
		ID:        "conflict-" + uuid.NewString(),
		Question:  in.Question,
		ConceptA:  in.ConceptA,
		ConceptB:  in.ConceptB,
		SourceA:   in.SourceA,
		SourceB:   in.SourceB,
		ConceptID: in.ConceptID,
		Status:    domain.StatusPending,
		Tally: map[domain.Choice]int{
			domain.ChoiceA: 0,
			domain.ChoiceB: 0,
		},
		CreatedAt:       now,
		UpdatedAt:       now,
		ConfidenceScore: DefaultConflictConfidence,
		Type:            domain.ConflictDefinitionMismatch,
	}

	s.mu.Lock()
	s.conflicts[c.ID] = &conflictEntry{c: c}
	s.mu.Unlock()

	s.persist(ctx, c)
	s.logger.Info("conflict created", zap.String("conflict_id", c.ID), zap.String("question", c.Question))
	return c.Clone()
}

func (s *ConflictService) entry(id string) (*conflictEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.conflicts[id]
	return e, ok
}

// Get returns a snapshot of the conflict, or false if unknown.
func (s *ConflictService) Get(id string) (*domain.Conflict, bool) {
	e, ok := s.entry(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.c.Clone(), true
}

// List returns conflicts filtered by status ("all" for every status), sorted
// newest-first by creation time, windowed by 1-based page/pageSize. A page
// past the end is an empty result, not an error.
func (s *ConflictService) List(status string, page, pageSize int) []*domain.Conflict {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	s.mu.RLock()
	snapshots := make([]*domain.Conflict, 0, len(s.conflicts))
	for _, e := range s.conflicts {
		e.mu.Lock()
		c := e.c.Clone()
		e.mu.Unlock()
		if status != StatusAll && domain.ValidConflictStatus(status) && c.Status != domain.ConflictStatus(status) {
			continue
		}
		snapshots = append(snapshots, c)
	}
	s.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	start := (page - 1) * pageSize
	if start >= len(snapshots) {
		return []*domain.Conflict{}
	}
	end := start + pageSize
	if end > len(snapshots) {
		end = len(snapshots)
	}
	return snapshots[start:end]
}

// ApplyVote adds one vote for choice to the tally and re-evaluates the
// auto-resolution policy. It reports false for an unknown or already
// resolved conflict. Together with ApplyVoteChange this is the only path
// that mutates a tally.
func (s *ConflictService) ApplyVote(ctx context.Context, id string, choice domain.Choice) bool {
	return s.adjustTally(ctx, id, func(tally map[domain.Choice]int) {
		tally[choice]++
	})
}

// ApplyVoteChange moves one vote from the old choice to the new one as a
// single atomic tally adjustment, used when a user changes their vote.
func (s *ConflictService) ApplyVoteChange(ctx context.Context, id string, from, to domain.Choice) bool {
	return s.adjustTally(ctx, id, func(tally map[domain.Choice]int) {
		if tally[from] > 0 {
			tally[from]--
		}
		tally[to]++
	})
}

func (s *ConflictService) adjustTally(ctx context.Context, id string, adjust func(map[domain.Choice]int)) bool {
	e, ok := s.entry(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A resolved tally is final. The ledger checks status before calling in,
	// but an administrative resolve can land between that check and this
	// lock; refusing here keeps the check-and-mutate atomic.
	if e.c.Status == domain.StatusResolved {
		return false
	}

	adjust(e.c.Tally)
	if e.c.Status == domain.StatusPending {
		e.c.Status = domain.StatusVoting
	}
	e.c.UpdatedAt = time.Now().UTC()

	s.evaluatePolicyLocked(e.c)
	s.persist(ctx, e.c)
	return true
}

// evaluatePolicyLocked applies the threshold rule. Caller holds the entry lock.
func (s *ConflictService) evaluatePolicyLocked(c *domain.Conflict) {
	if c.Status == domain.StatusResolved {
		return
	}
	total := c.TotalVotes()
	if total < s.policy.MinVotes {
		return
	}
	ratioA := float64(c.Tally[domain.ChoiceA]) / float64(total)
	ratioB := float64(c.Tally[domain.ChoiceB]) / float64(total)

	switch {
	case ratioA >= s.policy.WinRatio:
		s.resolveLocked(c, domain.ChoiceA)
	case ratioB >= s.policy.WinRatio:
		s.resolveLocked(c, domain.ChoiceB)
	}
}

func (s *ConflictService) resolveLocked(c *domain.Conflict, choice domain.Choice) {
	now := time.Now().UTC()
	c.Status = domain.StatusResolved
	c.ResolvedChoice = &choice
	c.ResolvedAt = &now
	c.UpdatedAt = now
	s.logger.Info("conflict resolved",
		zap.String("conflict_id", c.ID),
		zap.String("choice", string(choice)),
		zap.Int("total_votes", c.TotalVotes()))
}

// Resolve force-resolves a conflict regardless of tally (administrative
// override). Resolving an already-resolved conflict is a no-op so the
// recorded outcome can never flip.
func (s *ConflictService) Resolve(ctx context.Context, id string, choice domain.Choice) bool {
	e, ok := s.entry(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.c.Status == domain.StatusResolved {
		s.logger.Warn("resolve ignored, conflict already resolved",
			zap.String("conflict_id", id),
			zap.String("resolved_choice", string(*e.c.ResolvedChoice)))
		return true
	}

	s.resolveLocked(e.c, choice)
	s.persist(ctx, e.c)
	return true
}

// ResolvedConflicts returns snapshots of every resolved conflict.
func (s *ConflictService) ResolvedConflicts() []*domain.Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resolved []*domain.Conflict
	for _, e := range s.conflicts {
		e.mu.Lock()
		if e.c.Status == domain.StatusResolved {
			resolved = append(resolved, e.c.Clone())
		}
		e.mu.Unlock()
	}
	return resolved
}

func (s *ConflictService) Statistics() ConflictStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ConflictStats{}
	for _, e := range s.conflicts {
		e.mu.Lock()
		status := e.c.Status
		e.mu.Unlock()

		stats.Total++
		switch status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusVoting:
			stats.Voting++
		case domain.StatusResolved:
			stats.Resolved++
		}
	}
	if stats.Total > 0 {
		stats.ResolveRate = float64(stats.Resolved) / float64(stats.Total)
	}
	return stats
}

// persist writes through to the store. Availability is favored: a failed
// write is logged and the in-memory mutation stands.
func (s *ConflictService) persist(ctx context.Context, c *domain.Conflict) {
	if err := s.store.Put(ctx, c); err != nil {
		s.logger.Error("failed to persist conflict", zap.String("conflict_id", c.ID), zap.Error(err))
	}
}
