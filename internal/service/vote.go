package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrConflictNotFound = errors.New("conflict not found")
	ErrVotingClosed     = errors.New("conflict is already resolved")
	ErrInvalidChoice    = errors.New("choice must be A or B")
	ErrUserIDMissing    = errors.New("user_id is required")
)

// ConflictRegistry is the slice of the conflict service the ledger needs.
// Every tally change the ledger triggers goes through it.
type ConflictRegistry interface {
	Get(id string) (*domain.Conflict, bool)
	ApplyVote(ctx context.Context, id string, choice domain.Choice) bool
	ApplyVoteChange(ctx context.Context, id string, from, to domain.Choice) bool
}

// TallyStats is the per-conflict vote summary, with weighted aggregates used
// for reporting only.
type TallyStats struct {
	TotalVotes int     `json:"total_votes"`
	VotesA     int     `json:"votes_a"`
	VotesB     int     `json:"votes_b"`
	WeightedA  float64 `json:"weighted_a"`
	WeightedB  float64 `json:"weighted_b"`
	RatioA     float64 `json:"ratio_a"`
	RatioB     float64 `json:"ratio_b"`
}

// VoteStats is the ledger-wide summary read by dashboards.
type VoteStats struct {
	TotalVotes              int                      `json:"total_votes"`
	UniqueConflicts         int                      `json:"unique_conflicts"`
	UniqueUsers             int                      `json:"unique_users"`
	VotesByRole             map[domain.VoterRole]int `json:"votes_by_role"`
	AverageVotesPerConflict float64                  `json:"average_votes_per_conflict"`
}

// VoteService enforces at-most-one-vote-per-user-per-conflict and keeps that
// invariant synchronized with the registry's tally. Submissions for the same
// conflict are serialized so vote persistence and tally mutation are
// observably atomic.
type VoteService struct {
	store    domain.VoteStore
	registry ConflictRegistry
	logger   *zap.Logger

	mu    sync.RWMutex
	votes map[string]*domain.Vote // keyed by userID_conflictID

	locks *lockTable // one lock per conflict id

	onResolved func(c *domain.Conflict)
}

func NewVoteService(vs domain.VoteStore, registry ConflictRegistry, logger *zap.Logger) *VoteService {
	return &VoteService{
		store:    vs,
		registry: registry,
		logger:   logger,
		votes:    make(map[string]*domain.Vote),
		locks:    newLockTable(),
	}
}

// SetResolutionHook registers the callback fired when a submission flips its
// conflict to resolved. Wired by the recorder.
func (s *VoteService) SetResolutionHook(fn func(c *domain.Conflict)) {
	s.onResolved = fn
}

// Load replays persisted votes into the ledger. Called once at startup.
func (s *VoteService) Load(ctx context.Context) error {
	votes, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range votes {
		s.votes[v.LedgerKey()] = v
	}
	s.logger.Info("votes loaded", zap.Int("count", len(votes)))
	return nil
}

// SubmitVoteInput carries one submission. Role and Weight come from the
// identity collaborator; both default (anonymous, role weight) when unset.
type SubmitVoteInput struct {
	ConflictID string
	UserID     string
	Choice     string
	Reason     string
	Role       domain.VoterRole
	Weight     float64
	IPAddress  string
}

// Submit records or replaces the user's vote on a conflict. Rejections
// (unknown conflict, closed voting, bad choice) are sentinel errors, not
// faults.
func (s *VoteService) Submit(ctx context.Context, in SubmitVoteInput) (*domain.Vote, error) {
	choice, ok := domain.ParseChoice(in.Choice)
	if !ok {
		s.logger.Warn("vote rejected, invalid choice", zap.String("choice", in.Choice))
		return nil, ErrInvalidChoice
	}
	if in.UserID == "" {
		return nil, ErrUserIDMissing
	}

	// Serialize all submissions on this conflict: the existing-vote lookup,
	// the tally adjustment, and the persisted write must act as one unit.
	unlock := s.locks.lock(in.ConflictID)
	defer unlock()

	before, found := s.registry.Get(in.ConflictID)
	if !found {
		s.logger.Warn("vote rejected, conflict not found", zap.String("conflict_id", in.ConflictID))
		return nil, ErrConflictNotFound
	}
	if before.Status == domain.StatusResolved {
		s.logger.Warn("vote rejected, voting closed",
			zap.String("conflict_id", in.ConflictID),
			zap.String("user_id", in.UserID))
		return nil, ErrVotingClosed
	}

	key := domain.VoteKey(in.UserID, in.ConflictID)
	now := time.Now().UTC()

	s.mu.Lock()
	existing := s.votes[key]
	s.mu.Unlock()

	var result *domain.Vote
	switch {
	case existing == nil:
		// The tally mutation goes first: the registry refuses it if an
		// administrative resolve closed the conflict after the status check
		// above, and a refused vote must not enter the ledger.
		if !s.registry.ApplyVote(ctx, in.ConflictID, choice) {
			s.logger.Warn("vote rejected, conflict resolved during submission",
				zap.String("conflict_id", in.ConflictID),
				zap.String("user_id", in.UserID))
			return nil, ErrVotingClosed
		}
		role := in.Role
		if role == "" {
			role = domain.RoleAnonymous
		}
		weight := in.Weight
		if weight <= 0 {
			weight = role.DefaultWeight()
		}
		v := &domain.Vote{
			ID:         uuid.NewString(),
			ConflictID: in.ConflictID,
			UserID:     in.UserID,
			Choice:     choice,
			Reason:     in.Reason,
			VotedAt:    now,
			Role:       role,
			Weight:     weight,
			IPAddress:  in.IPAddress,
		}
		s.mu.Lock()
		s.votes[key] = v
		s.mu.Unlock()
		s.persist(ctx, v)
		s.logger.Info("vote submitted",
			zap.String("conflict_id", in.ConflictID),
			zap.String("user_id", in.UserID),
			zap.String("choice", string(choice)))
		result = v.Clone()

	case existing.Choice != choice:
		// Vote change: move one unit between tally buckets, then overwrite
		// the stored record in place. Refused the same way when the conflict
		// resolved mid-flight.
		if !s.registry.ApplyVoteChange(ctx, in.ConflictID, existing.Choice, choice) {
			s.logger.Warn("vote change rejected, conflict resolved during submission",
				zap.String("conflict_id", in.ConflictID),
				zap.String("user_id", in.UserID))
			return nil, ErrVotingClosed
		}
		s.mu.Lock()
		existing.Choice = choice
		existing.Reason = in.Reason
		existing.VotedAt = now
		s.mu.Unlock()
		s.persist(ctx, existing)
		s.logger.Info("vote changed",
			zap.String("conflict_id", in.ConflictID),
			zap.String("user_id", in.UserID),
			zap.String("choice", string(choice)))
		result = existing.Clone()

	default:
		// Same choice again: refresh reason and timestamp, leave the tally alone.
		s.mu.Lock()
		existing.Reason = in.Reason
		existing.VotedAt = now
		s.mu.Unlock()
		s.persist(ctx, existing)
		result = existing.Clone()
	}

	if after, ok := s.registry.Get(in.ConflictID); ok &&
		after.Status == domain.StatusResolved && s.onResolved != nil {
		s.onResolved(after)
	}

	return result, nil
}

// GetVote returns the user's current vote on a conflict.
func (s *VoteService) GetVote(userID, conflictID string) (*domain.Vote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[domain.VoteKey(userID, conflictID)]
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// VotesFor returns all votes on a conflict, newest first.
func (s *VoteService) VotesFor(conflictID string) []*domain.Vote {
	s.mu.RLock()
	votes := make([]*domain.Vote, 0)
	for _, v := range s.votes {
		if v.ConflictID == conflictID {
			votes = append(votes, v.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(votes, func(i, j int) bool {
		return votes[i].VotedAt.After(votes[j].VotedAt)
	})
	return votes
}

// TallyStats aggregates the votes on one conflict. Ratios are zero when
// there are no votes.
func (s *VoteService) TallyStats(conflictID string) TallyStats {
	votes := s.VotesFor(conflictID)

	stats := TallyStats{TotalVotes: len(votes)}
	for _, v := range votes {
		if v.Choice == domain.ChoiceA {
			stats.VotesA++
			stats.WeightedA += v.Weight
		} else {
			stats.VotesB++
			stats.WeightedB += v.Weight
		}
	}
	if stats.TotalVotes > 0 {
		stats.RatioA = float64(stats.VotesA) / float64(stats.TotalVotes)
		stats.RatioB = float64(stats.VotesB) / float64(stats.TotalVotes)
	}
	return stats
}

func (s *VoteService) Statistics() VoteStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := VoteStats{
		TotalVotes:  len(s.votes),
		VotesByRole: make(map[domain.VoterRole]int),
	}
	conflicts := make(map[string]int)
	users := make(map[string]struct{})
	for _, v := range s.votes {
		conflicts[v.ConflictID]++
		users[v.UserID] = struct{}{}
		stats.VotesByRole[v.Role]++
	}
	stats.UniqueConflicts = len(conflicts)
	stats.UniqueUsers = len(users)
	if len(conflicts) > 0 {
		stats.AverageVotesPerConflict = float64(len(s.votes)) / float64(len(conflicts))
	}
	return stats
}

func (s *VoteService) persist(ctx context.Context, v *domain.Vote) {
	if err := s.store.Put(ctx, v); err != nil {
		s.logger.Error("failed to persist vote",
			zap.String("vote_id", v.ID),
			zap.String("conflict_id", v.ConflictID),
			zap.Error(err))
	}
}

// lockTable hands out one mutex per key, created on demand.
type lockTable struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) lock(key string) (unlock func()) {
	t.mu.RLock()
	m, exists := t.locks[key]
	t.mu.RUnlock()

	if !exists {
		t.mu.Lock()
		// Double-check after acquiring write lock
		if m, exists = t.locks[key]; !exists {
			m = &sync.Mutex{}
			t.locks[key] = m
		}
		t.mu.Unlock()
	}

	m.Lock()
	return m.Unlock
}
