package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Harshitk-cp/concord/internal/domain"
	"go.uber.org/zap"
)

// CommunityResolver is the author recorded on auto-resolved versions.
const CommunityResolver = "community"

// AdminResolver is the author recorded on administratively resolved versions.
const AdminResolver = "administrator"

// ResolutionEvent is pushed to subscribers when a conflict resolves, carrying
// everything a downstream knowledge store needs to update its own indices.
type ResolutionEvent struct {
	ConceptID      string             `json:"concept_id"`
	ConflictID     string             `json:"conflict_id"`
	WinningContent string             `json:"winning_content"`
	LosingContent  string             `json:"losing_content"`
	TotalVotes     int                `json:"total_votes"`
	AffectedRoles  []domain.VoterRole `json:"affected_roles,omitempty"`
}

// RecorderService composes the registry, the ledger, and the evolution log
// into the end-to-end resolution flow: when a conflict becomes resolved, it
// appends the corresponding evolution version exactly once and fans the
// outcome out to subscribers.
type RecorderService struct {
	conflicts  *ConflictService
	votes      *VoteService
	evolutions *EvolutionService
	logger     *zap.Logger

	mu          sync.Mutex
	recorded    map[string]bool // conflict ids already written to the log
	subscribers []func(ResolutionEvent)
}

func NewRecorderService(conflicts *ConflictService, votes *VoteService, evolutions *EvolutionService, logger *zap.Logger) *RecorderService {
	r := &RecorderService{
		conflicts:  conflicts,
		votes:      votes,
		evolutions: evolutions,
		logger:     logger,
		recorded:   make(map[string]bool),
	}
	// Conflicts that come back resolved from storage had their resolution
	// recorded in a previous run; never write a second version for them.
	for _, c := range conflicts.ResolvedConflicts() {
		r.recorded[c.ID] = true
	}
	votes.SetResolutionHook(func(c *domain.Conflict) {
		r.record(context.Background(), c, CommunityResolver)
	})
	return r
}

// Subscribe registers a resolution-event consumer. Subscribers run inline on
// the resolving call; they must not block.
func (r *RecorderService) Subscribe(fn func(ResolutionEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Resolve performs an administrative resolution and records the outcome.
func (r *RecorderService) Resolve(ctx context.Context, conflictID string, choice domain.Choice) bool {
	if !r.conflicts.Resolve(ctx, conflictID, choice) {
		return false
	}
	if c, ok := r.conflicts.Get(conflictID); ok {
		r.record(ctx, c, AdminResolver)
	}
	return true
}

// record appends the evolution version for a resolved conflict. Guarded so
// the auto-resolution hook and an administrative resolve racing each other
// write a single record.
func (r *RecorderService) record(ctx context.Context, c *domain.Conflict, resolver string) {
	winning, losing, ok := c.WinningContent()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.recorded[c.ID] {
		r.mu.Unlock()
		return
	}
	r.recorded[c.ID] = true
	subscribers := make([]func(ResolutionEvent), len(r.subscribers))
	copy(subscribers, r.subscribers)
	r.mu.Unlock()

	conceptID := c.ConceptID
	if conceptID == "" {
		// The detection collaborator owns concept identity; without one the
		// conflict id is the only stable identifier available.
		conceptID = c.ID
	}

	reason := fmt.Sprintf("decided by community vote, total votes: %d", c.TotalVotes())
	if resolver == AdminResolver {
		reason = "manual resolution"
	}

	r.evolutions.RecordConflictResolution(ctx, conceptID, c.ID, winning, losing, resolver, reason)

	event := ResolutionEvent{
		ConceptID:      conceptID,
		ConflictID:     c.ID,
		WinningContent: winning,
		LosingContent:  losing,
		TotalVotes:     c.TotalVotes(),
		AffectedRoles:  r.affectedRoles(c.ID),
	}
	for _, fn := range subscribers {
		fn(event)
	}

	r.logger.Info("resolution recorded",
		zap.String("conflict_id", c.ID),
		zap.String("concept_id", conceptID),
		zap.String("resolver", resolver))
}

// affectedRoles collects the distinct roles that voted on the conflict.
func (r *RecorderService) affectedRoles(conflictID string) []domain.VoterRole {
	seen := make(map[domain.VoterRole]bool)
	var roles []domain.VoterRole
	for _, v := range r.votes.VotesFor(conflictID) {
		if !seen[v.Role] {
			seen[v.Role] = true
			roles = append(roles, v.Role)
		}
	}
	return roles
}
