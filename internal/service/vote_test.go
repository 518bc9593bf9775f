package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Harshitk-cp/concord/internal/domain"
	"go.uber.org/zap"
)

func setupVoteTest(policy ResolutionPolicy) (*VoteService, *ConflictService, *mockVoteStore) {
	conflictSvc := NewConflictService(newMockConflictStore(), policy, zap.NewNop())
	voteStore := newMockVoteStore()
	voteSvc := NewVoteService(voteStore, conflictSvc, zap.NewNop())
	return voteSvc, conflictSvc, voteStore
}

func TestVoteService_Submit(t *testing.T) {
	votes, conflicts, store := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	v, err := votes.Submit(ctx, SubmitVoteInput{
		ConflictID: c.ID,
		UserID:     "user-1",
		Choice:     "A",
		Reason:     "source A is current",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v.ID == "" {
		t.Fatal("expected vote ID to be set")
	}
	if v.Role != domain.RoleAnonymous || v.Weight != 1.0 {
		t.Fatalf("expected anonymous role with weight 1.0, got %s %v", v.Role, v.Weight)
	}
	if len(store.votes) != 1 {
		t.Fatalf("expected 1 vote persisted, got %d", len(store.votes))
	}

	got, _ := conflicts.Get(c.ID)
	if got.Tally[domain.ChoiceA] != 1 || got.Status != domain.StatusVoting {
		t.Fatalf("expected tally A=1 and voting status, got %v %s", got.Tally, got.Status)
	}
}

func TestVoteService_Submit_RoleWeight(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	v, err := votes.Submit(ctx, SubmitVoteInput{
		ConflictID: c.ID,
		UserID:     "user-1",
		Choice:     "B",
		Role:       domain.RoleExpert,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v.Weight != domain.RoleExpert.DefaultWeight() {
		t.Fatalf("expected expert default weight, got %v", v.Weight)
	}
}

func TestVoteService_Submit_SameChoiceDoesNotDoubleCount(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	in := SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "A"}
	first, _ := votes.Submit(ctx, in)

	in.Reason = "still A"
	second, err := votes.Submit(ctx, in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("expected the same vote record to be updated")
	}
	if second.Reason != "still A" {
		t.Fatalf("expected reason refreshed, got %q", second.Reason)
	}

	got, _ := conflicts.Get(c.ID)
	if got.TotalVotes() != 1 || got.Tally[domain.ChoiceA] != 1 {
		t.Fatalf("expected tally unchanged at A=1, got %v", got.Tally)
	}
}

func TestVoteService_Submit_ChangeChoiceMovesTally(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "A"})
	v, err := votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "B", Reason: "changed my mind"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v.Choice != domain.ChoiceB {
		t.Fatalf("expected choice B, got %s", v.Choice)
	}

	got, _ := conflicts.Get(c.ID)
	if got.Tally[domain.ChoiceA] != 0 || got.Tally[domain.ChoiceB] != 1 {
		t.Fatalf("expected one vote moved from A to B, got %v", got.Tally)
	}
	if got.TotalVotes() != 1 {
		t.Fatalf("expected total to stay 1, got %d", got.TotalVotes())
	}
}

func TestVoteService_Submit_UnknownConflict(t *testing.T) {
	votes, _, _ := setupVoteTest(DefaultResolutionPolicy())

	_, err := votes.Submit(context.Background(), SubmitVoteInput{
		ConflictID: "conflict-missing",
		UserID:     "user-1",
		Choice:     "A",
	})
	if err != ErrConflictNotFound {
		t.Fatalf("expected ErrConflictNotFound, got %v", err)
	}
}

func TestVoteService_Submit_VotingClosed(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())
	conflicts.Resolve(ctx, c.ID, domain.ChoiceA)

	_, err := votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "B"})
	if err != ErrVotingClosed {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}

	got, _ := conflicts.Get(c.ID)
	if got.TotalVotes() != 0 {
		t.Fatalf("expected tally untouched after rejection, got %v", got.Tally)
	}
}

// racingRegistry resolves the conflict between the ledger's status check and
// its tally mutation, standing in for an administrative resolve arriving on
// another goroutine.
type racingRegistry struct {
	inner   *ConflictService
	resolve domain.Choice
}

func (r *racingRegistry) Get(id string) (*domain.Conflict, bool) {
	return r.inner.Get(id)
}

func (r *racingRegistry) ApplyVote(ctx context.Context, id string, choice domain.Choice) bool {
	r.inner.Resolve(ctx, id, r.resolve)
	return r.inner.ApplyVote(ctx, id, choice)
}

func (r *racingRegistry) ApplyVoteChange(ctx context.Context, id string, from, to domain.Choice) bool {
	r.inner.Resolve(ctx, id, r.resolve)
	return r.inner.ApplyVoteChange(ctx, id, from, to)
}

func TestVoteService_Submit_ResolveRaceRejected(t *testing.T) {
	conflicts := NewConflictService(newMockConflictStore(), DefaultResolutionPolicy(), zap.NewNop())
	registry := &racingRegistry{inner: conflicts, resolve: domain.ChoiceA}
	votes := NewVoteService(newMockVoteStore(), registry, zap.NewNop())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	_, err := votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "B"})
	if err != ErrVotingClosed {
		t.Fatalf("expected ErrVotingClosed when the conflict resolves mid-submission, got %v", err)
	}

	// The refused vote must not enter the ledger or the tally.
	if _, ok := votes.GetVote("user-1", c.ID); ok {
		t.Fatal("expected no ledger entry for the refused vote")
	}
	got, _ := conflicts.Get(c.ID)
	if got.TotalVotes() != 0 {
		t.Fatalf("expected tally untouched, got %v", got.Tally)
	}
}

func TestVoteService_Submit_InvalidChoice(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	_, err := votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "C"})
	if err != ErrInvalidChoice {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
}

func TestVoteService_Submit_MissingUserID(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	_, err := votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, Choice: "A"})
	if err != ErrUserIDMissing {
		t.Fatalf("expected ErrUserIDMissing, got %v", err)
	}
}

func TestVoteService_ResolutionHookFires(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(ResolutionPolicy{MinVotes: 3, WinRatio: 0.7})
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	var resolved *domain.Conflict
	votes.SetResolutionHook(func(c *domain.Conflict) { resolved = c })

	for i := 0; i < 3; i++ {
		votes.Submit(ctx, SubmitVoteInput{
			ConflictID: c.ID,
			UserID:     fmt.Sprintf("user-%d", i),
			Choice:     "A",
		})
	}

	if resolved == nil {
		t.Fatal("expected the resolution hook to fire")
	}
	if resolved.ID != c.ID || *resolved.ResolvedChoice != domain.ChoiceA {
		t.Fatalf("expected resolved conflict %s choice A, got %s %v", c.ID, resolved.ID, resolved.ResolvedChoice)
	}
}

func TestVoteService_GetVoteAndVotesFor(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())
	votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "A"})
	votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-2", Choice: "B"})

	v, ok := votes.GetVote("user-1", c.ID)
	if !ok || v.Choice != domain.ChoiceA {
		t.Fatalf("expected user-1's vote for A, got %v %v", v, ok)
	}

	if _, ok := votes.GetVote("user-3", c.ID); ok {
		t.Fatal("expected no vote for user-3")
	}

	all := votes.VotesFor(c.ID)
	if len(all) != 2 {
		t.Fatalf("expected 2 votes, got %d", len(all))
	}
}

func TestVoteService_TallyStats(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())
	votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "A", Role: domain.RoleExpert})
	votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-2", Choice: "A"})
	votes.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-3", Choice: "B", Role: domain.RoleContributor})

	stats := votes.TallyStats(c.ID)
	if stats.TotalVotes != 3 || stats.VotesA != 2 || stats.VotesB != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.WeightedA != 3.0 || stats.WeightedB != 1.5 {
		t.Fatalf("unexpected weighted sums: %+v", stats)
	}
	if stats.RatioA < 0.66 || stats.RatioA > 0.67 {
		t.Fatalf("unexpected ratio A: %v", stats.RatioA)
	}
}

func TestVoteService_TallyStats_Empty(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(DefaultResolutionPolicy())

	c := conflicts.Create(context.Background(), sampleConflictInput())

	stats := votes.TallyStats(c.ID)
	if stats.TotalVotes != 0 || stats.RatioA != 0 || stats.RatioB != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestVoteService_Load(t *testing.T) {
	conflictStore := newMockConflictStore()
	conflicts := NewConflictService(conflictStore, DefaultResolutionPolicy(), zap.NewNop())
	voteStore := newMockVoteStore()
	first := NewVoteService(voteStore, conflicts, zap.NewNop())
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())
	first.Submit(ctx, SubmitVoteInput{ConflictID: c.ID, UserID: "user-1", Choice: "A"})

	second := NewVoteService(voteStore, conflicts, zap.NewNop())
	if err := second.Load(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	v, ok := second.GetVote("user-1", c.ID)
	if !ok || v.Choice != domain.ChoiceA {
		t.Fatal("expected vote to survive reload")
	}
}

func TestVoteService_ConcurrentSubmissions(t *testing.T) {
	votes, conflicts, _ := setupVoteTest(ResolutionPolicy{MinVotes: 1000, WinRatio: 0.99})
	ctx := context.Background()

	c := conflicts.Create(ctx, sampleConflictInput())

	const voters = 50
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			choice := "A"
			if n%2 == 0 {
				choice = "B"
			}
			votes.Submit(ctx, SubmitVoteInput{
				ConflictID: c.ID,
				UserID:     fmt.Sprintf("user-%d", n),
				Choice:     choice,
			})
		}(i)
	}
	wg.Wait()

	got, _ := conflicts.Get(c.ID)
	if got.TotalVotes() != voters {
		t.Fatalf("expected tally to equal voter count %d, got %d", voters, got.TotalVotes())
	}
	if len(votes.VotesFor(c.ID)) != voters {
		t.Fatalf("expected %d ledger entries, got %d", voters, len(votes.VotesFor(c.ID)))
	}

	stats := votes.Statistics()
	if stats.TotalVotes != voters || stats.UniqueUsers != voters || stats.UniqueConflicts != 1 {
		t.Fatalf("unexpected ledger stats: %+v", stats)
	}
}
