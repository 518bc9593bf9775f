package domain

import (
	"time"
)

type ConflictStatus string

const (
	StatusPending  ConflictStatus = "pending"
	StatusVoting   ConflictStatus = "voting"
	StatusResolved ConflictStatus = "resolved"
)

func ValidConflictStatus(s string) bool {
	switch ConflictStatus(s) {
	case StatusPending, StatusVoting, StatusResolved:
		return true
	}
	return false
}

// Rank orders statuses along the lifecycle. Transitions never decrease rank.
func (s ConflictStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusVoting:
		return 1
	case StatusResolved:
		return 2
	}
	return -1
}

// Choice identifies one of the two competing definitions in a conflict.
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
)

// ParseChoice validates a raw choice token at the API boundary.
func ParseChoice(s string) (Choice, bool) {
	switch Choice(s) {
	case ChoiceA, ChoiceB:
		return Choice(s), true
	}
	return "", false
}

// Other returns the opposing choice.
func (c Choice) Other() Choice {
	if c == ChoiceA {
		return ChoiceB
	}
	return ChoiceA
}

type ConflictType string

const (
	ConflictDefinitionMismatch ConflictType = "definition_mismatch"
	ConflictOutdatedInfo       ConflictType = "outdated_info"
	ConflictContradictory      ConflictType = "contradictory"
	ConflictIncomplete         ConflictType = "incomplete"
)

func ValidConflictType(t string) bool {
	switch ConflictType(t) {
	case ConflictDefinitionMismatch, ConflictOutdatedInfo, ConflictContradictory, ConflictIncomplete:
		return true
	}
	return false
}

// Conflict is a disputed pair of candidate definitions for the same concept,
// tracked through the pending -> voting -> resolved lifecycle.
type Conflict struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	ConceptA  string `json:"concept_a"`
	ConceptB  string `json:"concept_b"`
	SourceA   string `json:"source_a"`
	SourceB   string `json:"source_b"`
	ConceptID string `json:"concept_id,omitempty"`

	Status ConflictStatus `json:"status"`
	Tally  map[Choice]int `json:"tally"`

	ResolvedChoice *Choice    `json:"resolved_choice,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	ConfidenceScore float64      `json:"confidence_score"`
	Type            ConflictType `json:"type"`
}

// TotalVotes is the sum of both tally counters, which equals the number of
// distinct users holding a current vote on this conflict.
func (c *Conflict) TotalVotes() int {
	return c.Tally[ChoiceA] + c.Tally[ChoiceB]
}

// WinningContent returns the accepted and rejected definition texts once the
// conflict is resolved. The second return is false while still open.
func (c *Conflict) WinningContent() (winning, losing string, ok bool) {
	if c.ResolvedChoice == nil {
		return "", "", false
	}
	if *c.ResolvedChoice == ChoiceA {
		return c.ConceptA, c.ConceptB, true
	}
	return c.ConceptB, c.ConceptA, true
}

// Clone returns a deep copy safe to hand to callers while the original keeps
// mutating under its entry lock.
func (c *Conflict) Clone() *Conflict {
	cp := *c
	cp.Tally = map[Choice]int{
		ChoiceA: c.Tally[ChoiceA],
		ChoiceB: c.Tally[ChoiceB],
	}
	if c.ResolvedChoice != nil {
		rc := *c.ResolvedChoice
		cp.ResolvedChoice = &rc
	}
	if c.ResolvedAt != nil {
		ra := *c.ResolvedAt
		cp.ResolvedAt = &ra
	}
	return &cp
}
