package domain

import (
	"time"
)

type EvolutionType string

const (
	EvolutionCreated  EvolutionType = "created"
	EvolutionUpdated  EvolutionType = "updated"
	EvolutionResolved EvolutionType = "resolved"
)

func ValidEvolutionType(t string) bool {
	switch EvolutionType(t) {
	case EvolutionCreated, EvolutionUpdated, EvolutionResolved:
		return true
	}
	return false
}

// Changes captures the before/after snapshot attached to update and
// resolution records. ConflictID is set only for resolution records.
type Changes struct {
	Before     string `json:"before"`
	After      string `json:"after"`
	ConflictID string `json:"conflict_id,omitempty"`
}

// EvolutionRecord is one versioned snapshot of a concept's accepted
// definition. Records are append-only; the highest version is current.
type EvolutionRecord struct {
	ID          string        `json:"id"`
	ConceptID   string        `json:"concept_id"`
	Version     int           `json:"version"`
	Type        EvolutionType `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Content     string        `json:"content"`
	Changes     *Changes      `json:"changes,omitempty"`
	Author      string        `json:"author"`
	Timestamp   time.Time     `json:"timestamp"`
	Reason      string        `json:"reason,omitempty"`
	Confidence  float64       `json:"confidence"`

	RelatedConflictID string `json:"related_conflict_id,omitempty"`
}

func (e *EvolutionRecord) Clone() *EvolutionRecord {
	cp := *e
	if e.Changes != nil {
		ch := *e.Changes
		cp.Changes = &ch
	}
	return &cp
}
