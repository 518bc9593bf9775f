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
	// CreationConfidence is assigned to a concept's first recorded version.
	CreationConfidence = 1.0
	// UpdateConfidence is assigned to feedback-driven updates.
	UpdateConfidence = 0.9
	// ResolutionConfidence is assigned to versions decided by community vote.
	ResolutionConfidence = 0.95
)

// EvolutionStats is the log-wide summary read by dashboards.
type EvolutionStats struct {
	TotalConcepts             int                          `json:"total_concepts"`
	TotalEvolutions           int                          `json:"total_evolutions"`
	TypeCounts                map[domain.EvolutionType]int `json:"type_counts"`
	AverageVersionsPerConcept float64                      `json:"average_versions_per_concept"`
}

type conceptHistory struct {
	mu      sync.Mutex
	records []*domain.EvolutionRecord // ascending by version
}

// EvolutionService is the append-only, versioned history per concept.
// Version assignment is serialized per concept so concurrent appends can
// never produce duplicate version numbers.
type EvolutionService struct {
	store  domain.EvolutionStore
	logger *zap.Logger

	mu        sync.RWMutex
	histories map[string]*conceptHistory
}

func NewEvolutionService(es domain.EvolutionStore, logger *zap.Logger) *EvolutionService {
	return &EvolutionService{
		store:     es,
		logger:    logger,
		histories: make(map[string]*conceptHistory),
	}
}

// Load replays persisted evolution records. Called once at startup.
func (s *EvolutionService) Load(ctx context.Context) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range records {
		h := s.histories[e.ConceptID]
		if h == nil {
			h = &conceptHistory{}
			s.histories[e.ConceptID] = h
		}
		h.records = append(h.records, e)
	}
	total := 0
	for _, h := range s.histories {
		sort.Slice(h.records, func(i, j int) bool {
			return h.records[i].Version < h.records[j].Version
		})
		total += len(h.records)
	}
	s.logger.Info("evolution history loaded",
		zap.Int("concepts", len(s.histories)),
		zap.Int("records", total))
	return nil
}

func (s *EvolutionService) history(conceptID string) *conceptHistory {
	s.mu.RLock()
	h, ok := s.histories[conceptID]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.histories[conceptID]; !ok {
		h = &conceptHistory{}
		s.histories[conceptID] = h
	}
	return h
}

// RecordCreation seeds a concept's history at version 1. If history already
// exists the record is still appended contiguously so versions stay gapless.
func (s *EvolutionService) RecordCreation(ctx context.Context, conceptID, content, author string) *domain.EvolutionRecord {
	h := s.history(conceptID)
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) > 0 {
		s.logger.Warn("creation recorded for concept with existing history",
			zap.String("concept_id", conceptID),
			zap.Int("existing_versions", len(h.records)))
	}

	e := &domain.EvolutionRecord{
		ID:          uuid.NewString(),
		ConceptID:   conceptID,
		Version:     len(h.records) + 1,
		Type:        domain.EvolutionCreated,
		Title:       "Concept created",
		Description: "Initial concept definition",
		Content:     content,
		Author:      author,
		Timestamp:   time.Now().UTC(),
		Reason:      "initial creation",
		Confidence:  CreationConfidence,
	}
	s.appendLocked(ctx, h, e)

	s.logger.Info("concept creation recorded", zap.String("concept_id", conceptID))
	return e.Clone()
}

// RecordUpdate appends the next version with a before/after snapshot. With
// no prior history it behaves like creation with an empty before.
func (s *EvolutionService) RecordUpdate(ctx context.Context, conceptID, newContent, author, reason string) *domain.EvolutionRecord {
	h := s.history(conceptID)
	h.mu.Lock()
	defer h.mu.Unlock()

	before := ""
	if len(h.records) > 0 {
		before = h.records[len(h.records)-1].Content
	}

	e := &domain.EvolutionRecord{
		ID:          uuid.NewString(),
		ConceptID:   conceptID,
		Version:     len(h.records) + 1,
		Type:        domain.EvolutionUpdated,
		Title:       "Concept updated",
		Description: "Definition refined from user feedback",
		Content:     newContent,
		Changes:     &domain.Changes{Before: before, After: newContent},
		Author:      author,
		Timestamp:   time.Now().UTC(),
		Reason:      reason,
		Confidence:  UpdateConfidence,
	}
	s.appendLocked(ctx, h, e)

	s.logger.Info("concept update recorded",
		zap.String("concept_id", conceptID),
		zap.Int("version", e.Version))
	return e.Clone()
}

// RecordConflictResolution appends the version produced by a resolved
// conflict, linking back to the conflict id.
func (s *EvolutionService) RecordConflictResolution(ctx context.Context, conceptID, conflictID, winningContent, losingContent, resolver, reason string) *domain.EvolutionRecord {
	h := s.history(conceptID)
	h.mu.Lock()
	defer h.mu.Unlock()

	e := &domain.EvolutionRecord{
		ID:          uuid.NewString(),
		ConceptID:   conceptID,
		Version:     len(h.records) + 1,
		Type:        domain.EvolutionResolved,
		Title:       "Conflict resolved",
		Description: "Final version decided by community vote",
		Content:     winningContent,
		Changes: &domain.Changes{
			Before:     losingContent,
			After:      winningContent,
			ConflictID: conflictID,
		},
		Author:            resolver,
		Timestamp:         time.Now().UTC(),
		Reason:            reason,
		Confidence:        ResolutionConfidence,
		RelatedConflictID: conflictID,
	}
	s.appendLocked(ctx, h, e)

	s.logger.Info("conflict resolution recorded",
		zap.String("concept_id", conceptID),
		zap.String("conflict_id", conflictID),
		zap.Int("version", e.Version))
	return e.Clone()
}

// appendLocked appends and writes through. Caller holds the history lock,
// which makes "read current length, append length+1" atomic.
func (s *EvolutionService) appendLocked(ctx context.Context, h *conceptHistory, e *domain.EvolutionRecord) {
	h.records = append(h.records, e)
	if err := s.store.Put(ctx, e); err != nil {
		s.logger.Error("failed to persist evolution record",
			zap.String("record_id", e.ID),
			zap.String("concept_id", e.ConceptID),
			zap.Error(err))
	}
}

// History returns the concept's records ascending by version; empty for an
// unknown concept.
func (s *EvolutionService) History(conceptID string) []*domain.EvolutionRecord {
	s.mu.RLock()
	h, ok := s.histories[conceptID]
	s.mu.RUnlock()
	if !ok {
		return []*domain.EvolutionRecord{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*domain.EvolutionRecord, 0, len(h.records))
	for _, e := range h.records {
		out = append(out, e.Clone())
	}
	return out
}

// Latest returns the current accepted version of a concept.
func (s *EvolutionService) Latest(conceptID string) (*domain.EvolutionRecord, bool) {
	s.mu.RLock()
	h, ok := s.histories[conceptID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		return nil, false
	}
	return h.records[len(h.records)-1].Clone(), true
}

// Version returns one specific version of a concept.
func (s *EvolutionService) Version(conceptID string, version int) (*domain.EvolutionRecord, bool) {
	s.mu.RLock()
	h, ok := s.histories[conceptID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.records {
		if e.Version == version {
			return e.Clone(), true
		}
	}
	return nil, false
}

func (s *EvolutionService) Statistics() EvolutionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := EvolutionStats{
		TypeCounts: make(map[domain.EvolutionType]int),
	}
	for _, h := range s.histories {
		h.mu.Lock()
		if len(h.records) > 0 {
			stats.TotalConcepts++
		}
		stats.TotalEvolutions += len(h.records)
		for _, e := range h.records {
			stats.TypeCounts[e.Type]++
		}
		h.mu.Unlock()
	}
	if stats.TotalConcepts > 0 {
		stats.AverageVersionsPerConcept = float64(stats.TotalEvolutions) / float64(stats.TotalConcepts)
	}
	return stats
}
