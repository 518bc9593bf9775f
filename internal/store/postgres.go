package store

import (
	"context"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres-backed stores, selected with STORAGE_BACKEND=postgres. Each Put is
// an upsert keyed the same way the in-memory tables are keyed, so replayed
// write-throughs are idempotent.

type PGConflictStore struct {
	db *pgxpool.Pool
}

func NewPGConflictStore(db *pgxpool.Pool) *PGConflictStore {
	return &PGConflictStore{db: db}
}

func (s *PGConflictStore) Put(ctx context.Context, c *domain.Conflict) error {
	var resolvedChoice *string
	if c.ResolvedChoice != nil {
		rc := string(*c.ResolvedChoice)
		resolvedChoice = &rc
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO conflicts (id, question, concept_a, concept_b, source_a, source_b, concept_id,
		                        status, votes_a, votes_b, resolved_choice, resolved_at,
		                        created_at, updated_at, confidence_score, type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status,
		     votes_a = EXCLUDED.votes_a,
		     votes_b = EXCLUDED.votes_b,
		     resolved_choice = EXCLUDED.resolved_choice,
		     resolved_at = EXCLUDED.resolved_at,
		     updated_at = EXCLUDED.updated_at`,
		c.ID, c.Question, c.ConceptA, c.ConceptB, c.SourceA, c.SourceB, c.ConceptID,
		c.Status, c.Tally[domain.ChoiceA], c.Tally[domain.ChoiceB], resolvedChoice, c.ResolvedAt,
		c.CreatedAt, c.UpdatedAt, c.ConfidenceScore, c.Type,
	)
	return err
}

func (s *PGConflictStore) List(ctx context.Context) ([]*domain.Conflict, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, question, concept_a, concept_b, source_a, source_b, concept_id,
		        status, votes_a, votes_b, resolved_choice, resolved_at,
		        created_at, updated_at, confidence_score, type
		 FROM conflicts`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*domain.Conflict
	for rows.Next() {
		c := &domain.Conflict{Tally: map[domain.Choice]int{}}
		var votesA, votesB int
		var resolvedChoice *string
		var resolvedAt *time.Time
		if err := rows.Scan(&c.ID, &c.Question, &c.ConceptA, &c.ConceptB, &c.SourceA, &c.SourceB, &c.ConceptID,
			&c.Status, &votesA, &votesB, &resolvedChoice, &resolvedAt,
			&c.CreatedAt, &c.UpdatedAt, &c.ConfidenceScore, &c.Type); err != nil {
			return nil, err
		}
		c.Tally[domain.ChoiceA] = votesA
		c.Tally[domain.ChoiceB] = votesB
		if resolvedChoice != nil {
			rc := domain.Choice(*resolvedChoice)
			c.ResolvedChoice = &rc
		}
		c.ResolvedAt = resolvedAt
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

type PGVoteStore struct {
	db *pgxpool.Pool
}

func NewPGVoteStore(db *pgxpool.Pool) *PGVoteStore {
	return &PGVoteStore{db: db}
}

func (s *PGVoteStore) Put(ctx context.Context, v *domain.Vote) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO votes (id, conflict_id, user_id, choice, reason, voted_at, role, weight, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, conflict_id) DO UPDATE
		 SET choice = EXCLUDED.choice,
		     reason = EXCLUDED.reason,
		     voted_at = EXCLUDED.voted_at`,
		v.ID, v.ConflictID, v.UserID, v.Choice, v.Reason, v.VotedAt, v.Role, v.Weight, v.IPAddress,
	)
	return err
}

func (s *PGVoteStore) List(ctx context.Context) ([]*domain.Vote, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conflict_id, user_id, choice, reason, voted_at, role, weight, ip_address
		 FROM votes`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []*domain.Vote
	for rows.Next() {
		v := &domain.Vote{}
		if err := rows.Scan(&v.ID, &v.ConflictID, &v.UserID, &v.Choice, &v.Reason, &v.VotedAt, &v.Role, &v.Weight, &v.IPAddress); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

type PGEvolutionStore struct {
	db *pgxpool.Pool
}

func NewPGEvolutionStore(db *pgxpool.Pool) *PGEvolutionStore {
	return &PGEvolutionStore{db: db}
}

func (s *PGEvolutionStore) Put(ctx context.Context, e *domain.EvolutionRecord) error {
	var before, after, changesConflict *string
	if e.Changes != nil {
		before = &e.Changes.Before
		after = &e.Changes.After
		if e.Changes.ConflictID != "" {
			changesConflict = &e.Changes.ConflictID
		}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO evolutions (id, concept_id, version, type, title, description, content,
		                         change_before, change_after, change_conflict_id,
		                         author, recorded_at, reason, confidence, related_conflict_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ConceptID, e.Version, e.Type, e.Title, e.Description, e.Content,
		before, after, changesConflict,
		e.Author, e.Timestamp, e.Reason, e.Confidence, nullable(e.RelatedConflictID),
	)
	return err
}

func (s *PGEvolutionStore) List(ctx context.Context) ([]*domain.EvolutionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, concept_id, version, type, title, description, content,
		        change_before, change_after, change_conflict_id,
		        author, recorded_at, reason, confidence, related_conflict_id
		 FROM evolutions ORDER BY concept_id, version`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.EvolutionRecord
	for rows.Next() {
		e := &domain.EvolutionRecord{}
		var before, after, changesConflict, related *string
		if err := rows.Scan(&e.ID, &e.ConceptID, &e.Version, &e.Type, &e.Title, &e.Description, &e.Content,
			&before, &after, &changesConflict,
			&e.Author, &e.Timestamp, &e.Reason, &e.Confidence, &related); err != nil {
			return nil, err
		}
		if before != nil || after != nil {
			e.Changes = &domain.Changes{}
			if before != nil {
				e.Changes.Before = *before
			}
			if after != nil {
				e.Changes.After = *after
			}
			if changesConflict != nil {
				e.Changes.ConflictID = *changesConflict
			}
		}
		if related != nil {
			e.RelatedConflictID = *related
		}
		records = append(records, e)
	}
	return records, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// EnsureSchema creates the three collection tables if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conflicts (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			concept_a TEXT NOT NULL,
			concept_b TEXT NOT NULL,
			source_a TEXT NOT NULL DEFAULT '',
			source_b TEXT NOT NULL DEFAULT '',
			concept_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			votes_a INT NOT NULL DEFAULT 0,
			votes_b INT NOT NULL DEFAULT 0,
			resolved_choice TEXT,
			resolved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0.8,
			type TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS votes (
			id TEXT NOT NULL,
			conflict_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			choice TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			voted_at TIMESTAMPTZ NOT NULL,
			role TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			ip_address TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, conflict_id)
		);

		CREATE TABLE IF NOT EXISTS evolutions (
			id TEXT PRIMARY KEY,
			concept_id TEXT NOT NULL,
			version INT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			change_before TEXT,
			change_after TEXT,
			change_conflict_id TEXT,
			author TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL,
			related_conflict_id TEXT,
			UNIQUE (concept_id, version)
		);
	`)
	return err
}
