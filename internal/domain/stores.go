package domain

import (
	"context"
)

// Stores persist one JSON-shaped document per record. The in-memory service
// state is authoritative for the process lifetime; Put is a synchronous
// write-through and List is the startup reload path. Records are never
// deleted, so the interfaces carry no delete operation.

type ConflictStore interface {
	Put(ctx context.Context, c *Conflict) error
	List(ctx context.Context) ([]*Conflict, error)
}

type VoteStore interface {
	Put(ctx context.Context, v *Vote) error
	List(ctx context.Context) ([]*Vote, error)
}

type EvolutionStore interface {
	Put(ctx context.Context, e *EvolutionRecord) error
	List(ctx context.Context) ([]*EvolutionRecord, error)
}
