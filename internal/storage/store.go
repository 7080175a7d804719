// Package storage holds the system-of-record contracts shared by the event,
// pattern and mapping layers, plus the Neo4j, in-memory and SQLite backends.
package storage

import (
	"context"

	"github.com/agenthands/eventgraph/internal/core/model"
)

// Store is the graph store of record. Single lookups return (nil, nil) when
// the id does not exist. Update of a missing id returns a not_found error.
type Store interface {
	StoreEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// QueryEvents returns events ordered by timestamp (untimed last), then id.
	QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id string) (bool, error)

	// QueryEventRelations returns relations touching any of eventIDs, or all
	// relations when eventIDs is empty. limit <= 0 means no limit.
	QueryEventRelations(ctx context.Context, eventIDs []string, limit int) ([]model.EventRelation, error)
	CreateEventRelation(ctx context.Context, r *model.EventRelation) error

	StoreEventPattern(ctx context.Context, p *model.EventPattern) error
	GetEventPattern(ctx context.Context, id string) (*model.EventPattern, error)
	// QueryEventPatterns returns patterns ordered by support descending, then id.
	QueryEventPatterns(ctx context.Context, q model.PatternQuery) ([]model.EventPattern, error)
	DeletePattern(ctx context.Context, id string) (bool, error)
	UpdatePattern(ctx context.Context, p *model.EventPattern) error

	GetDatabaseStatistics(ctx context.Context) (*DatabaseStatistics, error)
	Close(ctx context.Context) error
}

// BatchStore is implemented by stores with native bulk writes. Callers fall
// back to a per-item loop when the store does not implement it.
type BatchStore interface {
	StoreEventsBatch(ctx context.Context, events []model.Event) error
	GetEventsBatch(ctx context.Context, ids []string) ([]model.Event, error)
	StorePatternsBatch(ctx context.Context, patterns []model.EventPattern) error
}

type DatabaseStatistics struct {
	TotalEvents    int            `json:"total_events"`
	TotalEntities  int            `json:"total_entities"`
	TotalRelations int            `json:"total_relations"`
	TotalPatterns  int            `json:"total_patterns"`
	EventTypes     map[string]int `json:"event_type_distribution"`
}
