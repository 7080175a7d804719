// Package driver wraps the Neo4j connection the graph store runs its Cypher
// through.
package driver

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphDriver executes Cypher eagerly. Implementations must be safe for
// concurrent use.
type GraphDriver interface {
	ExecuteQuery(ctx context.Context, query string, params map[string]any) (neo4j.EagerResult, error)
	// BuildIndices creates the constraints and indexes of the event and
	// pattern layers.
	BuildIndices(ctx context.Context) error
	// VerifyConnectivity reports whether the database is reachable.
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}
