package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/logging"
)

type Neo4jDriver struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *zap.Logger
}

func NewNeo4jDriver(ctx context.Context, uri, username, password, database string, logger *zap.Logger) (*Neo4jDriver, error) {
	logger = logging.OrNop(logger)

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	logger.Info("connected to graph store", zap.String("uri", uri), zap.String("database", database))
	return &Neo4jDriver{Driver: driver, Database: database, log: logger}, nil
}

func (d *Neo4jDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	return d.Driver.VerifyConnectivity(ctx)
}

func (d *Neo4jDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.Database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.Database))
	}
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

// BuildIndices creates the uniqueness constraints and lookup indexes used by
// the event and pattern layers. Existing schema objects are left untouched.
func (d *Neo4jDriver) BuildIndices(ctx context.Context) error {
	for _, q := range SchemaQueries {
		if _, err := d.ExecuteQuery(ctx, q, nil); err != nil {
			// Continue, the constraint may exist under another name
			d.log.Warn("failed to create schema object", zap.String("query", q), zap.Error(err))
		}
	}
	return nil
}
