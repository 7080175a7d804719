package storage

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// MockDriver records every query and answers from ResultQueue, falling back
// to MockResult once the queue is drained.
type MockDriver struct {
	Queries     []string
	Params      []map[string]interface{}
	MockResult  neo4j.EagerResult
	ResultQueue []neo4j.EagerResult
	Err         error
	Closed      bool
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Queries = append(m.Queries, query)
	m.Params = append(m.Params, params)
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	if len(m.ResultQueue) > 0 {
		res := m.ResultQueue[0]
		m.ResultQueue = m.ResultQueue[1:]
		return res, nil
	}
	return m.MockResult, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	return nil
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Err
}

func (m *MockDriver) Close(ctx context.Context) error {
	m.Closed = true
	return nil
}

func (m *MockDriver) LastQuery() string {
	if len(m.Queries) == 0 {
		return ""
	}
	return m.Queries[len(m.Queries)-1]
}

func (m *MockDriver) LastParams() map[string]interface{} {
	if len(m.Params) == 0 {
		return nil
	}
	return m.Params[len(m.Params)-1]
}

func nodeResult(key string, props ...map[string]any) neo4j.EagerResult {
	res := neo4j.EagerResult{Keys: []string{key}}
	for _, p := range props {
		res.Records = append(res.Records, &neo4j.Record{
			Keys:   []string{key},
			Values: []any{neo4j.Node{Labels: []string{"Event"}, Props: p}},
		})
	}
	return res
}

func countResult(keys []string, values ...any) neo4j.EagerResult {
	return neo4j.EagerResult{
		Keys:    keys,
		Records: []*neo4j.Record{{Keys: keys, Values: values}},
	}
}
