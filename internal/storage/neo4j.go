package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/core/model"
	"github.com/agenthands/eventgraph/internal/driver"
	"github.com/agenthands/eventgraph/internal/errs"
	"github.com/agenthands/eventgraph/internal/logging"
)

// Neo4jStore persists events, relations and patterns as a property graph.
type Neo4jStore struct {
	driver driver.GraphDriver
	log    *zap.Logger
}

func NewNeo4jStore(d driver.GraphDriver, logger *zap.Logger) *Neo4jStore {
	return &Neo4jStore{driver: d, log: logging.OrNop(logger)}
}

func (s *Neo4jStore) exec(ctx context.Context, op, query string, params map[string]any) (neo4j.EagerResult, error) {
	res, err := s.driver.ExecuteQuery(ctx, query, params)
	if err != nil {
		return res, errs.Storage(op, err)
	}
	return res, nil
}

func (s *Neo4jStore) StoreEvent(ctx context.Context, e *model.Event) error {
	return s.StoreEventsBatch(ctx, []model.Event{*e})
}

func (s *Neo4jStore) StoreEventsBatch(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(events))
	for i := range events {
		p, err := eventParams(&events[i])
		if err != nil {
			return errs.New(errs.KindInvalidArgument, "storage.store_events", err.Error(), err)
		}
		rows = append(rows, p)
	}
	_, err := s.exec(ctx, "storage.store_events", driver.SaveEventsQuery, map[string]any{"events": rows})
	return err
}

func (s *Neo4jStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	res, err := s.exec(ctx, "storage.get_event", driver.GetEventQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	return eventFromRecord(res.Records[0], "e")
}

func (s *Neo4jStore) GetEventsBatch(ctx context.Context, ids []string) ([]model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := s.exec(ctx, "storage.get_events", driver.GetEventsQuery, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Event, len(res.Records))
	for _, rec := range res.Records {
		e, err := eventFromRecord(rec, "e")
		if err != nil {
			return nil, err
		}
		byID[e.ID] = *e
	}
	// preserve request order, skip unknown ids
	out := make([]model.Event, 0, len(byID))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Neo4jStore) QueryEvents(ctx context.Context, q model.EventQuery) ([]model.Event, error) {
	query, params := buildEventQuery(q)
	res, err := s.exec(ctx, "storage.query_events", query, params)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(res.Records))
	for _, rec := range res.Records {
		e, err := eventFromRecord(rec, "e")
		if err != nil {
			s.log.Warn("skipping undecodable event", zap.Error(err))
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

// buildEventQuery renders q as a Cypher MATCH with one WHERE clause per filter.
func buildEventQuery(q model.EventQuery) (string, map[string]any) {
	var where []string
	params := map[string]any{}

	if q.Type != nil {
		where = append(where, "e.event_type = $event_type")
		params["event_type"] = q.Type.String()
	}
	if q.Start != nil {
		where = append(where, "e.timestamp >= $start")
		params["start"] = *q.Start
	}
	if q.End != nil {
		where = append(where, "e.timestamp <= $end")
		params["end"] = *q.End
	}
	if q.Location != "" {
		where = append(where, "e.location = $location")
		params["location"] = q.Location
	}
	if len(q.Participants) > 0 {
		where = append(where, "ALL(name IN $participants WHERE EXISTS { MATCH (e)-[:HAS_PARTICIPANT]->(:Entity {name: name}) })")
		params["participants"] = q.Participants
	}

	keys := make([]string, 0, len(q.Properties))
	for k := range q.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		kp, vp := fmt.Sprintf("pk%d", i), fmt.Sprintf("pv%d", i)
		where = append(where, fmt.Sprintf("e[$%s] = $%s", kp, vp))
		params[kp] = propertyPrefix + k
		params[vp] = q.Properties[k]
	}

	var b strings.Builder
	b.WriteString("MATCH (e:Event)")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" RETURN e ORDER BY e.timestamp, e.id")
	if q.Limit > 0 {
		b.WriteString(" LIMIT $limit")
		params["limit"] = int64(q.Limit)
	}
	return b.String(), params
}

func (s *Neo4jStore) UpdateEvent(ctx context.Context, e *model.Event) error {
	existing, err := s.GetEvent(ctx, e.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.NotFound("storage.update_event", "event", e.ID)
	}
	return s.StoreEvent(ctx, e)
}

func (s *Neo4jStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, "storage.delete_event", driver.DeleteEventQuery, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return countOf(res, "deleted") > 0, nil
}

func (s *Neo4jStore) QueryEventRelations(ctx context.Context, eventIDs []string, limit int) ([]model.EventRelation, error) {
	if eventIDs == nil {
		eventIDs = []string{}
	}
	if limit <= 0 {
		limit = 1 << 30
	}
	res, err := s.exec(ctx, "storage.query_event_relations", driver.QueryEventRelationsQuery,
		map[string]any{"ids": eventIDs, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	out := make([]model.EventRelation, 0, len(res.Records))
	for _, rec := range res.Records {
		raw, _ := rec.Get("r")
		rel, ok := raw.(neo4j.Relationship)
		if !ok {
			continue
		}
		src, _ := rec.Get("source_id")
		dst, _ := rec.Get("target_id")
		r, err := decodeRelation(rel.Props, str(src), str(dst))
		if err != nil {
			s.log.Warn("skipping undecodable relation", zap.Error(err))
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *Neo4jStore) CreateEventRelation(ctx context.Context, r *model.EventRelation) error {
	params, err := relationParams(r)
	if err != nil {
		return errs.New(errs.KindInvalidArgument, "storage.create_event_relation", err.Error(), err)
	}
	res, err := s.exec(ctx, "storage.create_event_relation", driver.CreateEventRelationQuery, params)
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return errs.NotFound("storage.create_event_relation", "event", r.SourceEventID+" or "+r.TargetEventID)
	}
	return nil
}

func (s *Neo4jStore) StoreEventPattern(ctx context.Context, p *model.EventPattern) error {
	return s.StorePatternsBatch(ctx, []model.EventPattern{*p})
}

func (s *Neo4jStore) StorePatternsBatch(ctx context.Context, patterns []model.EventPattern) error {
	if len(patterns) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(patterns))
	for i := range patterns {
		p, err := patternProps(&patterns[i])
		if err != nil {
			return errs.New(errs.KindInvalidArgument, "storage.store_patterns", err.Error(), err)
		}
		rows = append(rows, p)
	}
	_, err := s.exec(ctx, "storage.store_patterns", driver.SavePatternsQuery, map[string]any{"patterns": rows})
	return err
}

func (s *Neo4jStore) GetEventPattern(ctx context.Context, id string) (*model.EventPattern, error) {
	res, err := s.exec(ctx, "storage.get_pattern", driver.GetPatternQuery, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	return patternFromRecord(res.Records[0], "p")
}

func (s *Neo4jStore) QueryEventPatterns(ctx context.Context, q model.PatternQuery) ([]model.EventPattern, error) {
	query, params := buildPatternQuery(q)
	res, err := s.exec(ctx, "storage.query_patterns", query, params)
	if err != nil {
		return nil, err
	}
	out := make([]model.EventPattern, 0, len(res.Records))
	for _, rec := range res.Records {
		p, err := patternFromRecord(rec, "p")
		if err != nil {
			s.log.Warn("skipping undecodable pattern", zap.Error(err))
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func buildPatternQuery(q model.PatternQuery) (string, map[string]any) {
	var where []string
	params := map[string]any{}

	if q.Type != nil {
		where = append(where, "p.pattern_type = $pattern_type")
		params["pattern_type"] = q.Type.String()
	}
	if q.Complexity != nil {
		where = append(where, "p.complexity = $complexity")
		params["complexity"] = int64(*q.Complexity)
	}
	if q.Domain != "" {
		where = append(where, "p.domain = $domain")
		params["domain"] = q.Domain
	}
	if q.MinSupport > 0 {
		where = append(where, "p.support >= $min_support")
		params["min_support"] = q.MinSupport
	}
	if q.MinConfidence > 0 {
		where = append(where, "p.confidence >= $min_confidence")
		params["min_confidence"] = q.MinConfidence
	}
	if len(q.EventTypes) > 0 {
		types := make([]string, len(q.EventTypes))
		for i, t := range q.EventTypes {
			types[i] = t.String()
		}
		where = append(where, "ALL(t IN $event_types WHERE t IN p.event_sequence)")
		params["event_types"] = types
	}

	var b strings.Builder
	b.WriteString("MATCH (p:EventPattern)")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" RETURN p ORDER BY p.support DESC, p.id")
	if q.Limit > 0 {
		b.WriteString(" LIMIT $limit")
		params["limit"] = int64(q.Limit)
	}
	return b.String(), params
}

func (s *Neo4jStore) DeletePattern(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, "storage.delete_pattern", driver.DeletePatternQuery, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return countOf(res, "deleted") > 0, nil
}

func (s *Neo4jStore) UpdatePattern(ctx context.Context, p *model.EventPattern) error {
	existing, err := s.GetEventPattern(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.NotFound("storage.update_pattern", "pattern", p.ID)
	}
	return s.StoreEventPattern(ctx, p)
}

func (s *Neo4jStore) GetDatabaseStatistics(ctx context.Context) (*DatabaseStatistics, error) {
	res, err := s.exec(ctx, "storage.statistics", driver.DatabaseCountsQuery, nil)
	if err != nil {
		return nil, err
	}
	stats := &DatabaseStatistics{
		TotalEvents:    int(countOf(res, "events")),
		TotalEntities:  int(countOf(res, "entities")),
		TotalRelations: int(countOf(res, "relations")),
		TotalPatterns:  int(countOf(res, "patterns")),
		EventTypes:     map[string]int{},
	}

	dist, err := s.exec(ctx, "storage.statistics", driver.EventTypeDistributionQuery, nil)
	if err != nil {
		return nil, err
	}
	for _, rec := range dist.Records {
		t, _ := rec.Get("event_type")
		n, _ := rec.Get("count")
		stats.EventTypes[str(t)] = int(integer(n))
	}
	return stats, nil
}

// Ping checks that the database is reachable.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return errs.Storage("storage.ping", err)
	}
	return nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func eventFromRecord(rec *neo4j.Record, key string) (*model.Event, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no %q column", key)
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("column %q is %T, not a node", key, raw)
	}
	return decodeEvent(node.Props)
}

func patternFromRecord(rec *neo4j.Record, key string) (*model.EventPattern, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no %q column", key)
	}
	node, ok := raw.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("column %q is %T, not a node", key, raw)
	}
	return decodePattern(node.Props)
}

func countOf(res neo4j.EagerResult, key string) int64 {
	if len(res.Records) == 0 {
		return 0
	}
	v, _ := res.Records[0].Get(key)
	return integer(v)
}
