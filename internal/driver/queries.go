package driver

var SchemaQueries = []string{
	"CREATE CONSTRAINT event_id IF NOT EXISTS FOR (e:Event) REQUIRE e.id IS UNIQUE",
	"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE",
	"CREATE CONSTRAINT pattern_id IF NOT EXISTS FOR (p:EventPattern) REQUIRE p.id IS UNIQUE",
	"CREATE INDEX event_type IF NOT EXISTS FOR (e:Event) ON (e.event_type)",
	"CREATE INDEX event_timestamp IF NOT EXISTS FOR (e:Event) ON (e.timestamp)",
	"CREATE INDEX entity_name IF NOT EXISTS FOR (n:Entity) ON (n.name)",
	"CREATE INDEX entity_type IF NOT EXISTS FOR (n:Entity) ON (n.entity_type)",
	"CREATE INDEX pattern_type IF NOT EXISTS FOR (p:EventPattern) ON (p.pattern_type)",
}

const (
	// SaveEventsQuery replaces the properties of each event node and
	// re-links its participants. $events is a list of {props, entities}.
	SaveEventsQuery = `
		UNWIND $events AS ev
		MERGE (e:Event {id: ev.props.id})
		SET e = ev.props
		WITH e, ev
		OPTIONAL MATCH (e)-[r:HAS_SUBJECT|HAS_OBJECT|HAS_PARTICIPANT]->(:Entity)
		DELETE r
		WITH DISTINCT e, ev
		UNWIND ev.entities AS ent
		MERGE (n:Entity {id: ent.id})
		SET n.name = ent.name,
			n.entity_type = ent.entity_type,
			n.aliases = ent.aliases,
			n.confidence = ent.confidence,
			n.properties_json = ent.properties_json
		MERGE (e)-[:HAS_PARTICIPANT]->(n)
		FOREACH (_ IN CASE WHEN 'subject' IN ent.roles THEN [1] ELSE [] END | MERGE (e)-[:HAS_SUBJECT]->(n))
		FOREACH (_ IN CASE WHEN 'object' IN ent.roles THEN [1] ELSE [] END | MERGE (e)-[:HAS_OBJECT]->(n))
		RETURN count(DISTINCT e) AS saved
	`

	GetEventQuery = `
		MATCH (e:Event {id: $id})
		RETURN e
	`

	GetEventsQuery = `
		MATCH (e:Event)
		WHERE e.id IN $ids
		RETURN e
	`

	DeleteEventQuery = `
		MATCH (e:Event {id: $id})
		WITH e, e.id AS id
		DETACH DELETE e
		RETURN count(id) AS deleted
	`

	CreateEventRelationQuery = `
		MATCH (s:Event {id: $source_id})
		MATCH (t:Event {id: $target_id})
		MERGE (s)-[r:EVENT_RELATION {id: $id}]->(t)
		SET r.relation_type = $relation_type,
			r.confidence = $confidence,
			r.strength = $strength,
			r.properties_json = $properties_json,
			r.created_at = $created_at,
			r.source = $source
		RETURN r.id AS id
	`

	QueryEventRelationsQuery = `
		MATCH (s:Event)-[r:EVENT_RELATION]->(t:Event)
		WHERE size($ids) = 0 OR s.id IN $ids OR t.id IN $ids
		RETURN r, s.id AS source_id, t.id AS target_id
		ORDER BY r.created_at, r.id
		LIMIT $limit
	`

	SavePatternsQuery = `
		UNWIND $patterns AS props
		MERGE (p:EventPattern {id: props.id})
		SET p = props
		RETURN count(p) AS saved
	`

	GetPatternQuery = `
		MATCH (p:EventPattern {id: $id})
		RETURN p
	`

	DeletePatternQuery = `
		MATCH (p:EventPattern {id: $id})
		WITH p, p.id AS id
		DETACH DELETE p
		RETURN count(id) AS deleted
	`

	DatabaseCountsQuery = `
		CALL { MATCH (e:Event) RETURN count(e) AS events }
		CALL { MATCH (n:Entity) RETURN count(n) AS entities }
		CALL { MATCH ()-[r:EVENT_RELATION]->() RETURN count(r) AS relations }
		CALL { MATCH (p:EventPattern) RETURN count(p) AS patterns }
		RETURN events, entities, relations, patterns
	`

	EventTypeDistributionQuery = `
		MATCH (e:Event)
		RETURN e.event_type AS event_type, count(*) AS count
	`
)
