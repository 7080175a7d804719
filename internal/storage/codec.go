package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/eventgraph/internal/core/model"
)

// propertyPrefix namespaces flattened scalar event properties on the node so
// they can be filtered in Cypher without clashing with the fixed fields.
const propertyPrefix = "p_"

// EntityID returns ent.ID, or a stable id derived from its type and name.
func EntityID(ent *model.Entity) string {
	if ent.ID != "" {
		return ent.ID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(ent.EntityType+"|"+ent.Name)).String()
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// eventParams renders an event as the {props, entities} map consumed by
// SaveEventsQuery.
func eventParams(e *model.Event) (map[string]any, error) {
	props := map[string]any{
		"id":         e.ID,
		"event_type": e.Type.String(),
		"text":       e.Text,
		"summary":    e.Summary,
		"location":   e.Location,
		"confidence": e.Confidence,
		"source":     e.Source,
		"created_at": e.CreatedAt,
		"updated_at": e.UpdatedAt,
	}
	if e.Timestamp != nil {
		props["timestamp"] = *e.Timestamp
	}

	var err error
	if props["participants_json"], err = marshalJSON(e.Participants); err != nil {
		return nil, fmt.Errorf("encode participants: %w", err)
	}
	if e.Subject != nil {
		if props["subject_json"], err = marshalJSON(e.Subject); err != nil {
			return nil, fmt.Errorf("encode subject: %w", err)
		}
	}
	if e.Object != nil {
		if props["object_json"], err = marshalJSON(e.Object); err != nil {
			return nil, fmt.Errorf("encode object: %w", err)
		}
	}
	if len(e.Properties) > 0 {
		if props["properties_json"], err = marshalJSON(e.Properties); err != nil {
			return nil, fmt.Errorf("encode properties: %w", err)
		}
		for k, v := range e.Properties {
			switch v.(type) {
			case string, bool, int, int32, int64, float32, float64:
				props[propertyPrefix+k] = v
			}
		}
	}

	entities, err := entityParams(e)
	if err != nil {
		return nil, err
	}
	return map[string]any{"props": props, "entities": entities}, nil
}

func entityParams(e *model.Event) ([]map[string]any, error) {
	byID := make(map[string]map[string]any)
	var order []string

	add := func(ent *model.Entity, role string) error {
		id := EntityID(ent)
		if m, ok := byID[id]; ok {
			if role != "" {
				m["roles"] = append(m["roles"].([]string), role)
			}
			return nil
		}
		propsJSON, err := marshalJSON(ent.Properties)
		if err != nil {
			return fmt.Errorf("encode entity %s: %w", ent.Name, err)
		}
		roles := []string{}
		if role != "" {
			roles = append(roles, role)
		}
		aliases := ent.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		byID[id] = map[string]any{
			"id":              id,
			"name":            ent.Name,
			"entity_type":     ent.EntityType,
			"aliases":         aliases,
			"confidence":      ent.Confidence,
			"properties_json": propsJSON,
			"roles":           roles,
		}
		order = append(order, id)
		return nil
	}

	if e.Subject != nil {
		if err := add(e.Subject, "subject"); err != nil {
			return nil, err
		}
	}
	if e.Object != nil {
		if err := add(e.Object, "object"); err != nil {
			return nil, err
		}
	}
	for i := range e.Participants {
		if err := add(&e.Participants[i], ""); err != nil {
			return nil, err
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func decodeEvent(props map[string]any) (*model.Event, error) {
	et, err := model.ParseEventType(str(props["event_type"]))
	if err != nil {
		return nil, err
	}
	e := &model.Event{
		ID:         str(props["id"]),
		Type:       et,
		Text:       str(props["text"]),
		Summary:    str(props["summary"]),
		Location:   str(props["location"]),
		Confidence: float(props["confidence"]),
		Source:     str(props["source"]),
		CreatedAt:  timeOf(props["created_at"]),
		UpdatedAt:  timeOf(props["updated_at"]),
	}
	if ts, ok := props["timestamp"]; ok && ts != nil {
		t := timeOf(ts)
		e.Timestamp = &t
	}
	if s := str(props["participants_json"]); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &e.Participants); err != nil {
			return nil, fmt.Errorf("decode participants of %s: %w", e.ID, err)
		}
	}
	if s := str(props["subject_json"]); s != "" {
		e.Subject = new(model.Entity)
		if err := json.Unmarshal([]byte(s), e.Subject); err != nil {
			return nil, fmt.Errorf("decode subject of %s: %w", e.ID, err)
		}
	}
	if s := str(props["object_json"]); s != "" {
		e.Object = new(model.Entity)
		if err := json.Unmarshal([]byte(s), e.Object); err != nil {
			return nil, fmt.Errorf("decode object of %s: %w", e.ID, err)
		}
	}
	if s := str(props["properties_json"]); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &e.Properties); err != nil {
			return nil, fmt.Errorf("decode properties of %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func relationParams(r *model.EventRelation) (map[string]any, error) {
	propsJSON, err := marshalJSON(r.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode relation properties: %w", err)
	}
	return map[string]any{
		"id":              r.ID,
		"source_id":       r.SourceEventID,
		"target_id":       r.TargetEventID,
		"relation_type":   r.Type.String(),
		"confidence":      r.Confidence,
		"strength":        r.Strength,
		"properties_json": propsJSON,
		"created_at":      r.CreatedAt,
		"source":          r.Source,
	}, nil
}

func decodeRelation(props map[string]any, sourceID, targetID string) (*model.EventRelation, error) {
	rt, err := model.ParseRelationType(str(props["relation_type"]))
	if err != nil {
		return nil, err
	}
	r := &model.EventRelation{
		ID:            str(props["id"]),
		Type:          rt,
		SourceEventID: sourceID,
		TargetEventID: targetID,
		Confidence:    float(props["confidence"]),
		Strength:      float(props["strength"]),
		CreatedAt:     timeOf(props["created_at"]),
		Source:        str(props["source"]),
	}
	if s := str(props["properties_json"]); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &r.Properties); err != nil {
			return nil, fmt.Errorf("decode relation properties of %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func patternProps(p *model.EventPattern) (map[string]any, error) {
	seq := make([]string, len(p.EventSequence))
	for i, t := range p.EventSequence {
		seq[i] = t.String()
	}
	rels := make([]string, len(p.RelationTypes))
	for i, t := range p.RelationTypes {
		rels[i] = t.String()
	}
	instances := p.Instances
	if instances == nil {
		instances = []string{}
	}
	conditions, err := marshalJSON(p.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions of %s: %w", p.ID, err)
	}
	return map[string]any{
		"id":              p.ID,
		"pattern_name":    p.Name,
		"description":     p.Description,
		"pattern_type":    p.Type.String(),
		"domain":          p.Domain,
		"event_sequence":  seq,
		"relation_types":  rels,
		"conditions_json": conditions,
		"frequency":       int64(p.Frequency),
		"support":         p.Support,
		"confidence":      p.Confidence,
		"instances":       instances,
		"complexity":      int64(p.Complexity()),
		"created_at":      p.CreatedAt,
		"updated_at":      p.UpdatedAt,
	}, nil
}

func decodePattern(props map[string]any) (*model.EventPattern, error) {
	pt, err := model.ParsePatternType(str(props["pattern_type"]))
	if err != nil {
		return nil, err
	}
	p := &model.EventPattern{
		ID:          str(props["id"]),
		Name:        str(props["pattern_name"]),
		Description: str(props["description"]),
		Type:        pt,
		Domain:      str(props["domain"]),
		Frequency:   int(integer(props["frequency"])),
		Support:     float(props["support"]),
		Confidence:  float(props["confidence"]),
		Instances:   stringList(props["instances"]),
		CreatedAt:   timeOf(props["created_at"]),
		UpdatedAt:   timeOf(props["updated_at"]),
	}
	for _, s := range stringList(props["event_sequence"]) {
		t, err := model.ParseEventType(s)
		if err != nil {
			return nil, fmt.Errorf("decode sequence of %s: %w", p.ID, err)
		}
		p.EventSequence = append(p.EventSequence, t)
	}
	for _, s := range stringList(props["relation_types"]) {
		t, err := model.ParseRelationType(s)
		if err != nil {
			return nil, fmt.Errorf("decode relation types of %s: %w", p.ID, err)
		}
		p.RelationTypes = append(p.RelationTypes, t)
	}
	if s := str(props["conditions_json"]); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &p.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func float(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func integer(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func stringList(v any) []string {
	switch xs := v.(type) {
	case []string:
		return append([]string(nil), xs...)
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func timeOf(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed
		}
	}
	return time.Time{}
}
