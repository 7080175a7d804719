package model

import (
	"fmt"
	"strings"
)

// ValidateEvent returns human-readable problems with e. An empty slice means
// the event is valid.
func ValidateEvent(e *Event) []string {
	var problems []string
	if strings.TrimSpace(e.ID) == "" {
		problems = append(problems, "event id is empty")
	}
	if strings.TrimSpace(e.Text) == "" {
		problems = append(problems, "event text is empty")
	}
	if !inUnit(e.Confidence) {
		problems = append(problems, fmt.Sprintf("event confidence %.3f out of range [0,1]", e.Confidence))
	}
	if e.Subject != nil && strings.TrimSpace(e.Subject.Name) == "" {
		problems = append(problems, "subject name is empty")
	}
	if e.Object != nil && strings.TrimSpace(e.Object.Name) == "" {
		problems = append(problems, "object name is empty")
	}
	return problems
}

// ValidateRelation checks ids, self-loops and value ranges of r.
func ValidateRelation(r *EventRelation) []string {
	var problems []string
	if strings.TrimSpace(r.SourceEventID) == "" {
		problems = append(problems, "source event id is empty")
	}
	if strings.TrimSpace(r.TargetEventID) == "" {
		problems = append(problems, "target event id is empty")
	}
	if r.SourceEventID != "" && r.SourceEventID == r.TargetEventID {
		problems = append(problems, "source and target event are the same")
	}
	if !inUnit(r.Confidence) {
		problems = append(problems, fmt.Sprintf("relation confidence %.3f out of range [0,1]", r.Confidence))
	}
	if !inUnit(r.Strength) {
		problems = append(problems, fmt.Sprintf("relation strength %.3f out of range [0,1]", r.Strength))
	}
	return problems
}

func ValidatePattern(p *EventPattern) []string {
	var problems []string
	if strings.TrimSpace(p.ID) == "" {
		problems = append(problems, "pattern id is empty")
	}
	if p.Type.RequiresSequence() && len(p.EventSequence) < 2 {
		problems = append(problems, fmt.Sprintf("%s pattern needs at least 2 event types, got %d", p.Type, len(p.EventSequence)))
	}
	if p.Support < 0 {
		problems = append(problems, fmt.Sprintf("pattern support %.3f is negative", p.Support))
	}
	if !inUnit(p.Confidence) {
		problems = append(problems, fmt.Sprintf("pattern confidence %.3f out of range [0,1]", p.Confidence))
	}
	return problems
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
