package model

import (
	"fmt"
	"strings"
)

// EventType is the closed set of event categories.
type EventType uint8

const (
	EventOther EventType = iota
	EventBusinessAcquisition
	EventBusinessMerger
	EventBusinessCooperation
	EventPartnership
	EventInvestment
	EventFinancialInvestment
	EventPersonnelChange
	EventOrganizationalChange
	EventStrategyChange
	EventProductLaunch
	EventMarketExpansion
	EventRevenueIncrease
	EventTechnologyBreakthrough
	EventRegulatoryChange
	EventCollaboration
	EventAction
)

var eventTypeNames = [...]string{
	EventOther:                  "other",
	EventBusinessAcquisition:    "business_acquisition",
	EventBusinessMerger:         "business_merger",
	EventBusinessCooperation:    "business_cooperation",
	EventPartnership:            "partnership",
	EventInvestment:             "investment",
	EventFinancialInvestment:    "financial_investment",
	EventPersonnelChange:        "personnel_change",
	EventOrganizationalChange:   "organizational_change",
	EventStrategyChange:         "strategy_change",
	EventProductLaunch:          "product_launch",
	EventMarketExpansion:        "market_expansion",
	EventRevenueIncrease:        "revenue_increase",
	EventTechnologyBreakthrough: "technology_breakthrough",
	EventRegulatoryChange:       "regulatory_change",
	EventCollaboration:          "collaboration",
	EventAction:                 "action",
}

// legacy dotted names written by older extraction runs
var eventTypeAliases = map[string]EventType{
	"business.acquisition":    EventBusinessAcquisition,
	"business.merger":         EventBusinessMerger,
	"business.cooperation":    EventBusinessCooperation,
	"personnel.change":        EventPersonnelChange,
	"financial.investment":    EventFinancialInvestment,
	"product.launch":          EventProductLaunch,
	"market.expansion":        EventMarketExpansion,
	"regulatory.change":       EventRegulatoryChange,
	"technology.breakthrough": EventTechnologyBreakthrough,
}

func (t EventType) String() string {
	if int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("EventType(%d)", uint8(t))
}

func (t EventType) MarshalText() ([]byte, error) {
	if int(t) >= len(eventTypeNames) {
		return nil, fmt.Errorf("invalid event type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(b []byte) error {
	v, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseEventType converts the canonical (or legacy dotted) name into an EventType.
func ParseEventType(s string) (EventType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range eventTypeNames {
		if name == s {
			return EventType(i), nil
		}
	}
	if t, ok := eventTypeAliases[s]; ok {
		return t, nil
	}
	return EventOther, fmt.Errorf("unknown event type %q", s)
}

// AllEventTypes lists every EventType in declaration order.
func AllEventTypes() []EventType {
	out := make([]EventType, len(eventTypeNames))
	for i := range eventTypeNames {
		out[i] = EventType(i)
	}
	return out
}

// RelationType tags an edge between two events.
type RelationType uint8

const (
	RelationUnknown RelationType = iota
	RelationCausal
	RelationCausalDirect
	RelationCausalIndirect
	RelationTemporalBefore
	RelationTemporalAfter
	RelationTemporalSimultaneous
	RelationConditional
	RelationConditionalNecessary
	RelationConditionalSufficient
	RelationContrast
	RelationContrastOpposite
	RelationContrastSimilar
	RelationCorrelation
	RelationCooccurrence
)

var relationTypeNames = [...]string{
	RelationUnknown:               "unknown",
	RelationCausal:                "causal",
	RelationCausalDirect:          "causal_direct",
	RelationCausalIndirect:        "causal_indirect",
	RelationTemporalBefore:        "temporal_before",
	RelationTemporalAfter:         "temporal_after",
	RelationTemporalSimultaneous:  "temporal_simultaneous",
	RelationConditional:           "conditional",
	RelationConditionalNecessary:  "conditional_necessary",
	RelationConditionalSufficient: "conditional_sufficient",
	RelationContrast:              "contrast",
	RelationContrastOpposite:      "contrast_opposite",
	RelationContrastSimilar:       "contrast_similar",
	RelationCorrelation:           "correlation",
	RelationCooccurrence:          "cooccurrence",
}

func (t RelationType) String() string {
	if int(t) < len(relationTypeNames) {
		return relationTypeNames[t]
	}
	return fmt.Sprintf("RelationType(%d)", uint8(t))
}

func (t RelationType) MarshalText() ([]byte, error) {
	if int(t) >= len(relationTypeNames) {
		return nil, fmt.Errorf("invalid relation type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *RelationType) UnmarshalText(b []byte) error {
	v, err := ParseRelationType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func ParseRelationType(s string) (RelationType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range relationTypeNames {
		if name == s {
			return RelationType(i), nil
		}
	}
	return RelationUnknown, fmt.Errorf("unknown relation type %q", s)
}

// PatternType classifies how a pattern was derived.
type PatternType uint8

const (
	PatternCustom PatternType = iota
	PatternTemporalSequence
	PatternCausalRelationship
	PatternCooccurrence
	PatternConditional
)

var patternTypeNames = [...]string{
	PatternCustom:             "custom",
	PatternTemporalSequence:   "temporal_sequence",
	PatternCausalRelationship: "causal_relationship",
	PatternCooccurrence:       "cooccurrence",
	PatternConditional:        "conditional",
}

func (t PatternType) String() string {
	if int(t) < len(patternTypeNames) {
		return patternTypeNames[t]
	}
	return fmt.Sprintf("PatternType(%d)", uint8(t))
}

func (t PatternType) MarshalText() ([]byte, error) {
	if int(t) >= len(patternTypeNames) {
		return nil, fmt.Errorf("invalid pattern type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *PatternType) UnmarshalText(b []byte) error {
	v, err := ParsePatternType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func ParsePatternType(s string) (PatternType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range patternTypeNames {
		if name == s {
			return PatternType(i), nil
		}
	}
	return PatternCustom, fmt.Errorf("unknown pattern type %q", s)
}

// RequiresSequence reports whether patterns of this type need at least two
// ordered event types.
func (t PatternType) RequiresSequence() bool {
	return t == PatternTemporalSequence || t == PatternCausalRelationship
}

// MappingType records how an event-pattern mapping was created.
type MappingType uint8

const (
	MappingManual MappingType = iota
	MappingExact
	MappingPartial
	MappingInferred
	MappingAuto
)

var mappingTypeNames = [...]string{
	MappingManual:   "manual",
	MappingExact:    "exact",
	MappingPartial:  "partial",
	MappingInferred: "inferred",
	MappingAuto:     "auto",
}

func (t MappingType) String() string {
	if int(t) < len(mappingTypeNames) {
		return mappingTypeNames[t]
	}
	return fmt.Sprintf("MappingType(%d)", uint8(t))
}

func (t MappingType) MarshalText() ([]byte, error) {
	if int(t) >= len(mappingTypeNames) {
		return nil, fmt.Errorf("invalid mapping type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *MappingType) UnmarshalText(b []byte) error {
	v, err := ParseMappingType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func ParseMappingType(s string) (MappingType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range mappingTypeNames {
		if name == s {
			return MappingType(i), nil
		}
	}
	return MappingManual, fmt.Errorf("unknown mapping type %q", s)
}
