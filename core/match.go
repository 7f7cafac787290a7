package core

import (
	"time"

	"github.com/google/uuid"
)

// RuleMatch is the append-only audit record written whenever a correlation
// rule fires. TriggeringEvents is a snapshot taken at match time; later
// enrichment of the live events does not rewrite history.
type RuleMatch struct {
	ID                string           `json:"id" bson:"_id"`
	CorrelationRuleID string           `json:"correlation_rule_id" bson:"correlation_rule_id"`
	MatchedAt         time.Time        `json:"matched_at" bson:"matched_at"`
	TriggeringEvents  []*SecurityEvent `json:"triggering_events" bson:"triggering_events"`
}

// NewRuleMatch snapshots the triggering events for the audit trail.
func NewRuleMatch(ruleID string, events []*SecurityEvent) *RuleMatch {
	snapshot := make([]*SecurityEvent, len(events))
	for i, e := range events {
		snapshot[i] = e.Clone()
	}
	return &RuleMatch{
		ID:                uuid.New().String(),
		CorrelationRuleID: ruleID,
		MatchedAt:         time.Now().UTC(),
		TriggeringEvents:  snapshot,
	}
}
