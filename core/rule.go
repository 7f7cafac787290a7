package core

import (
	"fmt"
	"time"
)

// RuleAction is what a rule does when it fires. Actions matter to the
// conflict detector: two rules covering the same IP pair with different
// actions contradict each other.
type RuleAction string

const (
	RuleActionAlert RuleAction = "alert"
	RuleActionBlock RuleAction = "block"
	RuleActionAllow RuleAction = "allow"
)

// IsValid checks if the action is valid
func (a RuleAction) IsValid() bool {
	switch a {
	case RuleActionAlert, RuleActionBlock, RuleActionAllow:
		return true
	default:
		return false
	}
}

// CorrelationRule groups related events into one alert: a condition set,
// the fields that link events, and a time window. Immutable after
// activation except for the Enabled toggle and the trigger counter.
type CorrelationRule struct {
	ID                string      `json:"id" bson:"_id" yaml:"id"`
	Name              string      `json:"name" bson:"name" yaml:"name"`
	Description       string      `json:"description" bson:"description" yaml:"description"`
	Conditions        []Condition `json:"conditions" bson:"conditions" yaml:"conditions"`
	CorrelationFields []string    `json:"correlation_fields" bson:"correlation_fields" yaml:"correlation_fields"`
	TimeWindowMinutes int         `json:"time_window_minutes" bson:"time_window_minutes" yaml:"time_window_minutes"`
	MinEvents         int         `json:"min_events" bson:"min_events" yaml:"min_events"`
	Severity          Severity    `json:"severity" bson:"severity" yaml:"severity"`
	Enabled           bool        `json:"enabled" bson:"enabled" yaml:"enabled"`

	// Scoping used by the conflict detector. Empty means "any".
	SourceIP      string     `json:"source_ip,omitempty" bson:"source_ip,omitempty" yaml:"source_ip"`
	DestinationIP string     `json:"destination_ip,omitempty" bson:"destination_ip,omitempty" yaml:"destination_ip"`
	Action        RuleAction `json:"action,omitempty" bson:"action,omitempty" yaml:"action"`
	// Priority orders rule evaluation; a larger number is evaluated later.
	Priority int `json:"priority" bson:"priority" yaml:"priority"`

	TriggerCount int64     `json:"trigger_count" bson:"trigger_count" yaml:"-"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at" yaml:"-"`
}

// Validate checks rule invariants and compiles its conditions. Rules
// violating the invariants are rejected at load time, never at match time.
func (r *CorrelationRule) Validate() error {
	if r == nil {
		return fmt.Errorf("cannot validate nil rule")
	}
	if r.ID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s: name cannot be empty", r.ID)
	}
	if r.TimeWindowMinutes <= 0 {
		return fmt.Errorf("rule %s: time_window_minutes must be positive, got %d", r.ID, r.TimeWindowMinutes)
	}
	if r.MinEvents < 1 {
		return fmt.Errorf("rule %s: min_events must be at least 1, got %d", r.ID, r.MinEvents)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("rule %s: at least one condition is required", r.ID)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if r.Action != "" && !r.Action.IsValid() {
		return fmt.Errorf("rule %s: invalid action %q", r.ID, r.Action)
	}
	for i := range r.Conditions {
		if err := r.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("rule %s: condition %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// Window returns the correlation window as a duration
func (r *CorrelationRule) Window() time.Duration {
	return time.Duration(r.TimeWindowMinutes) * time.Minute
}

// Matches reports whether all conditions evaluate true against the event.
func (r *CorrelationRule) Matches(event *SecurityEvent) bool {
	for i := range r.Conditions {
		if !r.Conditions[i].Evaluate(event) {
			return false
		}
	}
	return true
}
