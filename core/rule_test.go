package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() *CorrelationRule {
	return &CorrelationRule{
		ID:                "rule-1",
		Name:              "Failed login burst",
		Conditions:        []Condition{{Field: "event_type", Operator: OpEquals, Value: "failed_login"}},
		CorrelationFields: []string{"source_ip"},
		TimeWindowMinutes: 15,
		MinEvents:         3,
		Severity:          SeverityHigh,
		Enabled:           true,
	}
}

func TestRuleValidate(t *testing.T) {
	require.NoError(t, validRule().Validate())
}

func TestRuleValidateRejectsInvalidRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CorrelationRule)
	}{
		{"empty id", func(r *CorrelationRule) { r.ID = "" }},
		{"empty name", func(r *CorrelationRule) { r.Name = "" }},
		{"zero window", func(r *CorrelationRule) { r.TimeWindowMinutes = 0 }},
		{"negative window", func(r *CorrelationRule) { r.TimeWindowMinutes = -5 }},
		{"zero min events", func(r *CorrelationRule) { r.MinEvents = 0 }},
		{"no conditions", func(r *CorrelationRule) { r.Conditions = nil }},
		{"bad severity", func(r *CorrelationRule) { r.Severity = "urgent" }},
		{"bad action", func(r *CorrelationRule) { r.Action = "drop" }},
		{"bad condition", func(r *CorrelationRule) {
			r.Conditions = []Condition{{Field: "", Operator: OpEquals, Value: "x"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := validRule()
			tc.mutate(rule)
			assert.Error(t, rule.Validate())
		})
	}
}

func TestRuleValidateNilRule(t *testing.T) {
	var rule *CorrelationRule
	assert.Error(t, rule.Validate())
}

func TestRuleWindow(t *testing.T) {
	rule := validRule()
	assert.Equal(t, 15*time.Minute, rule.Window())
}

func TestRuleMatchesRequiresAllConditions(t *testing.T) {
	rule := validRule()
	rule.Conditions = append(rule.Conditions,
		Condition{Field: "severity", Operator: OpEquals, Value: "high"})
	require.NoError(t, rule.Validate())

	match := NewSecurityEvent("failed_login", "10.0.0.1", SeverityHigh)
	assert.True(t, rule.Matches(match))

	partial := NewSecurityEvent("failed_login", "10.0.0.1", SeverityLow)
	assert.False(t, rule.Matches(partial))
}
