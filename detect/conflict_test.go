package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

func scopedRule(id string, src, dst string, action core.RuleAction, priority int) *core.CorrelationRule {
	return &core.CorrelationRule{
		ID:                id,
		Name:              id,
		Conditions:        []core.Condition{{Field: "event_type", Operator: core.OpEquals, Value: "network_connection"}},
		TimeWindowMinutes: 10,
		MinEvents:         1,
		Severity:          core.SeverityMedium,
		Enabled:           true,
		SourceIP:          src,
		DestinationIP:     dst,
		Action:            action,
		Priority:          priority,
	}
}

func TestDetectConflictsContradiction(t *testing.T) {
	active := []*core.CorrelationRule{
		scopedRule("allow-db", "10.0.0.1", "10.0.0.2", core.RuleActionAllow, 1),
	}
	candidate := scopedRule("block-db", "10.0.0.1", "10.0.0.2", core.RuleActionBlock, 2)

	conflicts := DetectConflicts(candidate, active)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictContradiction, conflicts[0].Type)
	assert.Equal(t, "block-db", conflicts[0].RuleID)
	assert.Equal(t, "allow-db", conflicts[0].ConflictsWith)
	assert.True(t, HasBlockingConflict(conflicts))
}

func TestDetectConflictsRedundant(t *testing.T) {
	active := []*core.CorrelationRule{
		scopedRule("block-db", "10.0.0.1", "10.0.0.2", core.RuleActionBlock, 1),
	}
	candidate := scopedRule("block-db-again", "10.0.0.1", "10.0.0.2", core.RuleActionBlock, 2)

	conflicts := DetectConflicts(candidate, active)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictRedundant, conflicts[0].Type)
	assert.False(t, HasBlockingConflict(conflicts))
}

func TestDetectConflictsShadow(t *testing.T) {
	// Earlier wildcard-source rule covers everything the candidate matches.
	active := []*core.CorrelationRule{
		scopedRule("block-all-to-db", "", "10.0.0.2", core.RuleActionBlock, 1),
	}
	candidate := scopedRule("block-one-to-db", "10.0.0.9", "10.0.0.2", core.RuleActionBlock, 5)

	conflicts := DetectConflicts(candidate, active)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictShadow, conflicts[0].Type)
	assert.True(t, HasBlockingConflict(conflicts))
}

func TestDetectConflictsNoShadowWhenCandidateEvaluatedFirst(t *testing.T) {
	active := []*core.CorrelationRule{
		scopedRule("block-all-to-db", "", "10.0.0.2", core.RuleActionBlock, 10),
	}
	candidate := scopedRule("block-one-to-db", "10.0.0.9", "10.0.0.2", core.RuleActionBlock, 1)

	assert.Empty(t, DetectConflicts(candidate, active))
}

func TestDetectConflictsDisjointScopes(t *testing.T) {
	active := []*core.CorrelationRule{
		scopedRule("block-a", "10.0.0.1", "10.0.0.2", core.RuleActionBlock, 1),
	}
	candidate := scopedRule("allow-b", "10.0.0.3", "10.0.0.4", core.RuleActionAllow, 2)

	assert.Empty(t, DetectConflicts(candidate, active))
}

func TestDetectConflictsIgnoresActionlessRules(t *testing.T) {
	active := []*core.CorrelationRule{
		scopedRule("block-db", "10.0.0.1", "10.0.0.2", core.RuleActionBlock, 1),
	}

	pure := scopedRule("pure-correlation", "10.0.0.1", "10.0.0.2", "", 2)
	assert.Empty(t, DetectConflicts(pure, active))

	// And actionless active rules never conflict with a candidate.
	candidate := scopedRule("allow-db", "10.0.0.1", "10.0.0.2", core.RuleActionAllow, 3)
	actionless := []*core.CorrelationRule{scopedRule("pure", "10.0.0.1", "10.0.0.2", "", 1)}
	assert.Empty(t, DetectConflicts(candidate, actionless))
}

func TestDetectConflictsSkipsSelf(t *testing.T) {
	rule := scopedRule("block-db", "10.0.0.1", "10.0.0.2", core.RuleActionBlock, 1)
	assert.Empty(t, DetectConflicts(rule, []*core.CorrelationRule{rule}))
}
