package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

func storedRule(id string, enabled bool) *core.CorrelationRule {
	return &core.CorrelationRule{
		ID:                id,
		Name:              id,
		Conditions:        []core.Condition{{Field: "event_type", Operator: core.OpEquals, Value: "failed_login"}},
		TimeWindowMinutes: 15,
		MinEvents:         3,
		Severity:          core.SeverityHigh,
		Enabled:           enabled,
	}
}

func TestMemoryRuleRepositoryFindActiveFiltersDisabled(t *testing.T) {
	repo := NewMemoryRuleRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, storedRule("on", true)))
	require.NoError(t, repo.Save(ctx, storedRule("off", false)))

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "on", active[0].ID)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryRuleRepositorySaveSetsTimestamps(t *testing.T) {
	repo := NewMemoryRuleRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, storedRule("r", true)))
	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.False(t, all[0].CreatedAt.IsZero())
	assert.False(t, all[0].UpdatedAt.IsZero())
}

func TestMemoryRuleRepositoryIncrementTriggerCount(t *testing.T) {
	repo := NewMemoryRuleRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, storedRule("r", true)))
	require.NoError(t, repo.IncrementTriggerCount(ctx, "r"))
	require.NoError(t, repo.IncrementTriggerCount(ctx, "r"))

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all[0].TriggerCount)

	assert.ErrorIs(t, repo.IncrementTriggerCount(ctx, "missing"), ErrRuleNotFound)
}

func TestMemoryMatchRepositoryAppends(t *testing.T) {
	repo := NewMemoryMatchRepository()
	ctx := context.Background()

	event := core.NewSecurityEvent("failed_login", "10.0.0.1", core.SeverityHigh)
	require.NoError(t, repo.Save(ctx, core.NewRuleMatch("r", []*core.SecurityEvent{event})))
	require.NoError(t, repo.Save(ctx, core.NewRuleMatch("r", []*core.SecurityEvent{event})))

	assert.Len(t, repo.Matches(), 2)
}

func TestMemoryAlertRepositoryLifecycle(t *testing.T) {
	repo := NewMemoryAlertRepository()
	ctx := context.Background()

	alert := core.NewSecurityAlert("brute_force_attack", core.SeverityHigh)
	require.NoError(t, repo.Save(ctx, alert))

	got, err := repo.Get(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, core.AlertStatusNew, got.Status)

	require.NoError(t, repo.UpdateStatus(ctx, alert.AlertID, core.AlertStatusProcessed))
	got, err = repo.Get(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, core.AlertStatusProcessed, got.Status)

	// Terminal state rejects further transitions.
	assert.Error(t, repo.UpdateStatus(ctx, alert.AlertID, core.AlertStatusFalsePositive))
}

func TestMemoryAlertRepositoryMissing(t *testing.T) {
	repo := NewMemoryAlertRepository()
	ctx := context.Background()

	_, err := repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrAlertNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "nope", core.AlertStatusProcessed), ErrAlertNotFound)
}
