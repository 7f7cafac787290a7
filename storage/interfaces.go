package storage

import (
	"context"

	"argus/core"
)

// RuleRepository defines the storage contract for correlation rules.
// Implementations must return only enabled, validated rules from FindActive.
type RuleRepository interface {
	FindActive(ctx context.Context) ([]*core.CorrelationRule, error)
	FindAll(ctx context.Context) ([]*core.CorrelationRule, error)
	Save(ctx context.Context, rule *core.CorrelationRule) error
	IncrementTriggerCount(ctx context.Context, id string) error
}

// MatchRepository persists the append-only rule match audit trail.
type MatchRepository interface {
	Save(ctx context.Context, match *core.RuleMatch) error
}

// AlertRepository persists generated alerts.
type AlertRepository interface {
	Save(ctx context.Context, alert *core.SecurityAlert) error
	Get(ctx context.Context, id string) (*core.SecurityAlert, error)
	UpdateStatus(ctx context.Context, id string, status core.AlertStatus) error
}
