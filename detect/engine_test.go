package detect

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/config"
	"argus/core"
	"argus/enrich"
	"argus/storage"
	"argus/store"
)

type engineFixture struct {
	engine  *Engine
	rules   *storage.MemoryRuleRepository
	matches *storage.MemoryMatchRepository
	alerts  *storage.MemoryAlertRepository
}

func newTestEngine(t *testing.T) *engineFixture {
	t.Helper()
	return newEngineFixture(t, config.Default(), storage.NewMemoryAlertRepository())
}

func newTestEngineWithAlerts(t *testing.T, alerts storage.AlertRepository) *engineFixture {
	t.Helper()
	return newEngineFixture(t, config.Default(), alerts)
}

func newTestEngineWithConfig(t *testing.T, cfg *config.Config) *engineFixture {
	t.Helper()
	return newEngineFixture(t, cfg, storage.NewMemoryAlertRepository())
}

func newEngineFixture(t *testing.T, cfg *config.Config, alerts storage.AlertRepository) *engineFixture {
	t.Helper()

	logger := zap.NewNop().Sugar()

	windowStore := store.NewWindowedEventStore(1000, 100, 200, 2*time.Hour, time.Minute, logger)
	pipeline := enrich.NewPipeline(nil, time.Second, logger)
	rules := storage.NewMemoryRuleRepository()
	matches := storage.NewMemoryMatchRepository()

	engine := NewEngine(cfg, windowStore, pipeline, rules, matches, alerts, logger)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(engine.Stop)

	fx := &engineFixture{engine: engine, rules: rules, matches: matches}
	if mem, ok := alerts.(*storage.MemoryAlertRepository); ok {
		fx.alerts = mem
	}
	return fx
}

func burstRule() *core.CorrelationRule {
	return &core.CorrelationRule{
		ID:                "failed-login-burst",
		Name:              "Failed login burst",
		Description:       "Repeated failed logins from one source",
		Conditions:        []core.Condition{{Field: "event_type", Operator: core.OpEquals, Value: "failed_login"}},
		CorrelationFields: []string{"source_ip"},
		TimeWindowMinutes: 15,
		MinEvents:         3,
		Severity:          core.SeverityHigh,
		Enabled:           true,
	}
}

func TestRuleCorrelationFiresAtMinEvents(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	_, err := fx.engine.ActivateRule(ctx, burstRule())
	require.NoError(t, err)
	require.Equal(t, 1, fx.engine.ActiveRuleCount())

	for i := 0; i < 2; i++ {
		alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("failed_login", "10.0.0.1", core.SeverityMedium))
		require.NoError(t, err)
		assert.Empty(t, alerts)
	}

	alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("failed_login", "10.0.0.1", core.SeverityMedium))
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, AlertTypeRuleCorrelation, alert.AlertType)
	assert.Equal(t, core.SeverityHigh, alert.Severity)
	assert.Equal(t, "failed-login-burst", alert.RuleID)
	assert.Len(t, alert.SourceEvents, 3)
	assert.Greater(t, alert.CorrelationScore, 0.0)
	assert.LessOrEqual(t, alert.CorrelationScore, 1.0)

	// Match audit trail and trigger counter follow the alert.
	require.Len(t, fx.matches.Matches(), 1)
	assert.Len(t, fx.matches.Matches()[0].TriggeringEvents, 3)

	stored, err := fx.rules.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(1), stored[0].TriggerCount)
}

func TestRuleCorrelationSeparatesSources(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	_, err := fx.engine.ActivateRule(ctx, burstRule())
	require.NoError(t, err)

	// Three failed logins from three different IPs never link up.
	for i := 0; i < 3; i++ {
		alerts, err := fx.engine.ProcessEvent(ctx,
			core.NewSecurityEvent("failed_login", fmt.Sprintf("10.0.0.%d", i+1), core.SeverityMedium))
		require.NoError(t, err)
		assert.Empty(t, alerts)
	}
}

func TestBruteForceHeuristicThreshold(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("failed_login", "203.0.113.5", core.SeverityMedium))
		require.NoError(t, err)
		assert.Empty(t, alerts, "event %d must not alert", i+1)
	}

	alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("failed_login", "203.0.113.5", core.SeverityMedium))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeBruteForce, alerts[0].AlertType)
	assert.Equal(t, core.SeverityHigh, alerts[0].Severity)
	assert.Contains(t, alerts[0].AffectedAssets, "203.0.113.5")
}

func TestBruteForceIgnoresOldEvents(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	// Nine stale failures plus one fresh never cross the threshold.
	for i := 0; i < 9; i++ {
		stale := core.NewSecurityEvent("failed_login", "203.0.113.5", core.SeverityMedium)
		stale.Timestamp = time.Now().Add(-time.Hour)
		_, err := fx.engine.ProcessEvent(ctx, stale)
		require.NoError(t, err)
	}

	alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("failed_login", "203.0.113.5", core.SeverityMedium))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestPrivilegeEscalationHeuristic(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("privilege_escalation", "10.0.0.7", core.SeverityHigh))
		require.NoError(t, err)
		assert.Empty(t, alerts)
	}

	alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("privilege_escalation", "10.0.0.7", core.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypePrivilegeEscalation, alerts[0].AlertType)
	assert.Equal(t, core.SeverityCritical, alerts[0].Severity)
}

func TestBruteForceCountsAuthenticationFailures(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	// failed_login and authentication_failure count toward one threshold.
	for i := 0; i < 5; i++ {
		alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent(EventTypeAuthFailure, "203.0.113.8", core.SeverityMedium))
		require.NoError(t, err)
		assert.Empty(t, alerts)
	}
	for i := 0; i < 4; i++ {
		alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent(EventTypeFailedLogin, "203.0.113.8", core.SeverityMedium))
		require.NoError(t, err)
		assert.Empty(t, alerts)
	}

	alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent(EventTypeAuthFailure, "203.0.113.8", core.SeverityMedium))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeBruteForce, alerts[0].AlertType)
	assert.Equal(t, core.SeverityHigh, alerts[0].Severity)
	assert.Len(t, alerts[0].SourceEvents, 10)
}

func TestPrivilegeEscalationCountsAliasEventTypes(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent(EventTypeSudoCommand, "10.0.0.9", core.SeverityHigh))
	require.NoError(t, err)
	assert.Empty(t, alerts)

	alerts, err = fx.engine.ProcessEvent(ctx, core.NewSecurityEvent(EventTypeAdminAccess, "10.0.0.9", core.SeverityHigh))
	require.NoError(t, err)
	assert.Empty(t, alerts)

	alerts, err = fx.engine.ProcessEvent(ctx, core.NewSecurityEvent(EventTypeSudoCommand, "10.0.0.9", core.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypePrivilegeEscalation, alerts[0].AlertType)
	assert.Equal(t, core.SeverityCritical, alerts[0].Severity)
	assert.Len(t, alerts[0].SourceEvents, 3)
}

func TestTrafficVolumeHeuristicThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Correlation.TrafficVolume.Threshold = 5
	cfg.Correlation.TrafficVolume.MaxSourceEvents = 3
	fx := newTestEngineWithConfig(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		alerts, err := fx.engine.ProcessEvent(ctx,
			core.NewSecurityEvent(EventTypeNetworkConnection, fmt.Sprintf("10.1.0.%d", i+1), core.SeverityInfo))
		require.NoError(t, err)
		assert.Empty(t, alerts, "event %d is not past the threshold", i+1)
	}

	// The sixth connection pushes the window count past the threshold; the
	// alert references only the most recent events.
	alerts, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent(EventTypeNetworkConnection, "10.1.0.6", core.SeverityInfo))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertTypeTrafficVolume, alerts[0].AlertType)
	assert.Equal(t, core.SeverityMedium, alerts[0].Severity)
	require.Len(t, alerts[0].SourceEvents, 3)
	assert.Contains(t, alerts[0].AffectedAssets, "10.1.0.6")
	assert.NotContains(t, alerts[0].AffectedAssets, "10.1.0.1")
}

func TestActivateRuleRejectsBlockingConflict(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	allow := burstRule()
	allow.ID = "allow-pair"
	allow.SourceIP = "10.0.0.1"
	allow.DestinationIP = "10.0.0.2"
	allow.Action = core.RuleActionAllow
	_, err := fx.engine.ActivateRule(ctx, allow)
	require.NoError(t, err)

	block := burstRule()
	block.ID = "block-pair"
	block.SourceIP = "10.0.0.1"
	block.DestinationIP = "10.0.0.2"
	block.Action = core.RuleActionBlock

	conflicts, err := fx.engine.ActivateRule(ctx, block)
	require.ErrorIs(t, err, ErrRuleConflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictContradiction, conflicts[0].Type)
	assert.Equal(t, 1, fx.engine.ActiveRuleCount())
}

func TestActivateRuleAllowsRedundantAsAdvisory(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	first := burstRule()
	first.ID = "block-pair"
	first.SourceIP = "10.0.0.1"
	first.DestinationIP = "10.0.0.2"
	first.Action = core.RuleActionBlock
	_, err := fx.engine.ActivateRule(ctx, first)
	require.NoError(t, err)

	dup := burstRule()
	dup.ID = "block-pair-dup"
	dup.SourceIP = "10.0.0.1"
	dup.DestinationIP = "10.0.0.2"
	dup.Action = core.RuleActionBlock

	conflicts, err := fx.engine.ActivateRule(ctx, dup)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictRedundant, conflicts[0].Type)
	assert.Equal(t, 2, fx.engine.ActiveRuleCount())
}

func TestActivateRuleRejectsInvalidRule(t *testing.T) {
	fx := newTestEngine(t)

	bad := burstRule()
	bad.MinEvents = 0
	_, err := fx.engine.ActivateRule(context.Background(), bad)
	assert.Error(t, err)
	assert.Zero(t, fx.engine.ActiveRuleCount())
}

type failingAlertRepo struct{}

func (f *failingAlertRepo) Save(ctx context.Context, alert *core.SecurityAlert) error {
	return errors.New("disk full")
}

func (f *failingAlertRepo) Get(ctx context.Context, id string) (*core.SecurityAlert, error) {
	return nil, storage.ErrAlertNotFound
}

func (f *failingAlertRepo) UpdateStatus(ctx context.Context, id string, status core.AlertStatus) error {
	return storage.ErrAlertNotFound
}

func TestAlertSaveFailureSurfaces(t *testing.T) {
	fx := newTestEngineWithAlerts(t, &failingAlertRepo{})
	ctx := context.Background()

	_, err := fx.engine.ActivateRule(ctx, burstRule())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("failed_login", "10.0.0.1", core.SeverityMedium))
		require.NoError(t, err)
	}

	_, err = fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("failed_login", "10.0.0.1", core.SeverityMedium))
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "alert save", engineErr.Phase)
}

func TestProcessBatchBatchCorrelation(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	events := make([]*core.SecurityEvent, 0, 6)
	for i := 0; i < 5; i++ {
		events = append(events, core.NewSecurityEvent("beacon", "198.51.100.3", core.SeverityLow))
	}
	events = append(events, core.NewSecurityEvent("beacon", "198.51.100.9", core.SeverityLow))

	results, err := fx.engine.ProcessBatch(ctx, events)
	require.NoError(t, err)
	require.Len(t, results, 6)

	// Every result keeps its event, in input order; the batch-scoped alert
	// lands on the last one.
	for i, res := range results {
		assert.Same(t, events[i], res.Event)
		if i < len(results)-1 {
			assert.Empty(t, res.Alerts)
		}
	}

	last := results[len(results)-1]
	require.Len(t, last.Alerts, 1)
	assert.Equal(t, AlertTypeBatchCorrelation, last.Alerts[0].AlertType)
	assert.Len(t, last.Alerts[0].SourceEvents, 5)
	assert.Contains(t, last.Alerts[0].AffectedAssets, "198.51.100.3")

	require.NotNil(t, fx.alerts)
	assert.Len(t, fx.alerts.Alerts(), 1)
}

func TestProcessBatchBelowThresholdNoBatchAlert(t *testing.T) {
	fx := newTestEngine(t)

	events := make([]*core.SecurityEvent, 0, 4)
	for i := 0; i < 4; i++ {
		events = append(events, core.NewSecurityEvent("beacon", "198.51.100.3", core.SeverityLow))
	}

	results, err := fx.engine.ProcessBatch(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, res := range results {
		assert.Empty(t, res.Alerts)
	}
}

func TestProcessBatchEquivalentBatchesProduceEquivalentAlerts(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	makeBatch := func() []*core.SecurityEvent {
		events := make([]*core.SecurityEvent, 0, 5)
		for i := 0; i < 5; i++ {
			events = append(events, core.NewSecurityEvent("beacon", "198.51.100.3", core.SeverityLow))
		}
		return events
	}

	first, err := fx.engine.ProcessBatch(ctx, makeBatch())
	require.NoError(t, err)
	second, err := fx.engine.ProcessBatch(ctx, makeBatch())
	require.NoError(t, err)

	require.Len(t, first, 5)
	require.Len(t, second, 5)
	require.Len(t, first[4].Alerts, 1)
	require.Len(t, second[4].Alerts, 1)

	// Same situation, same alert, modulo generated IDs and timestamps.
	a, b := first[4].Alerts[0], second[4].Alerts[0]
	assert.Equal(t, a.AlertType, b.AlertType)
	assert.Equal(t, a.Severity, b.Severity)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, a.AffectedAssets, b.AffectedAssets)
	assert.NotEqual(t, a.AlertID, b.AlertID)
}

func TestProcessBatchEmpty(t *testing.T) {
	fx := newTestEngine(t)
	results, err := fx.engine.ProcessBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngineStats(t *testing.T) {
	fx := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fx.engine.ProcessEvent(ctx, core.NewSecurityEvent("beacon", "10.0.0.1", core.SeverityLow))
		require.NoError(t, err)
	}

	stats := fx.engine.Stats()
	assert.Equal(t, uint64(3), stats.EventsProcessed)
	assert.Equal(t, 3, stats.WindowEvents)
	assert.Zero(t, stats.AlertsGenerated)
}

func TestDedupeByFingerprint(t *testing.T) {
	a := core.NewSecurityAlert("x", core.SeverityLow)
	a.Fingerprint = "same"
	b := core.NewSecurityAlert("x", core.SeverityLow)
	b.Fingerprint = "same"
	c := core.NewSecurityAlert("y", core.SeverityLow)
	c.Fingerprint = "other"

	out := dedupeByFingerprint([]*core.SecurityAlert{a, b, c})
	require.Len(t, out, 2)
	assert.Same(t, a, out[0])
	assert.Same(t, c, out[1])
}
