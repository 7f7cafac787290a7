// Package detect implements the correlation engine: rule evaluation over the
// event window, the built-in heuristics, rule conflict checking and batch
// processing.
package detect

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"argus/config"
	"argus/core"
	"argus/enrich"
	"argus/metrics"
	"argus/storage"
	"argus/store"
)

// AlertTypeRuleCorrelation marks alerts produced by configured rules, as
// opposed to the built-in heuristics.
const AlertTypeRuleCorrelation = "rule_correlation"

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	EventsProcessed uint64 `json:"events_processed"`
	AlertsGenerated uint64 `json:"alerts_generated"`
	RulesMatched    uint64 `json:"rules_matched"`
	WindowEvents    int    `json:"window_events"`
	ActiveRules     int    `json:"active_rules"`
}

// Engine correlates security events. One event flows: normalize, enrich
// (outside any lock), insert into the window, evaluate rules and heuristics,
// persist whatever fired. The engine holds the active rule set in memory,
// sorted by priority; mutations go through ActivateRule so every active rule
// has passed validation and conflict checking.
type Engine struct {
	cfg      *config.Config
	store    *store.WindowedEventStore
	pipeline *enrich.Pipeline
	rules    storage.RuleRepository
	matches  storage.MatchRepository
	alerts   storage.AlertRepository
	heur     *heuristics
	pool     *core.WorkerPool
	logger   *zap.SugaredLogger

	ruleMu      sync.RWMutex
	activeRules []*core.CorrelationRule

	eventsProcessed atomic.Uint64
	alertsGenerated atomic.Uint64
	rulesMatched    atomic.Uint64
}

// NewEngine wires the engine together. Call Start before processing events.
func NewEngine(
	cfg *config.Config,
	st *store.WindowedEventStore,
	pipeline *enrich.Pipeline,
	rules storage.RuleRepository,
	matches storage.MatchRepository,
	alerts storage.AlertRepository,
	logger *zap.SugaredLogger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		pipeline: pipeline,
		rules:    rules,
		matches:  matches,
		alerts:   alerts,
		heur:     newHeuristics(cfg, st),
		logger:   logger,
	}
}

// Start loads the active rule set, starts the window cleanup and the batch
// worker pool.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.ReloadRules(ctx); err != nil {
		return err
	}

	e.store.Start(ctx)
	e.pool = core.NewWorkerPool(ctx, e.cfg.Correlation.BatchWorkers, e.cfg.Correlation.BatchQueue, e.logger)
	e.pool.Start()

	e.logger.Infow("Correlation engine started",
		"active_rules", e.ActiveRuleCount(),
		"enrichment_stages", e.pipeline.Stages())
	return nil
}

// Stop shuts down the worker pool and the window cleanup loop.
func (e *Engine) Stop() {
	if e.pool != nil {
		e.pool.Stop()
	}
	e.store.Stop()
	e.logger.Infow("Correlation engine stopped")
}

// ReloadRules replaces the in-memory active rule set from the repository.
func (e *Engine) ReloadRules(ctx context.Context) error {
	active, err := e.rules.FindActive(ctx)
	if err != nil {
		return newEngineError("rule load", "", err)
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})

	e.ruleMu.Lock()
	e.activeRules = active
	e.ruleMu.Unlock()
	return nil
}

// ActivateRule validates a rule, checks it against the active set and saves
// it. Blocking conflicts (contradiction, shadow) reject the rule; redundant
// conflicts are returned as advisories alongside a successful activation.
func (e *Engine) ActivateRule(ctx context.Context, rule *core.CorrelationRule) ([]RuleConflict, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	e.ruleMu.RLock()
	conflicts := DetectConflicts(rule, e.activeRules)
	e.ruleMu.RUnlock()

	if HasBlockingConflict(conflicts) {
		return conflicts, fmt.Errorf("%w: rule %s", ErrRuleConflict, rule.ID)
	}
	for _, c := range conflicts {
		e.logger.Warnw("Rule activated with advisory conflict",
			"rule_id", c.RuleID, "conflicts_with", c.ConflictsWith, "type", c.Type)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if err := e.rules.Save(ctx, rule); err != nil {
		return conflicts, newEngineError("rule save", "", err)
	}
	if err := e.ReloadRules(ctx); err != nil {
		return conflicts, err
	}
	return conflicts, nil
}

// ProcessEvent runs the full single-event path and returns the alerts it
// produced. A repository failure aborts with an error; detection itself
// never fails an event.
func (e *Engine) ProcessEvent(ctx context.Context, event *core.SecurityEvent) ([]*core.SecurityAlert, error) {
	started := time.Now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(started).Seconds())
	}()

	event.Normalize()
	e.pipeline.Process(ctx, event)
	e.store.Insert(event)

	alerts, err := e.correlate(ctx, event)
	if err != nil {
		return nil, err
	}
	alerts = append(alerts, e.heur.evaluate(event)...)
	alerts = dedupeByFingerprint(alerts)

	if err := e.persistAlerts(ctx, event.EventID, alerts); err != nil {
		return nil, err
	}

	e.eventsProcessed.Add(1)
	metrics.EventsProcessed.Inc()
	return alerts, nil
}

// BatchResult pairs one processed event with the alerts generated for it.
type BatchResult struct {
	Event  *core.SecurityEvent
	Alerts []*core.SecurityAlert
}

// ProcessBatch enriches a batch in parallel, then correlates the events in
// input order so results are deterministic. Each result pairs an event with
// the alerts it produced; when one source IP dominates the batch, a
// batch_correlation alert is appended to the last result.
func (e *Engine) ProcessBatch(ctx context.Context, events []*core.SecurityEvent) ([]BatchResult, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if e.pool == nil {
		return nil, ErrEngineStopped
	}

	for _, ev := range events {
		ev.Normalize()
	}

	// Enrichment is the slow, network-bound part. Fan it out; fall back to
	// inline enrichment when the queue is full so a burst degrades to
	// sequential instead of failing.
	var wg sync.WaitGroup
	for _, ev := range events {
		ev := ev
		wg.Add(1)
		task := func() {
			defer wg.Done()
			e.pipeline.Process(ctx, ev)
		}
		if err := e.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	results := make([]BatchResult, 0, len(events))
	for _, ev := range events {
		e.store.Insert(ev)

		evAlerts, err := e.correlate(ctx, ev)
		if err != nil {
			return nil, err
		}
		evAlerts = append(evAlerts, e.heur.evaluate(ev)...)
		results = append(results, BatchResult{Event: ev, Alerts: evAlerts})

		e.eventsProcessed.Add(1)
		metrics.EventsProcessed.Inc()
	}

	last := len(results) - 1
	results[last].Alerts = append(results[last].Alerts, e.batchCorrelation(events)...)

	// One fingerprint set spans the whole batch so the same situation is
	// reported once per call, under its first triggering event.
	seen := make(map[string]struct{})
	var toPersist []*core.SecurityAlert
	for i := range results {
		results[i].Alerts = dedupeAgainst(seen, results[i].Alerts)
		toPersist = append(toPersist, results[i].Alerts...)
	}

	if err := e.persistAlerts(ctx, "", toPersist); err != nil {
		return nil, err
	}
	return results, nil
}

// correlate evaluates the active rule set against the current event.
func (e *Engine) correlate(ctx context.Context, event *core.SecurityEvent) ([]*core.SecurityAlert, error) {
	e.ruleMu.RLock()
	rules := e.activeRules
	e.ruleMu.RUnlock()

	var alerts []*core.SecurityAlert
	for _, rule := range rules {
		if !rule.Matches(event) {
			continue
		}

		linked := e.linkedEvents(rule, event)
		if len(linked) < rule.MinEvents {
			continue
		}

		event.ApplyEnrichment(core.NamespaceCorrelationInfo, rule.ID, map[string]interface{}{
			"rule_name":    rule.Name,
			"linked_count": len(linked),
		})

		alert := buildAlert(
			AlertTypeRuleCorrelation,
			rule.Severity,
			rule.Name,
			fmt.Sprintf("%s: %d correlated events within %s", rule.Description, len(linked), rule.Window()),
			rule.ID,
			linked,
		)
		alerts = append(alerts, alert)

		if err := e.matches.Save(ctx, core.NewRuleMatch(rule.ID, linked)); err != nil {
			return nil, newEngineError("match save", event.EventID, err)
		}
		if err := e.rules.IncrementTriggerCount(ctx, rule.ID); err != nil {
			e.logger.Warnw("Failed to increment rule trigger count", "rule_id", rule.ID, "error", err)
		}

		e.rulesMatched.Add(1)
		metrics.RulesMatched.WithLabelValues(rule.ID).Inc()
	}
	return alerts, nil
}

// linkedEvents collects window events that match the rule, fall inside its
// time window relative to the current event, and share the rule's
// correlation field values with it. The per-IP index narrows the scan when
// the rule correlates on source_ip; otherwise the per-type index does.
func (e *Engine) linkedEvents(rule *core.CorrelationRule, event *core.SecurityEvent) []*core.SecurityEvent {
	var candidates []*core.SecurityEvent
	if containsString(rule.CorrelationFields, "source_ip") && event.SourceIP != "" {
		candidates = e.store.EventsBySourceIP(event.SourceIP)
	} else if containsString(rule.CorrelationFields, "event_type") && event.EventType != "" {
		candidates = e.store.EventsByType(event.EventType)
	} else {
		candidates = e.store.Recent(e.store.Len())
	}

	cutoff := event.Timestamp.Add(-rule.Window())
	linked := make([]*core.SecurityEvent, 0, len(candidates))
	for _, c := range candidates {
		if c.Timestamp.Before(cutoff) || c.Timestamp.After(event.Timestamp) {
			continue
		}
		if !rule.Matches(c) {
			continue
		}
		if !sharesCorrelationFields(rule.CorrelationFields, event, c) {
			continue
		}
		linked = append(linked, c)
	}
	return linked
}

// batchCorrelation flags a source IP that dominates a single batch. This is
// batch-scoped: it looks only at the submitted events, not the window.
func (e *Engine) batchCorrelation(events []*core.SecurityEvent) []*core.SecurityAlert {
	byIP := make(map[string][]*core.SecurityEvent)
	order := make([]string, 0)
	for _, ev := range events {
		if ev.SourceIP == "" {
			continue
		}
		if _, seen := byIP[ev.SourceIP]; !seen {
			order = append(order, ev.SourceIP)
		}
		byIP[ev.SourceIP] = append(byIP[ev.SourceIP], ev)
	}

	var alerts []*core.SecurityAlert
	for _, ip := range order {
		grouped := byIP[ip]
		if len(grouped) < e.cfg.Correlation.BatchSourceThreshold {
			continue
		}
		alerts = append(alerts, buildAlert(
			AlertTypeBatchCorrelation,
			core.SeverityMedium,
			fmt.Sprintf("Concentrated activity from %s in one batch", ip),
			fmt.Sprintf("%d of %d batch events originate from %s", len(grouped), len(events), ip),
			"",
			grouped,
		))
	}
	return alerts
}

// persistAlerts saves alerts and bumps counters. A save failure surfaces as
// an EngineError; alerts saved before the failure stay saved.
func (e *Engine) persistAlerts(ctx context.Context, eventID string, alerts []*core.SecurityAlert) error {
	for _, alert := range alerts {
		if err := e.alerts.Save(ctx, alert); err != nil {
			return newEngineError("alert save", eventID, err)
		}
		e.alertsGenerated.Add(1)
		metrics.AlertsGenerated.WithLabelValues(alert.AlertType, alert.Severity.String()).Inc()

		e.logger.Infow("Alert generated",
			"alert_id", alert.AlertID,
			"alert_type", alert.AlertType,
			"severity", alert.Severity,
			"score", alert.CorrelationScore,
			"assets", len(alert.AffectedAssets))
	}
	return nil
}

// ActiveRuleCount returns the number of rules currently evaluated per event.
func (e *Engine) ActiveRuleCount() int {
	e.ruleMu.RLock()
	defer e.ruleMu.RUnlock()
	return len(e.activeRules)
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		EventsProcessed: e.eventsProcessed.Load(),
		AlertsGenerated: e.alertsGenerated.Load(),
		RulesMatched:    e.rulesMatched.Load(),
		WindowEvents:    e.store.Len(),
		ActiveRules:     e.ActiveRuleCount(),
	}
}

// dedupeByFingerprint keeps the first alert per fingerprint so one
// processing call never reports the same situation twice.
func dedupeByFingerprint(alerts []*core.SecurityAlert) []*core.SecurityAlert {
	if len(alerts) < 2 {
		return alerts
	}
	return dedupeAgainst(make(map[string]struct{}, len(alerts)), alerts)
}

// dedupeAgainst drops alerts whose fingerprint is already in seen and records
// the survivors.
func dedupeAgainst(seen map[string]struct{}, alerts []*core.SecurityAlert) []*core.SecurityAlert {
	out := alerts[:0]
	for _, a := range alerts {
		if _, dup := seen[a.Fingerprint]; dup {
			continue
		}
		seen[a.Fingerprint] = struct{}{}
		out = append(out, a)
	}
	return out
}

func containsString(values []string, name string) bool {
	for _, v := range values {
		if v == name {
			return true
		}
	}
	return false
}

// sharesCorrelationFields reports whether two events agree on every
// correlation field.
func sharesCorrelationFields(fields []string, a, b *core.SecurityEvent) bool {
	for _, f := range fields {
		av := a.Field(f)
		bv := b.Field(f)
		if av == nil || bv == nil {
			return false
		}
		if fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}
