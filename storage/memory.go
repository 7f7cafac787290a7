package storage

import (
	"context"
	"sync"
	"time"

	"argus/core"
)

// MemoryRuleRepository is an in-memory RuleRepository. It backs the engine
// when MongoDB is disabled and all unit tests.
type MemoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*core.CorrelationRule
}

// NewMemoryRuleRepository creates an empty in-memory rule repository
func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{rules: make(map[string]*core.CorrelationRule)}
}

// FindActive returns all enabled rules
func (r *MemoryRuleRepository) FindActive(ctx context.Context) ([]*core.CorrelationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*core.CorrelationRule
	for _, rule := range r.rules {
		if rule.Enabled {
			active = append(active, rule)
		}
	}
	return active, nil
}

// FindAll returns every stored rule
func (r *MemoryRuleRepository) FindAll(ctx context.Context) ([]*core.CorrelationRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*core.CorrelationRule, 0, len(r.rules))
	for _, rule := range r.rules {
		all = append(all, rule)
	}
	return all, nil
}

// Save inserts or replaces a rule
func (r *MemoryRuleRepository) Save(ctx context.Context, rule *core.CorrelationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *rule
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = time.Now().UTC()
	r.rules[rule.ID] = &stored
	return nil
}

// IncrementTriggerCount bumps a rule's trigger counter
func (r *MemoryRuleRepository) IncrementTriggerCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	rule.TriggerCount++
	return nil
}

// MemoryMatchRepository is an in-memory MatchRepository.
type MemoryMatchRepository struct {
	mu      sync.RWMutex
	matches []*core.RuleMatch
}

// NewMemoryMatchRepository creates an empty in-memory match repository
func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{}
}

// Save appends a match record
func (r *MemoryMatchRepository) Save(ctx context.Context, match *core.RuleMatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, match)
	return nil
}

// Matches returns a snapshot of all saved matches
func (r *MemoryMatchRepository) Matches() []*core.RuleMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.RuleMatch, len(r.matches))
	copy(out, r.matches)
	return out
}

// MemoryAlertRepository is an in-memory AlertRepository.
type MemoryAlertRepository struct {
	mu     sync.RWMutex
	alerts map[string]*core.SecurityAlert
	order  []string
}

// NewMemoryAlertRepository creates an empty in-memory alert repository
func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{alerts: make(map[string]*core.SecurityAlert)}
}

// Save inserts or replaces an alert
func (r *MemoryAlertRepository) Save(ctx context.Context, alert *core.SecurityAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.alerts[alert.AlertID]; !exists {
		r.order = append(r.order, alert.AlertID)
	}
	r.alerts[alert.AlertID] = alert
	return nil
}

// Get returns an alert by ID
func (r *MemoryAlertRepository) Get(ctx context.Context, id string) (*core.SecurityAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// UpdateStatus transitions an alert's status, enforcing the lifecycle.
func (r *MemoryAlertRepository) UpdateStatus(ctx context.Context, id string, status core.AlertStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert, ok := r.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	return alert.TransitionTo(status)
}

// Alerts returns all saved alerts in insertion order
func (r *MemoryAlertRepository) Alerts() []*core.SecurityAlert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*core.SecurityAlert, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.alerts[id])
	}
	return out
}
