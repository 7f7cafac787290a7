package enrich

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"argus/core"
)

// StageReputation is the stage name for IP reputation enrichment
const StageReputation = "reputation"

// ReputationProvider looks up reputation data for an IP. A nil map with a
// nil error means the provider knows nothing about the IP, which is a valid
// empty result.
type ReputationProvider interface {
	Lookup(ctx context.Context, ip string) (map[string]interface{}, error)
}

// HTTPReputationProvider queries a reputation service over HTTP, guarded by
// a circuit breaker so a dead service stops costing a timeout per event.
type HTTPReputationProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	breaker  *core.CircuitBreaker
}

// NewHTTPReputationProvider creates a provider for the given endpoint.
func NewHTTPReputationProvider(endpoint, apiKey string) *HTTPReputationProvider {
	return &HTTPReputationProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		breaker: core.MustNewCircuitBreaker(core.DefaultBreakerConfig()),
	}
}

// Lookup queries the reputation service for an IP.
func (p *HTTPReputationProvider) Lookup(ctx context.Context, ip string) (map[string]interface{}, error) {
	if err := p.breaker.Allow(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", p.endpoint, ip), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create reputation request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.breaker.RecordFailure()
		return nil, fmt.Errorf("failed to query reputation service: %w", err)
	}
	defer resp.Body.Close()

	// Unknown IP is a valid empty result, not an error.
	if resp.StatusCode == http.StatusNotFound {
		p.breaker.RecordSuccess()
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		p.breaker.RecordFailure()
		return nil, fmt.Errorf("reputation service returned status %d", resp.StatusCode)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		p.breaker.RecordFailure()
		return nil, fmt.Errorf("failed to decode reputation response: %w", err)
	}
	p.breaker.RecordSuccess()
	return payload, nil
}

// ReputationStage attaches IP reputation context to events. Lookups go
// through a local TTL cache and an optional shared cache before hitting the
// provider.
type ReputationStage struct {
	provider ReputationProvider
	local    Cache
	shared   Cache // may be nil
	logger   *zap.SugaredLogger
}

// NewReputationStage creates the reputation enrichment stage. shared may be
// nil when no Redis cache is configured.
func NewReputationStage(provider ReputationProvider, local, shared Cache, logger *zap.SugaredLogger) *ReputationStage {
	return &ReputationStage{
		provider: provider,
		local:    local,
		shared:   shared,
		logger:   logger,
	}
}

// Name returns the stage name
func (s *ReputationStage) Name() string {
	return StageReputation
}

// Enrich looks up the event's source IP and records the result under the
// ip_reputation namespace.
func (s *ReputationStage) Enrich(ctx context.Context, event *core.SecurityEvent) error {
	ip := event.SourceIP
	if ip == "" {
		return nil
	}

	if payload, ok := s.local.Get(ctx, ip); ok {
		event.ApplyEnrichment(core.NamespaceIPReputation, s.Name(), payload)
		return nil
	}
	if s.shared != nil {
		if payload, ok := s.shared.Get(ctx, ip); ok {
			s.local.Set(ctx, ip, payload)
			event.ApplyEnrichment(core.NamespaceIPReputation, s.Name(), payload)
			return nil
		}
	}

	payload, err := s.provider.Lookup(ctx, ip)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]interface{}{"known": false}
	}

	s.local.Set(ctx, ip, payload)
	if s.shared != nil {
		s.shared.Set(ctx, ip, payload)
	}
	event.ApplyEnrichment(core.NamespaceIPReputation, s.Name(), payload)
	return nil
}
