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

// StageGeo is the stage name for geolocation enrichment
const StageGeo = "geoip"

// GeoProvider resolves an IP to location data.
type GeoProvider interface {
	Locate(ctx context.Context, ip string) (map[string]interface{}, error)
}

// HTTPGeoProvider queries a geolocation service over HTTP.
type HTTPGeoProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGeoProvider creates a provider for the given endpoint.
func NewHTTPGeoProvider(endpoint string) *HTTPGeoProvider {
	return &HTTPGeoProvider{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// Locate queries the geolocation service for an IP.
func (p *HTTPGeoProvider) Locate(ctx context.Context, ip string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", p.endpoint, ip), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create geo request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query geo service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo service returned status %d", resp.StatusCode)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode geo response: %w", err)
	}
	return payload, nil
}

// GeoStage attaches geolocation context to events, cached per IP.
type GeoStage struct {
	provider GeoProvider
	cache    Cache
	logger   *zap.SugaredLogger
}

// NewGeoStage creates the geolocation enrichment stage.
func NewGeoStage(provider GeoProvider, cache Cache, logger *zap.SugaredLogger) *GeoStage {
	return &GeoStage{
		provider: provider,
		cache:    cache,
		logger:   logger,
	}
}

// Name returns the stage name
func (s *GeoStage) Name() string {
	return StageGeo
}

// Enrich resolves the event's source IP location and records it under the
// geo_location namespace.
func (s *GeoStage) Enrich(ctx context.Context, event *core.SecurityEvent) error {
	ip := event.SourceIP
	if ip == "" {
		return nil
	}

	if payload, ok := s.cache.Get(ctx, ip); ok {
		event.ApplyEnrichment(core.NamespaceGeoLocation, s.Name(), payload)
		return nil
	}

	payload, err := s.provider.Locate(ctx, ip)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]interface{}{"known": false}
	}

	s.cache.Set(ctx, ip, payload)
	event.ApplyEnrichment(core.NamespaceGeoLocation, s.Name(), payload)
	return nil
}
