package enrich

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"argus/core"
)

// StageExternal is the stage name for external security-tool validation
const StageExternal = "external_tool"

// ExternalValidator submits an event summary to an external security tool
// and returns its verdict context.
type ExternalValidator interface {
	Validate(ctx context.Context, event *core.SecurityEvent) (map[string]interface{}, error)
}

// HTTPExternalValidator posts event summaries to a security tool endpoint.
// Results are not cached: the verdict depends on the event, not just the IP.
type HTTPExternalValidator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPExternalValidator creates a validator for the given endpoint.
func NewHTTPExternalValidator(endpoint, apiKey string) *HTTPExternalValidator {
	return &HTTPExternalValidator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
	}
}

// Validate submits the event summary for validation.
func (v *HTTPExternalValidator) Validate(ctx context.Context, event *core.SecurityEvent) (map[string]interface{}, error) {
	summary := map[string]interface{}{
		"event_id":       event.EventID,
		"event_type":     event.EventType,
		"source_ip":      event.SourceIP,
		"destination_ip": event.DestinationIP,
		"severity":       event.Severity.String(),
		"timestamp":      event.Timestamp,
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("X-API-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query validation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validation service returned status %d", resp.StatusCode)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode validation response: %w", err)
	}
	return payload, nil
}

// ExternalStage attaches the external tool's verdict to events under the
// external_validation namespace.
type ExternalStage struct {
	validator ExternalValidator
	logger    *zap.SugaredLogger
}

// NewExternalStage creates the external validation stage.
func NewExternalStage(validator ExternalValidator, logger *zap.SugaredLogger) *ExternalStage {
	return &ExternalStage{validator: validator, logger: logger}
}

// Name returns the stage name
func (s *ExternalStage) Name() string {
	return StageExternal
}

// Enrich submits the event for external validation.
func (s *ExternalStage) Enrich(ctx context.Context, event *core.SecurityEvent) error {
	payload, err := s.validator.Validate(ctx, event)
	if err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	event.ApplyEnrichment(core.NamespaceExternalValidation, s.Name(), payload)
	return nil
}
