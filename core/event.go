package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnrichmentNamespace identifies a namespace in the enrichment envelope.
// Each enrichment stage writes under its own key inside a namespace, so
// stages can never clobber each other's output.
type EnrichmentNamespace string

const (
	NamespaceIPReputation       EnrichmentNamespace = "ip_reputation"
	NamespaceGeoLocation        EnrichmentNamespace = "geo_location"
	NamespaceExternalValidation EnrichmentNamespace = "external_validation"
	NamespaceCorrelationInfo    EnrichmentNamespace = "correlation_info"
	NamespaceMetadata           EnrichmentNamespace = "metadata"
)

// SecurityEvent represents a normalized security occurrence. Core fields are
// set at creation and never mutated; only the enrichment envelope accumulates
// writes.
type SecurityEvent struct {
	EventID       string                 `json:"event_id" bson:"event_id"`
	EventType     string                 `json:"event_type" bson:"event_type"`
	SourceIP      string                 `json:"source_ip" bson:"source_ip"`
	DestinationIP string                 `json:"destination_ip" bson:"destination_ip"`
	Timestamp     time.Time              `json:"timestamp" bson:"timestamp"`
	Severity      Severity               `json:"severity" bson:"severity"`
	RawData       map[string]interface{} `json:"raw_data" bson:"raw_data"`

	// Enrichment envelope. Each namespace is keyed by enrichment-stage name.
	IPReputation       map[string]interface{} `json:"ip_reputation,omitempty" bson:"ip_reputation,omitempty"`
	GeoLocation        map[string]interface{} `json:"geo_location,omitempty" bson:"geo_location,omitempty"`
	ExternalValidation map[string]interface{} `json:"external_validation,omitempty" bson:"external_validation,omitempty"`
	CorrelationInfo    map[string]interface{} `json:"correlation_info,omitempty" bson:"correlation_info,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// NewSecurityEvent creates a new SecurityEvent with a generated UUID
func NewSecurityEvent(eventType, sourceIP string, severity Severity) *SecurityEvent {
	return &SecurityEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		SourceIP:  sourceIP,
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		RawData:   make(map[string]interface{}),
	}
}

// Normalize fills in the fields an upstream source may omit. It never
// touches fields that are already set.
func (e *SecurityEvent) Normalize() {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" || !e.Severity.IsValid() {
		e.Severity = SeverityInfo
	}
	if e.RawData == nil {
		e.RawData = make(map[string]interface{})
	}
}

// ApplyEnrichment records stage output under the given namespace. Applying
// the same (namespace, stage) pair twice overwrites the previous value, so
// replaying an enrichment is idempotent.
func (e *SecurityEvent) ApplyEnrichment(ns EnrichmentNamespace, stage string, data interface{}) {
	m := e.namespace(ns)
	if m == nil {
		return
	}
	(*m)[stage] = data
}

// Enrichment returns the output a stage wrote under a namespace, if any.
func (e *SecurityEvent) Enrichment(ns EnrichmentNamespace, stage string) (interface{}, bool) {
	m := e.namespace(ns)
	if m == nil || *m == nil {
		return nil, false
	}
	v, ok := (*m)[stage]
	return v, ok
}

func (e *SecurityEvent) namespace(ns EnrichmentNamespace) *map[string]interface{} {
	var m *map[string]interface{}
	switch ns {
	case NamespaceIPReputation:
		m = &e.IPReputation
	case NamespaceGeoLocation:
		m = &e.GeoLocation
	case NamespaceExternalValidation:
		m = &e.ExternalValidation
	case NamespaceCorrelationInfo:
		m = &e.CorrelationInfo
	case NamespaceMetadata:
		m = &e.Metadata
	default:
		return nil
	}
	if *m == nil {
		*m = make(map[string]interface{})
	}
	return m
}

// Field resolves a dotted path against the event, e.g. "source_ip",
// "raw_data.username" or "ip_reputation.reputation.score". Returns nil when
// the path does not resolve.
func (e *SecurityEvent) Field(path string) interface{} {
	parts := strings.Split(path, ".")

	current := map[string]interface{}{
		"event_id":                               e.EventID,
		"event_type":                             e.EventType,
		"source_ip":                              e.SourceIP,
		"destination_ip":                         e.DestinationIP,
		"timestamp":                              e.Timestamp,
		"severity":                               string(e.Severity),
		"raw_data":                               e.RawData,
		string(NamespaceIPReputation):            e.IPReputation,
		string(NamespaceGeoLocation):             e.GeoLocation,
		string(NamespaceExternalValidation):      e.ExternalValidation,
		string(NamespaceCorrelationInfo):         e.CorrelationInfo,
		string(NamespaceMetadata):                e.Metadata,
	}

	// Top-level raw data keys are addressable without the raw_data prefix,
	// but never shadow the core fields above.
	for k, v := range e.RawData {
		if _, exists := current[k]; !exists {
			current[k] = v
		}
	}

	for i, part := range parts {
		val, ok := current[part]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return val
		}
		next, ok := val.(map[string]interface{})
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// Clone returns a deep-enough copy for window snapshots: core fields are
// copied, envelope maps are shallow-copied per namespace.
func (e *SecurityEvent) Clone() *SecurityEvent {
	c := *e
	c.RawData = copyMap(e.RawData)
	c.IPReputation = copyMap(e.IPReputation)
	c.GeoLocation = copyMap(e.GeoLocation)
	c.ExternalValidation = copyMap(e.ExternalValidation)
	c.CorrelationInfo = copyMap(e.CorrelationInfo)
	c.Metadata = copyMap(e.Metadata)
	return &c
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
