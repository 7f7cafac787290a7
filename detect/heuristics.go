package detect

import (
	"fmt"
	"time"

	"argus/config"
	"argus/core"
	"argus/store"
)

// Event types the built-in heuristics react to by default. The sets are
// configurable; these are the default members.
const (
	EventTypeFailedLogin         = "failed_login"
	EventTypeAuthFailure         = "authentication_failure"
	EventTypePrivilegeEscalation = "privilege_escalation"
	EventTypeAdminAccess         = "admin_access"
	EventTypeSudoCommand         = "sudo_command"
	EventTypeNetworkConnection   = "network_connection"
)

// Alert types produced by the built-in heuristics
const (
	AlertTypeBruteForce          = "brute_force_attack"
	AlertTypePrivilegeEscalation = "privilege_escalation"
	AlertTypeTrafficVolume       = "high_traffic_volume"
	AlertTypeBatchCorrelation    = "batch_correlation"
)

// heuristics are the hardcoded detections that run on every event alongside
// the configured rules. Each heuristic fires only when the current event is
// one of its trigger types, so old window contents never re-alert on their
// own. The type sets come from config; a heuristic counts every event whose
// type is in its set, not just events matching the trigger exactly.
type heuristics struct {
	cfg   *config.Config
	store *store.WindowedEventStore
}

func newHeuristics(cfg *config.Config, st *store.WindowedEventStore) *heuristics {
	return &heuristics{cfg: cfg, store: st}
}

// evaluate runs all heuristics against the current event and returns any
// alerts they produce.
func (h *heuristics) evaluate(event *core.SecurityEvent) []*core.SecurityAlert {
	var alerts []*core.SecurityAlert
	switch {
	case containsString(h.cfg.Correlation.BruteForce.EventTypes, event.EventType):
		if a := h.bruteForce(event); a != nil {
			alerts = append(alerts, a)
		}
	case containsString(h.cfg.Correlation.PrivilegeEscalation.EventTypes, event.EventType):
		if a := h.privilegeEscalation(event); a != nil {
			alerts = append(alerts, a)
		}
	case containsString(h.cfg.Correlation.TrafficVolume.EventTypes, event.EventType):
		if a := h.trafficVolume(event); a != nil {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

// bruteForce fires when one source IP accumulates enough failed
// authentications inside the configured window.
func (h *heuristics) bruteForce(event *core.SecurityEvent) *core.SecurityAlert {
	if event.SourceIP == "" {
		return nil
	}
	cutoff := event.Timestamp.Add(-h.cfg.Correlation.BruteForce.Window)
	matched := filterEvents(h.store.EventsBySourceIP(event.SourceIP), cutoff, h.cfg.Correlation.BruteForce.EventTypes)

	if len(matched) < h.cfg.Correlation.BruteForce.Threshold {
		return nil
	}
	return buildAlert(
		AlertTypeBruteForce,
		core.SeverityHigh,
		fmt.Sprintf("Brute force attack from %s", event.SourceIP),
		fmt.Sprintf("%d failed authentications from %s within %s",
			len(matched), event.SourceIP, h.cfg.Correlation.BruteForce.Window),
		"",
		matched,
	)
}

// privilegeEscalation fires on repeated privilege escalation attempts from
// one source IP. The threshold is low because legitimate escalation is rare.
func (h *heuristics) privilegeEscalation(event *core.SecurityEvent) *core.SecurityAlert {
	if event.SourceIP == "" {
		return nil
	}
	cutoff := event.Timestamp.Add(-h.cfg.Correlation.PrivilegeEscalation.Window)
	matched := filterEvents(h.store.EventsBySourceIP(event.SourceIP), cutoff, h.cfg.Correlation.PrivilegeEscalation.EventTypes)

	if len(matched) < h.cfg.Correlation.PrivilegeEscalation.Threshold {
		return nil
	}
	return buildAlert(
		AlertTypePrivilegeEscalation,
		core.SeverityCritical,
		fmt.Sprintf("Privilege escalation attempts from %s", event.SourceIP),
		fmt.Sprintf("%d privilege escalation attempts from %s within %s",
			len(matched), event.SourceIP, h.cfg.Correlation.PrivilegeEscalation.Window),
		"",
		matched,
	)
}

// trafficVolume fires when network connection volume across all sources
// exceeds the configured threshold inside the window. The alert references a
// capped sample of the events rather than all of them.
func (h *heuristics) trafficVolume(event *core.SecurityEvent) *core.SecurityAlert {
	cutoff := event.Timestamp.Add(-h.cfg.Correlation.TrafficVolume.Window)

	var candidates []*core.SecurityEvent
	for _, eventType := range h.cfg.Correlation.TrafficVolume.EventTypes {
		candidates = append(candidates, h.store.EventsByType(eventType)...)
	}
	matched := filterEvents(candidates, cutoff, h.cfg.Correlation.TrafficVolume.EventTypes)

	if len(matched) <= h.cfg.Correlation.TrafficVolume.Threshold {
		return nil
	}

	sample := matched
	if max := h.cfg.Correlation.TrafficVolume.MaxSourceEvents; len(sample) > max {
		sample = sample[len(sample)-max:]
	}
	return buildAlert(
		AlertTypeTrafficVolume,
		core.SeverityMedium,
		"Unusually high network connection volume",
		fmt.Sprintf("%d network connections within %s exceeds threshold %d",
			len(matched), h.cfg.Correlation.TrafficVolume.Window, h.cfg.Correlation.TrafficVolume.Threshold),
		"",
		sample,
	)
}

// filterEvents keeps events of the given types newer than the cutoff.
func filterEvents(events []*core.SecurityEvent, cutoff time.Time, eventTypes []string) []*core.SecurityEvent {
	out := make([]*core.SecurityEvent, 0, len(events))
	for _, e := range events {
		if containsString(eventTypes, e.EventType) && !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
