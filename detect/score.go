package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"argus/core"
)

// tightClusterSpan is the event time span under which correlated events are
// considered a tight cluster and score higher.
const tightClusterSpan = 5 * time.Minute

// correlationScore rates how strongly a set of events belongs together on a
// [0,1] scale. Tightly clustered events from a single source with severe
// events score highest.
func correlationScore(events []*core.SecurityEvent) float64 {
	if len(events) == 0 {
		return 0
	}

	score := 0.2

	earliest, latest := events[0].Timestamp, events[0].Timestamp
	sources := make(map[string]struct{})
	weightSum := 0.0
	for _, e := range events {
		if e.Timestamp.Before(earliest) {
			earliest = e.Timestamp
		}
		if e.Timestamp.After(latest) {
			latest = e.Timestamp
		}
		if e.SourceIP != "" {
			sources[e.SourceIP] = struct{}{}
		}
		weightSum += e.Severity.Weight()
	}

	if latest.Sub(earliest) < tightClusterSpan {
		score += 0.3
	}
	if len(sources) == 1 && len(events) > 1 {
		score += 0.2
	}
	score += 0.3 * (weightSum / float64(len(events)))

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// affectedAssets collects the unique source and destination IPs across the
// events, sorted for stable output.
func affectedAssets(events []*core.SecurityEvent) []string {
	seen := make(map[string]struct{})
	for _, e := range events {
		if e.SourceIP != "" {
			seen[e.SourceIP] = struct{}{}
		}
		if e.DestinationIP != "" {
			seen[e.DestinationIP] = struct{}{}
		}
	}
	assets := make([]string, 0, len(seen))
	for ip := range seen {
		assets = append(assets, ip)
	}
	sort.Strings(assets)
	return assets
}

// remediationSuggestions derives response guidance from the alert type plus a
// generic pointer at the affected assets. At most five assets are named so a
// wide alert does not produce an unreadable suggestion.
func remediationSuggestions(alertType string, assets []string) []string {
	var suggestions []string

	switch {
	case strings.Contains(alertType, "brute_force"):
		suggestions = append(suggestions,
			"Block the source IP at the perimeter firewall",
			"Enforce account lockout after repeated failed logins",
			"Require MFA for the targeted accounts",
		)
	case strings.Contains(alertType, "malware"):
		suggestions = append(suggestions,
			"Isolate the affected hosts from the network",
			"Run a full antivirus scan on the affected hosts",
		)
	case strings.Contains(alertType, "anomaly"):
		suggestions = append(suggestions,
			"Review recent traffic patterns against the baseline",
			"Check for unauthorized configuration changes",
		)
	case strings.Contains(alertType, "privilege_escalation"):
		suggestions = append(suggestions,
			"Review recent privilege grants and sudo activity",
			"Rotate credentials for the affected accounts",
		)
	}

	named := assets
	if len(named) > 5 {
		named = named[:5]
	}
	if len(named) > 0 {
		suggestions = append(suggestions,
			fmt.Sprintf("Examine affected IPs: %s", strings.Join(named, ", ")))
	}
	return suggestions
}

// alertFingerprint is a stable digest over the alert's identity: its type,
// the rule that produced it, and the assets it covers. Two alerts with the
// same fingerprint describe the same situation.
func alertFingerprint(alertType, ruleID string, assets []string) string {
	sorted := make([]string, len(assets))
	copy(sorted, assets)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(alertType))
	h.Write([]byte{0})
	h.Write([]byte(ruleID))
	for _, a := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// buildAlert assembles a fully populated alert from correlated events.
func buildAlert(alertType string, severity core.Severity, title, description, ruleID string, events []*core.SecurityEvent) *core.SecurityAlert {
	alert := core.NewSecurityAlert(alertType, severity)
	alert.Title = title
	alert.Description = description
	alert.RuleID = ruleID

	alert.SourceEvents = make([]*core.SecurityEvent, len(events))
	copy(alert.SourceEvents, events)

	alert.CorrelationScore = correlationScore(events)
	alert.AffectedAssets = affectedAssets(events)
	alert.RemediationSuggestions = remediationSuggestions(alertType, alert.AffectedAssets)
	alert.Fingerprint = alertFingerprint(alertType, ruleID, alert.AffectedAssets)
	return alert
}
