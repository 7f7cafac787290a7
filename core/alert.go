package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	// AlertStatusNew indicates an alert that hasn't been reviewed
	AlertStatusNew AlertStatus = "new"
	// AlertStatusProcessed indicates an alert that has been handled
	AlertStatusProcessed AlertStatus = "processed"
	// AlertStatusFalsePositive indicates an alert dismissed as noise
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// String returns the string representation
func (s AlertStatus) String() string {
	return string(s)
}

// IsValid checks if the status is valid
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertStatusNew, AlertStatusProcessed, AlertStatusFalsePositive:
		return true
	default:
		return false
	}
}

// validTransitions defines allowed alert state transitions. Processed and
// false_positive are terminal.
var validTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusNew:           {AlertStatusProcessed, AlertStatusFalsePositive},
	AlertStatusProcessed:     {},
	AlertStatusFalsePositive: {},
}

// SecurityAlert is a synthesized alert over one or more correlated events.
type SecurityAlert struct {
	AlertID                string           `json:"alert_id" bson:"_id"`
	AlertType              string           `json:"alert_type" bson:"alert_type"`
	Severity               Severity         `json:"severity" bson:"severity"`
	Title                  string           `json:"title" bson:"title"`
	Description            string           `json:"description" bson:"description"`
	SourceEvents           []*SecurityEvent `json:"source_events" bson:"source_events"`
	CorrelationScore       float64          `json:"correlation_score" bson:"correlation_score"`
	AffectedAssets         []string         `json:"affected_assets" bson:"affected_assets"`
	RemediationSuggestions []string         `json:"remediation_suggestions" bson:"remediation_suggestions"`
	Status                 AlertStatus      `json:"status" bson:"status"`
	Fingerprint            string           `json:"fingerprint" bson:"fingerprint"`
	RuleID                 string           `json:"rule_id,omitempty" bson:"rule_id,omitempty"`
	CreatedAt              time.Time        `json:"created_at" bson:"created_at"`
}

// NewSecurityAlert creates an alert in the new state with a generated ID.
func NewSecurityAlert(alertType string, severity Severity) *SecurityAlert {
	return &SecurityAlert{
		AlertID:   uuid.New().String(),
		AlertType: alertType,
		Severity:  severity,
		Status:    AlertStatusNew,
		CreatedAt: time.Now().UTC(),
	}
}

// TransitionTo validates and executes an alert state transition.
func (a *SecurityAlert) TransitionTo(newStatus AlertStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid alert status: %s", newStatus)
	}

	allowed, exists := validTransitions[a.Status]
	if !exists {
		return fmt.Errorf("unknown current status: %s", a.Status)
	}

	for _, status := range allowed {
		if status == newStatus {
			a.Status = newStatus
			return nil
		}
	}
	return fmt.Errorf("invalid transition: %s -> %s", a.Status, newStatus)
}

// IsFinalState checks if the alert is in a terminal state
func (a *SecurityAlert) IsFinalState() bool {
	allowed, exists := validTransitions[a.Status]
	return exists && len(allowed) == 0
}
