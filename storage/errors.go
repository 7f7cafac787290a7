package storage

import "errors"

// Storage error constants
var (
	// ErrRuleNotFound is returned when a correlation rule is not found
	ErrRuleNotFound = errors.New("correlation rule not found")

	// ErrAlertNotFound is returned when an alert is not found
	ErrAlertNotFound = errors.New("alert not found")
)
