package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker
type BreakerState string

const (
	// BreakerClosed means requests pass through normally
	BreakerClosed BreakerState = "closed"
	// BreakerOpen means requests fail immediately
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen means a probe request is testing recovery
	BreakerHalfOpen BreakerState = "half_open"
)

var (
	// ErrBreakerOpen is returned when the circuit breaker is open
	ErrBreakerOpen = errors.New("circuit breaker is open")
	// ErrBreakerBusy is returned when the half-open probe slot is taken
	ErrBreakerBusy = errors.New("circuit breaker probe in flight")
)

// BreakerConfig holds configuration for a circuit breaker
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures uint32
	// Cooldown is how long to wait before probing again (open -> half-open)
	Cooldown time.Duration
	// MaxProbes is the max concurrent requests in half-open state
	MaxProbes uint32
}

// Validate checks the breaker configuration
func (c BreakerConfig) Validate() error {
	if c.MaxFailures == 0 {
		return errors.New("MaxFailures must be greater than 0")
	}
	if c.Cooldown <= 0 {
		return errors.New("Cooldown must be greater than 0")
	}
	if c.MaxProbes == 0 {
		return errors.New("MaxProbes must be greater than 0")
	}
	return nil
}

// DefaultBreakerConfig returns the defaults used by enrichment providers.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		Cooldown:    60 * time.Second,
		MaxProbes:   1,
	}
}

// CircuitBreaker guards calls to an external service so a dead reputation
// or geo endpoint does not add its full timeout to every event.
type CircuitBreaker struct {
	config       BreakerConfig
	state        BreakerState
	failures     uint32
	lastFailTime time.Time
	probes       uint32
	mu           sync.RWMutex
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(config BreakerConfig) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker configuration: %w", err)
	}
	return &CircuitBreaker{
		config: config,
		state:  BreakerClosed,
	}, nil
}

// MustNewCircuitBreaker panics on invalid config. For wiring code where the
// config is a compile-time constant.
func MustNewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	cb, err := NewCircuitBreaker(config)
	if err != nil {
		panic(err)
	}
	return cb
}

// Allow checks if a request may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.lastFailTime) > cb.config.Cooldown {
			cb.state = BreakerHalfOpen
			cb.probes = 1
			return nil
		}
		return ErrBreakerOpen

	case BreakerHalfOpen:
		if cb.probes >= cb.config.MaxProbes {
			return ErrBreakerBusy
		}
		cb.probes++
		return nil

	default:
		return nil
	}
}

// RecordSuccess records a successful request. A success in half-open state
// closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
	case BreakerHalfOpen:
		cb.state = BreakerClosed
		cb.failures = 0
		cb.probes = 0
	}
}

// RecordFailure records a failed request. Failure in half-open state reopens
// the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailTime = time.Now()
	cb.failures++

	switch cb.state {
	case BreakerClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.probes = 0
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
