package resilience

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
)

// CircuitBreaker opens after a run of consecutive failures and lets a limited
// number of probe requests through after a cool-down period.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures   int           // consecutive failures before opening
	halfOpenAfter time.Duration // cool-down before half-open probes
	maxProbes     int           // allowed test requests in half-open

	state    breakerState
	failures int
	openedAt time.Time
	probes   int
	nowFn    func() time.Time
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func NewCircuitBreaker(maxFailures int, halfOpenAfter time.Duration, maxProbes int) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if maxProbes <= 0 {
		maxProbes = 1
	}
	return &CircuitBreaker{
		maxFailures:   maxFailures,
		halfOpenAfter: halfOpenAfter,
		maxProbes:     maxProbes,
		state:         stateClosed,
		nowFn:         time.Now,
	}
}

// Allow returns whether a request is permitted.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateOpen:
		if c.nowFn().Sub(c.openedAt) >= c.halfOpenAfter {
			c.state = stateHalfOpen
			c.probes = 0
		} else {
			return false
		}
		c.probes++
		return true
	case stateHalfOpen:
		if c.probes >= c.maxProbes {
			return false
		}
		c.probes++
		return true
	}
	return true
}

// RecordResult records a success or failure outcome.
func (c *CircuitBreaker) RecordResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateClosed:
		if success {
			c.failures = 0
			return
		}
		c.failures++
		if c.failures >= c.maxFailures {
			c.transitionToOpen()
		}
	case stateHalfOpen:
		if !success {
			c.transitionToOpen()
			return
		}
		if c.probes >= c.maxProbes {
			c.reset()
		}
	case stateOpen:
		// nothing, Allow handles timing
	}
}

func (c *CircuitBreaker) transitionToOpen() {
	c.state = stateOpen
	c.openedAt = c.nowFn()
	c.failures = 0
	counter, _ := otel.Meter("virus-scanner").Int64Counter("vscan_circuit_open_total")
	counter.Add(context.Background(), 1)
}

func (c *CircuitBreaker) reset() {
	c.state = stateClosed
	c.failures = 0
	c.openedAt = time.Time{}
	counter, _ := otel.Meter("virus-scanner").Int64Counter("vscan_circuit_closed_total")
	counter.Add(context.Background(), 1)
}
