package infra

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CircuitBreaker guards best-effort calls to redis so a downed broker costs
// one fast failure per committed operation instead of a dial timeout.
//
//	closed --(FailureThreshold consecutive failures)--> open
//	open --(OpenTimeout elapsed)--> half-open (one probe at a time)
//	half-open --(SuccessThreshold successes)--> closed
//	half-open --(probe failure)--> open
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	now  func() time.Time

	mu        sync.Mutex
	state     CBState
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
}

// CBState is the breaker state reported by /health.
type CBState int

const (
	CBClosed CBState = iota
	CBOpen
	CBHalfOpen
)

func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "closed"
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute without calling fn.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds tunable parameters. Zero values take the defaults.
type CircuitBreakerConfig struct {
	Name             string        // used in state-change logs
	FailureThreshold int           // consecutive failures to trip open (default 5)
	SuccessThreshold int           // half-open successes to close (default 2)
	OpenTimeout      time.Duration // time spent open before probing (default 30s)
}

// DefaultCBConfig returns the settings used for the ledger event publisher.
func DefaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             LedgerEventsQueue,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &CircuitBreaker{name: cfg.Name, cfg: cfg, now: time.Now, state: CBClosed}
}

// State returns the current state, moving open to half-open once due.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Execute runs fn unless the breaker is open or a half-open probe is in flight.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	switch cb.state {
	case CBOpen:
		return ErrCircuitOpen
	case CBHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false

	if err != nil {
		cb.failures++
		switch {
		case cb.state == CBHalfOpen:
			cb.trip()
		case cb.state == CBClosed && cb.failures >= cb.cfg.FailureThreshold:
			cb.trip()
		}
		return
	}

	switch cb.state {
	case CBClosed:
		cb.failures = 0
	case CBHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(CBClosed)
		}
	}
}

// The helpers below run under cb.mu.

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.transition(CBOpen)
}

func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == CBOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.OpenTimeout {
		cb.transition(CBHalfOpen)
	}
}

func (cb *CircuitBreaker) transition(to CBState) {
	from := cb.state
	cb.state = to
	cb.failures, cb.successes = 0, 0

	ev := log.Info()
	if to == CBOpen {
		ev = log.Warn()
	}
	ev.Str("breaker", cb.name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state change")
}
