package executor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BreakerConfig controls the per-tool circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of failures within Window that opens
	// the breaker.
	FailureThreshold int

	// Window is the sliding window over which failures are counted.
	Window time.Duration

	// Cooldown is how long an open breaker rejects calls before allowing a
	// half-open trial.
	Cooldown time.Duration

	// CooldownFactor multiplies the cooldown each time the half-open trial
	// fails.
	CooldownFactor float64

	// MaxCooldown caps the extended cooldown.
	MaxCooldown time.Duration
}

// DefaultBreakerConfig is the policy applied when unset.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           30 * time.Second,
		Cooldown:         10 * time.Second,
		CooldownFactor:   2.0,
		MaxCooldown:      5 * time.Minute,
	}
}

// Validate checks field ranges.
func (c *BreakerConfig) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("breaker: failure_threshold must be positive")
	}
	if c.Window <= 0 || c.Cooldown <= 0 {
		return fmt.Errorf("breaker: window and cooldown must be positive")
	}
	if c.CooldownFactor < 1 {
		return fmt.Errorf("breaker: cooldown_factor must be >= 1")
	}
	return nil
}

// BreakerState is the observable state of one tool's breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

type breaker struct {
	mu sync.Mutex

	config BreakerConfig

	state    BreakerState
	failures []time.Time

	openedAt time.Time
	cooldown time.Duration

	// probing is set while the single half-open trial call is in flight so
	// concurrent callers keep short-circuiting.
	probing bool
}

// BreakerRegistry holds one breaker per tool, shared process-wide across all
// concurrent runs.
type BreakerRegistry struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*breaker

	// now is replaceable in tests.
	now func() time.Time
}

// NewBreakerRegistry creates a registry applying config to every tool.
func NewBreakerRegistry(config BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		config:   config,
		breakers: make(map[string]*breaker),
		now:      time.Now,
	}
}

func (r *BreakerRegistry) breaker(tool string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[tool]
	if !ok {
		b = &breaker{
			config:   r.config,
			state:    BreakerClosed,
			cooldown: r.config.Cooldown,
		}
		r.breakers[tool] = b
	}
	return b
}

// Allow decides whether a call to tool may proceed. It returns a
// CircuitOpenError while the breaker is open or a half-open probe is already
// in flight; otherwise the caller must report the outcome via Record.
func (r *BreakerRegistry) Allow(tool string) error {
	b := r.breaker(tool)
	now := r.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		remaining := b.cooldown - now.Sub(b.openedAt)
		if remaining > 0 {
			return &CircuitOpenError{Tool: tool, RetryAfter: remaining}
		}
		// Cooldown elapsed: this caller becomes the single trial.
		b.state = BreakerHalfOpen
		b.probing = true
		slog.Info("circuit breaker half-open", "tool", tool)
		return nil

	case BreakerHalfOpen:
		if b.probing {
			return &CircuitOpenError{Tool: tool, RetryAfter: b.cooldown}
		}
		b.probing = true
		return nil

	default:
		return nil
	}
}

// Record reports the outcome of an allowed call.
func (r *BreakerRegistry) Record(tool string, success bool) {
	b := r.breaker(tool)
	now := r.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probing = false
		if success {
			b.state = BreakerClosed
			b.failures = nil
			b.cooldown = b.config.Cooldown
			slog.Info("circuit breaker closed", "tool", tool)
			return
		}
		// Failed trial reopens with an extended cooldown.
		b.cooldown = time.Duration(float64(b.cooldown) * b.config.CooldownFactor)
		if b.config.MaxCooldown > 0 && b.cooldown > b.config.MaxCooldown {
			b.cooldown = b.config.MaxCooldown
		}
		b.state = BreakerOpen
		b.openedAt = now
		slog.Warn("circuit breaker reopened", "tool", tool, "cooldown", b.cooldown)
		return
	}

	if success {
		b.failures = nil
		return
	}

	// Drop failures that slid out of the window before counting.
	cutoff := now.Add(-b.config.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = now
		b.failures = nil
		slog.Warn("circuit breaker opened", "tool", tool, "cooldown", b.cooldown)
	}
}

// State returns the current state of a tool's breaker, defaulting to closed
// for tools never called.
func (r *BreakerRegistry) State(tool string) BreakerState {
	r.mu.Lock()
	b, ok := r.breakers[tool]
	r.mu.Unlock()
	if !ok {
		return BreakerClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
