package downloader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// ErrInvalidTransition is returned when the controller is driven out of order.
var ErrInvalidTransition = errors.New("invalid retry state transition")

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the default backoff: 3 attempts, 2s doubling
// up to 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Validate checks the configuration.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay %s is below initial delay %s", c.MaxDelay, c.InitialDelay)
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be at least 1, got %g", c.BackoffFactor)
	}
	return nil
}

// normalized clamps a config into one Delay can use: at least one attempt,
// no negative delays, MaxDelay >= InitialDelay and a factor of at least 1.
func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	c.InitialDelay = max(c.InitialDelay, 0)
	c.MaxDelay = max(c.MaxDelay, c.InitialDelay)
	if c.BackoffFactor < 1 || math.IsNaN(c.BackoffFactor) {
		c.BackoffFactor = 1
	}
	return c
}

// Delay returns the wait before retry n (n >= 1):
// min(InitialDelay * BackoffFactor^(n-1), MaxDelay).
func (c RetryConfig) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(n-1))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Controller is the retry state machine for one request:
//
//	Idle -> Attempting -> Succeeded | Waiting | GivenUp | Cancelled
//	Waiting -> Attempting | Cancelled
//
// It is not safe for concurrent use.
type Controller struct {
	cfg   RetryConfig
	phase domain.RetryPhase
	state domain.RetryState
}

// NewController creates a controller in the Idle phase. Out-of-range
// settings are clamped so delays never shrink between retries.
func NewController(cfg RetryConfig) *Controller {
	return &Controller{cfg: cfg.normalized(), phase: domain.PhaseIdle}
}

// Phase returns the current phase.
func (c *Controller) Phase() domain.RetryPhase {
	return c.phase
}

// State returns a copy of the retry bookkeeping.
func (c *Controller) State() domain.RetryState {
	return c.state
}

// Start moves Idle to Attempting for the first attempt.
func (c *Controller) Start() (int, error) {
	if c.phase != domain.PhaseIdle {
		return 0, fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.phase)
	}
	c.phase = domain.PhaseAttempting
	c.state.Attempt = 1
	return c.state.Attempt, nil
}

// Record applies the outcome of the current attempt and returns the new
// phase. A fatal outcome never leads to another attempt.
func (c *Controller) Record(o domain.Outcome) (domain.RetryPhase, error) {
	if c.phase != domain.PhaseAttempting {
		return c.phase, fmt.Errorf("%w: record from %s", ErrInvalidTransition, c.phase)
	}

	switch {
	case o.IsSuccess():
		c.phase = domain.PhaseSucceeded
		c.state.NextDelay = 0
	case o.IsRetryable() && c.state.Attempt < c.cfg.MaxAttempts:
		c.phase = domain.PhaseWaiting
		c.state.LastReason = o.Reason
		c.state.NextDelay = c.cfg.Delay(c.state.Attempt)
	default:
		c.phase = domain.PhaseGivenUp
		c.state.LastReason = o.Reason
		c.state.NextDelay = 0
	}
	return c.phase, nil
}

// Wait holds for the pending delay and moves to Attempting. If ctx is
// cancelled first the controller moves to Cancelled and ctx's error is
// returned.
func (c *Controller) Wait(ctx context.Context) (int, error) {
	if c.phase != domain.PhaseWaiting {
		return 0, fmt.Errorf("%w: wait from %s", ErrInvalidTransition, c.phase)
	}

	timer := time.NewTimer(c.state.NextDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.phase = domain.PhaseCancelled
		return c.state.Attempt, ctx.Err()
	case <-timer.C:
	}

	c.phase = domain.PhaseAttempting
	c.state.Attempt++
	c.state.NextDelay = 0
	return c.state.Attempt, nil
}

// Cancel moves any non-terminal phase to Cancelled.
func (c *Controller) Cancel() {
	if !c.phase.IsTerminal() {
		c.phase = domain.PhaseCancelled
	}
}
