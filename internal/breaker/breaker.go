// Package breaker implements a consecutive-failure circuit breaker.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Clock returns the current time.
type Clock func() time.Time

// Settings configures a Breaker.
type Settings struct {
	FailureThreshold int                  // consecutive failures that open the breaker (default 3)
	ResetTimeout     time.Duration        // time spent open before a trial call (default 60s)
	Clock            Clock                // defaults to time.Now
	OnStateChange    func(from, to State) // runs with the breaker locked; must not call back into it
}

// Breaker guards calls to an unreliable dependency. While open it fails fast
// with ErrOpen; after ResetTimeout one trial call decides whether to close
// again. Safe for concurrent use.
type Breaker struct {
	threshold int
	reset     time.Duration
	now       Clock
	onChange  func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool // a half-open trial call is in flight
}

func New(s Settings) *Breaker {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 3
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = 60 * time.Second
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return &Breaker{
		threshold: s.FailureThreshold,
		reset:     s.ResetTimeout,
		now:       s.Clock,
		onChange:  s.OnStateChange,
	}
}

// State reports the current state, moving open to half-open once the reset
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Failures reports the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Execute runs fn unless the breaker is open. The failure that opens the
// breaker is returned wrapped so that it matches both ErrOpen and the cause.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	return b.after(err)
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	switch b.state {
	case Open:
		return ErrOpen
	case HalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) after(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.trial = false
		if err != nil {
			b.trip()
			return fmt.Errorf("%w: trial call failed: %w", ErrOpen, err)
		}
		b.failures = 0
		b.setState(Closed)
		return nil
	}

	if err == nil {
		b.failures = 0
		return nil
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
		return fmt.Errorf("%w: %d consecutive failures: %w", ErrOpen, b.failures, err)
	}
	return err
}

// trip opens the breaker. Caller holds mu.
func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.setState(Open)
}

// refresh moves open to half-open after the reset timeout. Caller holds mu.
func (b *Breaker) refresh() {
	if b.state == Open && !b.now().Before(b.openedAt.Add(b.reset)) {
		b.setState(HalfOpen)
	}
}

func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
