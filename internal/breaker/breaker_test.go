package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(t *testing.T) (*Breaker, *fakeClock, *[]string) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	var transitions []string
	b := New(Settings{
		FailureThreshold: 3,
		ResetTimeout:     60 * time.Second,
		Clock:            clock.Now,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	return b, clock, &transitions
}

var errBoom = errors.New("boom")

func fail(ctx context.Context) error    { return errBoom }
func succeed(ctx context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _, transitions := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := b.Execute(ctx, fail)
		assert.ErrorIs(t, err, errBoom)
		assert.NotErrorIs(t, err, ErrOpen)
	}
	assert.Equal(t, Closed, b.State())

	err := b.Execute(ctx, fail)
	assert.ErrorIs(t, err, ErrOpen, "tripping call reports open")
	assert.ErrorIs(t, err, errBoom, "tripping call keeps its cause")
	assert.Equal(t, Open, b.State())
	assert.Equal(t, []string{"closed->open"}, *transitions)
}

func TestBreaker_OpenMakesNoCalls(t *testing.T) {
	b, clock, _ := newTestBreaker(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}

	var calls int
	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second) // stays below the reset timeout
		err := b.Execute(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
		require.ErrorIs(t, err, ErrOpen)
	}
	assert.Zero(t, calls)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _, _ := newTestBreaker(t)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, 0, b.Failures())

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, Closed, b.State(), "non-consecutive failures must not open")
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	for _, tc := range []struct {
		name       string
		trial      func(ctx context.Context) error
		wantState  State
		wantErr    error
		wantChange []string
	}{
		{
			name:       "SuccessCloses",
			trial:      succeed,
			wantState:  Closed,
			wantChange: []string{"closed->open", "open->half-open", "half-open->closed"},
		},
		{
			name:       "FailureReopens",
			trial:      fail,
			wantState:  Open,
			wantErr:    ErrOpen,
			wantChange: []string{"closed->open", "open->half-open", "half-open->open"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, clock, transitions := newTestBreaker(t)
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				_ = b.Execute(ctx, fail)
			}

			clock.Advance(60 * time.Second)
			assert.Equal(t, HalfOpen, b.State())

			err := b.Execute(ctx, tc.trial)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantState, b.State())
			assert.Equal(t, tc.wantChange, *transitions)
		})
	}
}

func TestBreaker_ReopenRestartsTimeout(t *testing.T) {
	b, clock, _ := newTestBreaker(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.Advance(61 * time.Second)
	_ = b.Execute(ctx, fail) // failed trial

	clock.Advance(59 * time.Second)
	assert.Equal(t, Open, b.State())
	clock.Advance(time.Second)
	assert.Equal(t, HalfOpen, b.State())
}

func TestBreaker_SingleTrialInFlight(t *testing.T) {
	b, clock, _ := newTestBreaker(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Execute(ctx, succeed)
	assert.ErrorIs(t, err, ErrOpen, "second call during trial is rejected")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_Concurrent(t *testing.T) {
	b := New(Settings{FailureThreshold: 3, ResetTimeout: time.Hour})
	ctx := context.Background()

	var calls atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(ctx, func(ctx context.Context) error {
				calls.Add(1)
				return errBoom
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, Open, b.State())
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
	before := calls.Load()
	_ = b.Execute(ctx, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	assert.Equal(t, before, calls.Load())
}

func TestNew_Defaults(t *testing.T) {
	b := New(Settings{})
	assert.Equal(t, 3, b.threshold)
	assert.Equal(t, 60*time.Second, b.reset)
	assert.NotNil(t, b.now)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "State(9)", State(9).String())
}
