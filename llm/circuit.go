package llm

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/caldera-labs/plume/store"
)

const (
	defaultFailureThreshold   = 5
	defaultRecoveryTimeout    = 300 * time.Second
	defaultHalfOpenMaxRequest = 3
)

// Circuit wraps gobreaker with a minimum inter-call interval derived
// from max_rpm and persistence of its observable state to the settings
// table, so an operator inspecting the admin surface, or a process
// that just restarted, sees the same picture a long-running breaker
// would report.
//
// gobreaker exposes no way to construct a CircuitBreaker already
// seeded with prior counts, so a restart cannot resurrect its exact
// internal trip counters. What is restored is the behaviorally
// significant part: if the persisted state was last seen OPEN and its
// recovery timeout has not yet elapsed, new calls stay blocked until
// it does (forcedOpenUntil), and the last-call timestamp is restored
// so minimum-interval pacing does not reset to "never called" on
// restart. Consecutive-failure and consecutive-success counts are
// persisted for inspection after every call but, since gobreaker
// cannot be seeded with them, a restart during a CLOSED or HALF_OPEN
// run starts the trip counter back at zero rather than resuming it.
type Circuit struct {
	cb *gobreaker.CircuitBreaker

	mu              sync.Mutex
	lastCallAt      time.Time
	minInterval     time.Duration
	forcedOpenUntil time.Time
	store           *store.Store
	settingsKey     string
}

func settingKey(base, suffix string) string { return base + "_" + suffix }

// NewCircuit builds a circuit breaker named settingsKey (distinct
// instances exist for summary generation vs. profile/suggestion calls
// if ever split), restoring whatever persisted state the settings
// table holds for it.
func NewCircuit(st *store.Store, settingsKey string, maxRPM int) *Circuit {
	interval := time.Duration(0)
	if maxRPM > 0 {
		interval = time.Duration(60 * float64(time.Second) / float64(maxRPM))
	}

	c := &Circuit{
		store:       st,
		settingsKey: settingsKey,
		minInterval: interval,
	}
	c.restore(context.Background())

	settings := gobreaker.Settings{
		Name:        settingsKey,
		MaxRequests: defaultHalfOpenMaxRequest,
		Interval:    0,
		Timeout:     defaultRecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.store != nil {
				_ = c.store.SetSetting(context.Background(), settingKey(settingsKey, "state"), to.String())
			}
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(settings)
	return c
}

// restore reads the persisted state and timestamps written by a prior
// process and, if the circuit was last seen OPEN within its recovery
// timeout, blocks new calls until that timeout elapses.
func (c *Circuit) restore(ctx context.Context) {
	if c.store == nil {
		return
	}
	state, err := c.store.GetSetting(ctx, settingKey(c.settingsKey, "state"))
	if err == nil && state == gobreaker.StateOpen.String() {
		if raw, err := c.store.GetSetting(ctx, settingKey(c.settingsKey, "last_failure_at")); err == nil {
			if lastFailure, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				if until := lastFailure.Add(defaultRecoveryTimeout); time.Now().Before(until) {
					c.forcedOpenUntil = until
				}
			}
		}
	}
	if raw, err := c.store.GetSetting(ctx, settingKey(c.settingsKey, "last_call_at")); err == nil {
		if lastCall, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			c.lastCallAt = lastCall
		}
	}
}

// Allow reports whether a call may proceed right now: the breaker is
// not OPEN (nor forced open by restored state), and the minimum
// inter-call spacing has elapsed. It does not itself wait — callers
// that want to wait out the spacing should sleep and re-check.
func (c *Circuit) Allow() bool {
	c.mu.Lock()
	forcedOpen := time.Now().Before(c.forcedOpenUntil)
	lastCall := c.lastCallAt
	c.mu.Unlock()
	if forcedOpen {
		return false
	}
	if c.cb.State() == gobreaker.StateOpen {
		return false
	}
	if c.minInterval > 0 && time.Since(lastCall) < c.minInterval {
		return false
	}
	return true
}

// Call executes fn through the breaker, recording the attempt time and
// persisting the resulting counts and timestamps so both inter-call
// spacing and state inspection survive a restart.
func (c *Circuit) Call(fn func() error) error {
	now := time.Now()
	c.mu.Lock()
	c.lastCallAt = now
	c.forcedOpenUntil = time.Time{}
	c.mu.Unlock()

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	c.persist(context.Background(), now, err)
	return err
}

func (c *Circuit) persist(ctx context.Context, callAt time.Time, callErr error) {
	if c.store == nil {
		return
	}
	_ = c.store.SetSetting(ctx, settingKey(c.settingsKey, "last_call_at"), callAt.Format(time.RFC3339Nano))
	if callErr != nil {
		_ = c.store.SetSetting(ctx, settingKey(c.settingsKey, "last_failure_at"), callAt.Format(time.RFC3339Nano))
	}
	counts := c.cb.Counts()
	_ = c.store.SetSetting(ctx, settingKey(c.settingsKey, "consecutive_failures"), strconv.Itoa(int(counts.ConsecutiveFailures)))
	_ = c.store.SetSetting(ctx, settingKey(c.settingsKey, "half_open_successes"), strconv.Itoa(int(counts.ConsecutiveSuccesses)))
}

// State returns the current breaker state as a string for /metrics,
// accounting for a restart-restored forced-open window that the
// freshly constructed gobreaker instance doesn't know about yet.
func (c *Circuit) State() string {
	c.mu.Lock()
	forcedOpen := time.Now().Before(c.forcedOpenUntil)
	c.mu.Unlock()
	if forcedOpen {
		return gobreaker.StateOpen.String()
	}
	return c.cb.State().String()
}
