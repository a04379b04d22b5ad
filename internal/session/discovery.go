package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxAttempts bounds session discovery before the shopper is
	// treated as anonymous.
	DefaultMaxAttempts = 5
	// DefaultRetryDelay is the fixed wait between attempts. Fixed on
	// purpose: the auth provider is either up within a few seconds of page
	// load or the shopper proceeds anonymously.
	DefaultRetryDelay = 2 * time.Second
)

// Discovery polls the oracle for an existing session with a bounded number
// of fixed-delay attempts. Every auth-state-change event resets the attempt
// counter and may re-trigger the fill. Cancelling the context stops pending
// timers so nothing writes into a torn-down view.
type Discovery struct {
	oracle      Oracle
	maxAttempts int
	delay       time.Duration
	log         *logrus.Logger

	mu       sync.Mutex
	attempts int
}

func NewDiscovery(oracle Oracle, log *logrus.Logger) *Discovery {
	return &Discovery{
		oracle:      oracle,
		maxAttempts: DefaultMaxAttempts,
		delay:       DefaultRetryDelay,
		log:         log,
	}
}

// WithPolicy overrides the attempt cap and delay. Used by tests and by
// callers that need a tighter startup window.
func (d *Discovery) WithPolicy(maxAttempts int, delay time.Duration) *Discovery {
	d.maxAttempts = maxAttempts
	d.delay = delay
	return d
}

// Run starts discovery and calls fill with each session found, including
// sessions arriving later through auth events. fill(nil) is never called;
// exhaustion simply stops retrying. Run returns immediately; the loop lives
// until ctx is cancelled.
func (d *Discovery) Run(ctx context.Context, fill func(*Session)) {
	retrigger := make(chan struct{}, 1)

	unsubscribe := d.oracle.Subscribe(func(Event) {
		d.resetAttempts()
		select {
		case retrigger <- struct{}{}:
		default:
		}
	})

	go func() {
		defer unsubscribe()
		d.loop(ctx, fill, retrigger)
	}()
}

func (d *Discovery) loop(ctx context.Context, fill func(*Session), retrigger <-chan struct{}) {
	for {
		if ctx.Err() != nil {
			return
		}

		sess, err := d.oracle.Current(ctx)
		if err == nil && sess != nil {
			fill(sess)
			// Stay subscribed; a later sign-in/out re-triggers us.
			select {
			case <-retrigger:
				continue
			case <-ctx.Done():
				return
			}
		}

		if err != nil && !errors.Is(err, ErrNoSession) {
			d.log.WithError(err).Debug("session discovery attempt failed")
		}

		if d.bumpAttempts() >= d.maxAttempts {
			d.log.WithField("attempts", d.maxAttempts).
				Debug("session discovery exhausted, treating shopper as anonymous")
			select {
			case <-retrigger:
				continue
			case <-ctx.Done():
				return
			}
		}

		timer := time.NewTimer(d.delay)
		select {
		case <-timer.C:
		case <-retrigger:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (d *Discovery) bumpAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	return d.attempts
}

func (d *Discovery) resetAttempts() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = 0
}
