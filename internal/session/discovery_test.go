package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOracle struct {
	mu       sync.Mutex
	session  *Session
	err      error
	calls    int32
	handlers []func(Event)
}

func (o *stubOracle) Current(context.Context) (*Session, error) {
	atomic.AddInt32(&o.calls, 1)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

func (o *stubOracle) Subscribe(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, fn)
	return func() {}
}

func (o *stubOracle) emit(e Event) {
	o.mu.Lock()
	handlers := make([]func(Event), len(o.handlers))
	copy(handlers, o.handlers)
	o.mu.Unlock()
	for _, fn := range handlers {
		fn(e)
	}
}

func (o *stubOracle) set(s *Session, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session, o.err = s, err
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDiscovery_FillsOnFirstAttempt(t *testing.T) {
	oracle := &stubOracle{session: &Session{UserID: "u1", Email: "a@b.c"}}
	d := NewDiscovery(oracle, testLogger()).WithPolicy(5, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filled := make(chan *Session, 1)
	d.Run(ctx, func(s *Session) { filled <- s })

	select {
	case s := <-filled:
		assert.Equal(t, "u1", s.UserID)
	case <-time.After(time.Second):
		t.Fatal("fill was never called")
	}
}

func TestDiscovery_ExhaustionTreatsShopperAsAnonymous(t *testing.T) {
	oracle := &stubOracle{err: errors.New("provider booting")}
	d := NewDiscovery(oracle, testLogger()).WithPolicy(5, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fills int32
	d.Run(ctx, func(*Session) { atomic.AddInt32(&fills, 1) })

	// Let all five attempts burn down.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&oracle.calls) >= 5
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 5, atomic.LoadInt32(&oracle.calls), "retrying past the attempt cap")
	assert.EqualValues(t, 0, atomic.LoadInt32(&fills))
}

func TestDiscovery_AuthEventResetsAndRetriggers(t *testing.T) {
	oracle := &stubOracle{err: errors.New("provider booting")}
	d := NewDiscovery(oracle, testLogger()).WithPolicy(3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filled := make(chan *Session, 1)
	d.Run(ctx, func(s *Session) { filled <- s })

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&oracle.calls) >= 3
	}, time.Second, time.Millisecond)

	// Sign-in arrives after exhaustion: counter resets, fill re-triggers.
	oracle.set(&Session{UserID: "u2"}, nil)
	oracle.emit(Event{Kind: EventSignedIn, Session: &Session{UserID: "u2"}})

	select {
	case s := <-filled:
		assert.Equal(t, "u2", s.UserID)
	case <-time.After(time.Second):
		t.Fatal("fill was not re-triggered by the auth event")
	}
}

func TestDiscovery_CancelStopsRetries(t *testing.T) {
	oracle := &stubOracle{err: errors.New("down")}
	d := NewDiscovery(oracle, testLogger()).WithPolicy(100, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	d.Run(ctx, func(*Session) {})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&oracle.calls) >= 1
	}, time.Second, time.Millisecond)

	cancel()
	settled := atomic.LoadInt32(&oracle.calls)
	time.Sleep(50 * time.Millisecond)
	// At most one attempt could have been in flight when cancel landed.
	assert.LessOrEqual(t, atomic.LoadInt32(&oracle.calls), settled+1)
}
