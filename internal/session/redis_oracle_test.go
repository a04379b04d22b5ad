package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestOracle(t *testing.T) (*RedisOracle, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewRedisOracle(client, log), mr
}

func TestCurrent_ResolvesToken(t *testing.T) {
	oracle, mr := setupTestOracle(t)

	sess := Session{UserID: "u1", Email: "asha@example.com", PostalCode: "560001"}
	raw, _ := json.Marshal(sess)
	mr.Set(sessionKeyPrefix+"tok-1", string(raw))

	got, err := oracle.Current(WithToken(context.Background(), "tok-1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "560001", got.PostalCode)
}

func TestCurrent_MissingTokenIsAnonymous(t *testing.T) {
	oracle, _ := setupTestOracle(t)

	_, err := oracle.Current(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCurrent_UnknownTokenIsAnonymous(t *testing.T) {
	oracle, _ := setupTestOracle(t)

	_, err := oracle.Current(WithToken(context.Background(), "tok-unknown"))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCurrent_MalformedSessionIsAnonymous(t *testing.T) {
	oracle, mr := setupTestOracle(t)
	mr.Set(sessionKeyPrefix+"tok-bad", "{not json")

	_, err := oracle.Current(WithToken(context.Background(), "tok-bad"))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRun_DispatchesPublishedEvents(t *testing.T) {
	oracle, mr := setupTestOracle(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Event
	unsubscribe := oracle.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer unsubscribe()

	go oracle.Run(ctx)

	payload, _ := json.Marshal(Event{
		Kind:     EventSignedIn,
		DeviceID: "dev-1",
		Session:  &Session{UserID: "u1"},
	})

	require.Eventually(t, func() bool {
		mr.Publish(eventsChannel, string(payload))
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventSignedIn, got[0].Kind)
	assert.Equal(t, "dev-1", got[0].DeviceID)
	require.NotNil(t, got[0].Session)
	assert.Equal(t, "u1", got[0].Session.UserID)
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	oracle, _ := setupTestOracle(t)

	var calls int
	unsubscribe := oracle.Subscribe(func(Event) { calls++ })
	unsubscribe()

	oracle.dispatch(`{"kind":"SIGNED_OUT"}`)
	assert.Zero(t, calls)
}
