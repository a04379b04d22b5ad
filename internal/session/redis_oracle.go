package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	sessionKeyPrefix = "storefront:session:"
	eventsChannel    = "storefront:session-events"
)

// TokenFromContext extracts the session token a middleware stored for this
// request. Empty means anonymous.
func TokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value("session_token").(string); ok {
		return token
	}
	return ""
}

// WithToken stores the request's session token for Current to pick up.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, "session_token", token)
}

// RedisOracle reads sessions the auth provider materializes in Redis and
// relays its sign-in/out notifications from a pub/sub channel.
type RedisOracle struct {
	client *redis.Client
	log    *logrus.Logger
	pubsub *redis.PubSub

	mu       sync.Mutex
	nextID   int
	handlers map[int]func(Event)
}

func NewRedisOracle(client *redis.Client, log *logrus.Logger) *RedisOracle {
	return &RedisOracle{
		client:   client,
		log:      log,
		handlers: make(map[int]func(Event)),
	}
}

// Current resolves the request's token to a session. A missing token, an
// unknown token and an expired session all read as anonymous.
func (o *RedisOracle) Current(ctx context.Context) (*Session, error) {
	token := TokenFromContext(ctx)
	if token == "" {
		return nil, ErrNoSession
	}

	raw, err := o.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		o.log.WithError(err).Warn("malformed session record, treating as anonymous")
		return nil, ErrNoSession
	}
	return &sess, nil
}

func (o *RedisOracle) Subscribe(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.handlers[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.handlers, id)
		o.mu.Unlock()
	}
}

// Run consumes the auth provider's event channel until ctx is cancelled.
func (o *RedisOracle) Run(ctx context.Context) {
	o.pubsub = o.client.Subscribe(ctx, eventsChannel)
	ch := o.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			o.dispatch(msg.Payload)
		case <-ctx.Done():
			o.Close()
			return
		}
	}
}

func (o *RedisOracle) Close() {
	if o.pubsub != nil {
		if err := o.pubsub.Close(); err != nil {
			o.log.WithError(err).Warn("error closing session event subscription")
		}
	}
}

func (o *RedisOracle) dispatch(payload string) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		o.log.WithError(err).Warn("malformed session event, dropping")
		return
	}

	o.mu.Lock()
	handlers := make([]func(Event), 0, len(o.handlers))
	for _, fn := range o.handlers {
		handlers = append(handlers, fn)
	}
	o.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
