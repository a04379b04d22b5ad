package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

// RedisStore persists device snapshots as namespaced JSON records. A missing
// key or a record that fails to parse is treated as the empty snapshot; parse
// failures are logged, never surfaced.
type RedisStore struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisStore(client *redis.Client, log *logrus.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) LoadCart(ctx context.Context, deviceID string) (*domain.Cart, error) {
	empty := &domain.Cart{OwnerID: deviceID}

	data, err := s.client.Get(ctx, cartKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		s.log.WithError(err).WithField("device_id", deviceID).
			Warn("malformed cart snapshot, treating as empty")
		return empty, nil
	}
	return &cart, nil
}

func (s *RedisStore) SaveCart(ctx context.Context, deviceID string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(deviceID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadWishlist(ctx context.Context, deviceID string) (*domain.Wishlist, error) {
	empty := &domain.Wishlist{OwnerID: deviceID}

	data, err := s.client.Get(ctx, wishlistKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get wishlist: %w", err)
	}

	var wl domain.Wishlist
	if err := json.Unmarshal(data, &wl); err != nil {
		s.log.WithError(err).WithField("device_id", deviceID).
			Warn("malformed wishlist snapshot, treating as empty")
		return empty, nil
	}
	return &wl, nil
}

func (s *RedisStore) SaveWishlist(ctx context.Context, deviceID string, wl *domain.Wishlist) error {
	data, err := json.Marshal(wl)
	if err != nil {
		return fmt.Errorf("marshal wishlist: %w", err)
	}
	if err := s.client.Set(ctx, wishlistKey(deviceID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set wishlist: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, deviceID string) error {
	if err := s.client.Del(ctx, cartKey(deviceID), wishlistKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("redis clear snapshot: %w", err)
	}
	return nil
}

func cartKey(deviceID string) string {
	return fmt.Sprintf("%s:cart:%s", Namespace, deviceID)
}

func wishlistKey(deviceID string) string {
	return fmt.Sprintf("%s:wishlist:%s", Namespace, deviceID)
}
