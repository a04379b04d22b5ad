package localstore

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

// setupTestRedis creates a miniredis server and returns a RedisStore instance
func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	return NewRedisStore(client, log), mr
}

func TestLoadCart_RoundTrip(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	cart := &domain.Cart{
		OwnerID: "device-1",
		Lines: []domain.CartLine{
			{ProductID: "P1", VariantKey: "M", Quantity: 2, UnitPrice: 50000},
		},
	}
	require.NoError(t, store.SaveCart(ctx, "device-1", cart))

	got, err := store.LoadCart(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, "device-1", got.OwnerID)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, domain.Paise(50000), got.Lines[0].UnitPrice)
}

func TestLoadCart_AbsentIsEmpty(t *testing.T) {
	store, _ := setupTestRedis(t)

	cart, err := store.LoadCart(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, "nobody", cart.OwnerID)
}

func TestLoadCart_MalformedIsEmpty(t *testing.T) {
	store, mr := setupTestRedis(t)

	mr.Set(cartKey("device-1"), "{not json")

	cart, err := store.LoadCart(context.Background(), "device-1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestWishlist_RoundTrip(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	wl := &domain.Wishlist{OwnerID: "device-2", ProductIDs: []string{"P1", "P2"}}
	require.NoError(t, store.SaveWishlist(ctx, "device-2", wl))

	raw, err := mr.Get(wishlistKey("device-2"))
	require.NoError(t, err)
	var stored domain.Wishlist
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.ElementsMatch(t, []string{"P1", "P2"}, stored.ProductIDs)

	got, err := store.LoadWishlist(ctx, "device-2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"P1", "P2"}, got.ProductIDs)
}

func TestClear_RemovesBothRecords(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCart(ctx, "device-3", &domain.Cart{
		OwnerID: "device-3",
		Lines:   []domain.CartLine{{ProductID: "P1", Quantity: 1}},
	}))
	require.NoError(t, store.SaveWishlist(ctx, "device-3", &domain.Wishlist{
		OwnerID:    "device-3",
		ProductIDs: []string{"P9"},
	}))

	require.NoError(t, store.Clear(ctx, "device-3"))

	assert.False(t, mr.Exists(cartKey("device-3")))
	assert.False(t, mr.Exists(wishlistKey("device-3")))
}
