package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

// BreakerGateway wraps a CartGateway and WishlistGateway behind a shared
// circuit breaker. A flapping backend trips the breaker and every mirror call
// fails fast, which the reconciler absorbs as a local-only degradation.
type BreakerGateway struct {
	carts     CartGateway
	wishlists WishlistGateway
	cb        *gobreaker.CircuitBreaker[any]
}

func NewBreakerGateway(carts CartGateway, wishlists WishlistGateway) *BreakerGateway {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "remote-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Not-found sentinels are answers, not backend failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCartNotFound) || errors.Is(err, ErrItemNotFound)
		},
	})
	return &BreakerGateway{carts: carts, wishlists: wishlists, cb: cb}
}

func (g *BreakerGateway) List(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.carts.List(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (g *BreakerGateway) AddItem(ctx context.Context, userID string, line domain.CartLine) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.carts.AddItem(ctx, userID, line)
	})
	return err
}

func (g *BreakerGateway) UpdateQuantity(ctx context.Context, userID string, key domain.LineKey, quantity int) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.carts.UpdateQuantity(ctx, userID, key, quantity)
	})
	return err
}

func (g *BreakerGateway) RemoveItem(ctx context.Context, userID string, key domain.LineKey) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.carts.RemoveItem(ctx, userID, key)
	})
	return err
}

func (g *BreakerGateway) Clear(ctx context.Context, userID string) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.carts.Clear(ctx, userID)
	})
	return err
}

func (g *BreakerGateway) GetWishlistItems(ctx context.Context, userID string) (*domain.Wishlist, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.wishlists.GetWishlistItems(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Wishlist), nil
}

func (g *BreakerGateway) AddToWishlist(ctx context.Context, userID, productID string) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.wishlists.AddToWishlist(ctx, userID, productID)
	})
	return err
}

func (g *BreakerGateway) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.wishlists.RemoveFromWishlist(ctx, userID, productID)
	})
	return err
}

func (g *BreakerGateway) SyncWishlist(ctx context.Context, userID string, productIDs []string) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.wishlists.SyncWishlist(ctx, userID, productIDs)
	})
	return err
}
