package localstore

import (
	"context"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

// SnapshotStore is the always-available per-device snapshot of cart and
// wishlist state. It is the fast path the shopper sees before (and alongside)
// any server persistence. Loads never fail on absent or malformed data; both
// degrade to the empty snapshot.
type SnapshotStore interface {
	LoadCart(ctx context.Context, deviceID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, deviceID string, cart *domain.Cart) error
	LoadWishlist(ctx context.Context, deviceID string) (*domain.Wishlist, error)
	SaveWishlist(ctx context.Context, deviceID string, wl *domain.Wishlist) error
	Clear(ctx context.Context, deviceID string) error
}

// Namespace prefixes every snapshot key so the store can share a database
// with other subsystems.
const Namespace = "storefront"
