package remote

import (
	"context"
	"errors"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartGateway is the server-persisted cart, available only for an
// authenticated identity. AddItem has upsert semantics: an existing
// (product, variant) key has its quantity summed, never duplicated.
type CartGateway interface {
	List(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, line domain.CartLine) error
	UpdateQuantity(ctx context.Context, userID string, key domain.LineKey, quantity int) error
	RemoveItem(ctx context.Context, userID string, key domain.LineKey) error
	Clear(ctx context.Context, userID string) error
}

// WishlistGateway is the server-persisted wishlist.
type WishlistGateway interface {
	GetWishlistItems(ctx context.Context, userID string) (*domain.Wishlist, error)
	AddToWishlist(ctx context.Context, userID, productID string) error
	RemoveFromWishlist(ctx context.Context, userID, productID string) error
	// SyncWishlist upserts all given product IDs in one call; existing
	// entries are left alone.
	SyncWishlist(ctx context.Context, userID string, productIDs []string) error
}
