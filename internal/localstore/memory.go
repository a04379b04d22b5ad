package localstore

import (
	"context"
	"sync"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

// MemoryStore keeps snapshots in process memory. Used in tests and as a
// fallback when no Redis address is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	carts     map[string]*domain.Cart
	wishlists map[string]*domain.Wishlist
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:     make(map[string]*domain.Cart),
		wishlists: make(map[string]*domain.Wishlist),
	}
}

func (s *MemoryStore) LoadCart(_ context.Context, deviceID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cart, ok := s.carts[deviceID]; ok {
		return copyCart(cart), nil
	}
	return &domain.Cart{OwnerID: deviceID}, nil
}

func (s *MemoryStore) SaveCart(_ context.Context, deviceID string, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts[deviceID] = copyCart(cart)
	return nil
}

func (s *MemoryStore) LoadWishlist(_ context.Context, deviceID string) (*domain.Wishlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if wl, ok := s.wishlists[deviceID]; ok {
		return copyWishlist(wl), nil
	}
	return &domain.Wishlist{OwnerID: deviceID}, nil
}

func (s *MemoryStore) SaveWishlist(_ context.Context, deviceID string, wl *domain.Wishlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wishlists[deviceID] = copyWishlist(wl)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, deviceID)
	delete(s.wishlists, deviceID)
	return nil
}

// Snapshots are copied on the way in and out so callers never share slices
// with the store.
func copyCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &out
}

func copyWishlist(w *domain.Wishlist) *domain.Wishlist {
	out := *w
	out.ProductIDs = append([]string(nil), w.ProductIDs...)
	return &out
}
