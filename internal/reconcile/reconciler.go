package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/localstore"
	"github.com/rajbirverr/centurionintimates-sub000/internal/remote"
	"github.com/rajbirverr/centurionintimates-sub000/internal/session"
)

var (
	// ErrQuantityTooLow rejects quantities below 1. Callers wanting zero
	// must use Remove instead.
	ErrQuantityTooLow = errors.New("quantity must be at least 1")
	ErrLineNotFound   = errors.New("cart line not found")
)

// Shopper pairs the device running the storefront with whatever identity it
// currently has. DeviceID keys the local snapshot; the identity, when
// authenticated, keys the remote store.
type Shopper struct {
	DeviceID string
	Identity domain.Identity
}

// Reconciler owns every write to the local snapshot store and the remote
// store. Local mutations are synchronous and are the user-facing contract of
// record for the current device; remote mirroring is fire-and-forget and a
// failed mirror call degrades to local-only operation until the next
// mutation replays the full snapshot.
type Reconciler struct {
	local     localstore.SnapshotStore
	carts     remote.CartGateway
	wishlists remote.WishlistGateway
	log       *logrus.Logger

	mirrorTimeout time.Duration
	wg            sync.WaitGroup
	sfg           singleflight.Group

	mu     sync.Mutex
	synced map[string]string // deviceID -> userID whose stores are already merged
	dirty  map[string]bool   // deviceID -> mirror failed, replay on next mutation
}

func New(local localstore.SnapshotStore, carts remote.CartGateway, wishlists remote.WishlistGateway, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		local:         local,
		carts:         carts,
		wishlists:     wishlists,
		log:           log,
		mirrorTimeout: 5 * time.Second,
		synced:        make(map[string]string),
		dirty:         make(map[string]bool),
	}
}

// Close waits for in-flight mirror calls to settle.
func (r *Reconciler) Close() {
	r.wg.Wait()
}

// Cart returns the shopper's current cart from the local snapshot.
func (r *Reconciler) Cart(ctx context.Context, shopper Shopper) (*domain.Cart, error) {
	return r.local.LoadCart(ctx, shopper.DeviceID)
}

// Wishlist returns the shopper's current wishlist from the local snapshot.
func (r *Reconciler) Wishlist(ctx context.Context, shopper Shopper) (*domain.Wishlist, error) {
	return r.local.LoadWishlist(ctx, shopper.DeviceID)
}

// Add puts a line into the cart. An existing (product, variant) key has its
// quantity summed, never duplicated. The merged line is returned.
func (r *Reconciler) Add(ctx context.Context, shopper Shopper, line domain.CartLine) (domain.CartLine, error) {
	if line.Quantity < 1 {
		return domain.CartLine{}, ErrQuantityTooLow
	}

	r.mu.Lock()
	cart, err := r.local.LoadCart(ctx, shopper.DeviceID)
	if err != nil {
		r.mu.Unlock()
		return domain.CartLine{}, fmt.Errorf("load cart: %w", err)
	}

	merged := line
	if existing := cart.Find(line.Key()); existing != nil {
		existing.Quantity += line.Quantity
		merged = *existing
	} else {
		line.AddedAt = time.Now()
		cart.Lines = append(cart.Lines, line)
		merged = line
	}

	if err := r.local.SaveCart(ctx, shopper.DeviceID, cart); err != nil {
		r.mu.Unlock()
		return domain.CartLine{}, fmt.Errorf("save cart: %w", err)
	}
	r.mu.Unlock()

	// Mirror the delta; the remote upsert sums quantities the same way.
	r.mirror(shopper, "add cart line", func(ctx context.Context) error {
		return r.carts.AddItem(ctx, shopper.Identity.UserID, line)
	})
	return merged, nil
}

// Remove deletes a line. Removing an absent key is a no-op, not an error.
func (r *Reconciler) Remove(ctx context.Context, shopper Shopper, key domain.LineKey) error {
	r.mu.Lock()
	cart, err := r.local.LoadCart(ctx, shopper.DeviceID)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("load cart: %w", err)
	}

	if cart.Find(key) == nil {
		r.mu.Unlock()
		return nil
	}

	kept := cart.Lines[:0]
	for _, l := range cart.Lines {
		if l.Key() != key {
			kept = append(kept, l)
		}
	}
	cart.Lines = kept

	if err := r.local.SaveCart(ctx, shopper.DeviceID, cart); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("save cart: %w", err)
	}
	r.mu.Unlock()

	r.mirror(shopper, "remove cart line", func(ctx context.Context) error {
		err := r.carts.RemoveItem(ctx, shopper.Identity.UserID, key)
		if errors.Is(err, remote.ErrCartNotFound) || errors.Is(err, remote.ErrItemNotFound) {
			return nil
		}
		return err
	})
	return nil
}

// UpdateQuantity replaces a line's quantity in place. Quantities below 1 are
// rejected; callers must use Remove.
func (r *Reconciler) UpdateQuantity(ctx context.Context, shopper Shopper, key domain.LineKey, quantity int) error {
	if quantity < 1 {
		return ErrQuantityTooLow
	}

	r.mu.Lock()
	cart, err := r.local.LoadCart(ctx, shopper.DeviceID)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("load cart: %w", err)
	}

	line := cart.Find(key)
	if line == nil {
		r.mu.Unlock()
		return ErrLineNotFound
	}
	line.Quantity = quantity

	if err := r.local.SaveCart(ctx, shopper.DeviceID, cart); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("save cart: %w", err)
	}
	r.mu.Unlock()

	r.mirror(shopper, "update cart quantity", func(ctx context.Context) error {
		return r.carts.UpdateQuantity(ctx, shopper.Identity.UserID, key, quantity)
	})
	return nil
}

// AddToWishlist inserts a product into the wishlist set.
func (r *Reconciler) AddToWishlist(ctx context.Context, shopper Shopper, productID string) error {
	r.mu.Lock()
	wl, err := r.local.LoadWishlist(ctx, shopper.DeviceID)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("load wishlist: %w", err)
	}

	if !wl.Add(productID) {
		r.mu.Unlock()
		return nil
	}

	if err := r.local.SaveWishlist(ctx, shopper.DeviceID, wl); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("save wishlist: %w", err)
	}
	r.mu.Unlock()

	if !shopper.Identity.IsAuthenticated() {
		return nil
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
		defer cancel()
		if err := r.wishlists.AddToWishlist(ctx, shopper.Identity.UserID, productID); err != nil {
			r.log.WithError(err).WithField("product_id", productID).
				Warn("wishlist mirror failed, continuing local-only")
		}
	}()
	return nil
}

// RemoveFromWishlist deletes a product from the wishlist set. Absent IDs are
// a no-op.
func (r *Reconciler) RemoveFromWishlist(ctx context.Context, shopper Shopper, productID string) error {
	r.mu.Lock()
	wl, err := r.local.LoadWishlist(ctx, shopper.DeviceID)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("load wishlist: %w", err)
	}
	wl.Remove(productID)
	if err := r.local.SaveWishlist(ctx, shopper.DeviceID, wl); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("save wishlist: %w", err)
	}
	r.mu.Unlock()

	if !shopper.Identity.IsAuthenticated() {
		return nil
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
		defer cancel()
		if err := r.wishlists.RemoveFromWishlist(ctx, shopper.Identity.UserID, productID); err != nil {
			r.log.WithError(err).WithField("product_id", productID).
				Warn("wishlist mirror failed, continuing local-only")
		}
	}()
	return nil
}

// OnAuthChange reacts to session oracle events for a device. Sign-in merges
// the two stores once per transition; sign-out falls back to the local
// snapshot without erasing anything remote.
func (r *Reconciler) OnAuthChange(ctx context.Context, deviceID string, ev session.Event) {
	switch ev.Kind {
	case session.EventSignedOut:
		r.mu.Lock()
		delete(r.synced, deviceID)
		delete(r.dirty, deviceID)
		r.mu.Unlock()
	default:
		if ev.Session == nil {
			return
		}
		shopper := Shopper{DeviceID: deviceID, Identity: domain.Authenticated(ev.Session.UserID)}
		if err := r.EnsureSynced(ctx, shopper); err != nil {
			r.log.WithError(err).WithField("device_id", deviceID).
				Warn("store merge failed, keeping pre-sync local snapshot")
		}
	}
}

// EnsureSynced runs Sync exactly once per Anonymous -> Authenticated
// transition of a device. Token refreshes and repeated requests after a
// successful merge are no-ops.
func (r *Reconciler) EnsureSynced(ctx context.Context, shopper Shopper) error {
	if !shopper.Identity.IsAuthenticated() {
		return nil
	}

	r.mu.Lock()
	already := r.synced[shopper.DeviceID] == shopper.Identity.UserID
	r.mu.Unlock()
	if already {
		return nil
	}

	if err := r.Sync(ctx, shopper); err != nil {
		return err
	}

	r.mu.Lock()
	r.synced[shopper.DeviceID] = shopper.Identity.UserID
	r.mu.Unlock()
	return nil
}

// Sync merges the local snapshot with the remote store and converges both to
// the union. Remote wins on conflicting quantities for keys present in both.
// The merge is idempotent: re-running it with no intervening mutation leaves
// the resulting set unchanged. A failure keeps the pre-sync local snapshot so
// a failed merge never empties the cart.
func (r *Reconciler) Sync(ctx context.Context, shopper Shopper) error {
	if !shopper.Identity.IsAuthenticated() {
		return nil
	}
	userID := shopper.Identity.UserID

	before, err := r.local.LoadCart(ctx, shopper.DeviceID)
	if err != nil {
		return fmt.Errorf("load local cart: %w", err)
	}

	remoteCart, err := r.fetchRemoteCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch remote cart: %w", err)
	}

	if !before.IsEmpty() {
		// Push only the keys remote does not have. Keys present on both
		// sides are already merged; remote's quantity wins.
		diff := DiffLines(remoteCart.Lines, before.Lines)
		for _, line := range diff.ToAdd {
			if err := r.carts.AddItem(ctx, userID, line); err != nil {
				return fmt.Errorf("push local line %s/%s: %w", line.ProductID, line.VariantKey, err)
			}
		}
	}

	// Re-fetch the superset, then overwrite the local snapshot under the
	// mutation lock. Add/Remove/UpdateQuantity may have landed while the
	// remote round trips were in flight; those serialize on r.mu, so the
	// delta between the pre-sync snapshot and a fresh read is exactly what
	// the overwrite must preserve.
	merged, err := r.fetchRemoteCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("re-fetch merged cart: %w", err)
	}

	r.mu.Lock()
	current, err := r.local.LoadCart(ctx, shopper.DeviceID)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("reload local cart: %w", err)
	}
	localCopy := &domain.Cart{
		OwnerID:   shopper.DeviceID,
		Lines:     applyLocalDelta(merged.Lines, before.Lines, current.Lines),
		CreatedAt: merged.CreatedAt,
		UpdatedAt: merged.UpdatedAt,
	}
	err = r.local.SaveCart(ctx, shopper.DeviceID, localCopy)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("overwrite local cart: %w", err)
	}

	return r.syncWishlist(ctx, shopper)
}

// applyLocalDelta replays mutations that landed between the base and current
// local snapshots on top of the merged remote lines, so a mid-merge Add,
// Remove, or quantity change is never clobbered by the overwrite.
func applyLocalDelta(merged, base, current []domain.CartLine) []domain.CartLine {
	delta := DiffLines(base, current)
	if delta.IsEmpty() {
		return merged
	}

	out := append([]domain.CartLine(nil), merged...)
	index := make(map[domain.LineKey]int, len(out))
	for i, line := range out {
		index[line.Key()] = i
	}

	for _, key := range delta.ToRemove {
		if i, ok := index[key]; ok {
			out = append(out[:i], out[i+1:]...)
			delete(index, key)
			for j := i; j < len(out); j++ {
				index[out[j].Key()] = j
			}
		}
	}
	for _, change := range delta.ToUpdate {
		if i, ok := index[change.Key]; ok {
			out[i].Quantity = change.NewQuantity
		}
	}
	for _, line := range delta.ToAdd {
		if i, ok := index[line.Key()]; ok {
			out[i] = line
		} else {
			index[line.Key()] = len(out)
			out = append(out, line)
		}
	}
	return out
}

func (r *Reconciler) syncWishlist(ctx context.Context, shopper Shopper) error {
	userID := shopper.Identity.UserID

	before, err := r.local.LoadWishlist(ctx, shopper.DeviceID)
	if err != nil {
		return fmt.Errorf("load local wishlist: %w", err)
	}
	if err := r.wishlists.SyncWishlist(ctx, userID, before.ProductIDs); err != nil {
		return fmt.Errorf("push local wishlist: %w", err)
	}

	merged, err := r.wishlists.GetWishlistItems(ctx, userID)
	if err != nil {
		return fmt.Errorf("re-fetch merged wishlist: %w", err)
	}

	// Same overwrite discipline as the cart: wishlist mutations that landed
	// mid-merge survive the snapshot replacement.
	r.mu.Lock()
	current, err := r.local.LoadWishlist(ctx, shopper.DeviceID)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("reload local wishlist: %w", err)
	}
	localCopy := &domain.Wishlist{
		OwnerID:    shopper.DeviceID,
		ProductIDs: applyWishlistDelta(merged.ProductIDs, before.ProductIDs, current.ProductIDs),
	}
	err = r.local.SaveWishlist(ctx, shopper.DeviceID, localCopy)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("overwrite local wishlist: %w", err)
	}
	return nil
}

func applyWishlistDelta(merged, base, current []string) []string {
	baseSet := make(map[string]bool, len(base))
	for _, id := range base {
		baseSet[id] = true
	}
	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}

	out := make([]string, 0, len(merged))
	seen := make(map[string]bool, len(merged))
	for _, id := range merged {
		// Present at base but gone now means a mid-merge removal.
		if baseSet[id] && !currentSet[id] {
			continue
		}
		out = append(out, id)
		seen[id] = true
	}
	for _, id := range current {
		if !baseSet[id] && !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// ClearAfterOrder purges fulfilled cart lines from both stores. Called by the
// order placement path and the cart-clear event consumer.
func (r *Reconciler) ClearAfterOrder(ctx context.Context, shopper Shopper) error {
	r.mu.Lock()
	cart, err := r.local.LoadCart(ctx, shopper.DeviceID)
	if err == nil {
		cart.Lines = nil
		err = r.local.SaveCart(ctx, shopper.DeviceID, cart)
	}
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("clear local cart: %w", err)
	}

	if shopper.Identity.IsAuthenticated() {
		if err := r.carts.Clear(ctx, shopper.Identity.UserID); err != nil && !errors.Is(err, remote.ErrCartNotFound) {
			return fmt.Errorf("clear remote cart: %w", err)
		}
	}
	return nil
}

// fetchRemoteCart collapses concurrent fetches for the same user into one
// round trip. A missing remote cart is the empty cart, not an error.
func (r *Reconciler) fetchRemoteCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := r.sfg.Do("cart:"+userID, func() (interface{}, error) {
		cart, err := r.carts.List(ctx, userID)
		if errors.Is(err, remote.ErrCartNotFound) {
			return &domain.Cart{OwnerID: userID}, nil
		}
		return cart, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// mirror runs a remote cart mutation off the request path. The shopper never
// waits on it and never sees its failure; a failed call marks the device
// dirty so the next mutation replays the whole snapshot instead.
func (r *Reconciler) mirror(shopper Shopper, op string, fn func(ctx context.Context) error) {
	if !shopper.Identity.IsAuthenticated() {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.mirrorTimeout)
		defer cancel()

		r.mu.Lock()
		dirty := r.dirty[shopper.DeviceID]
		r.mu.Unlock()

		if dirty {
			if err := r.replay(ctx, shopper); err != nil {
				r.log.WithError(err).WithField("device_id", shopper.DeviceID).
					Warn("snapshot replay failed, staying local-only")
				return
			}
			r.mu.Lock()
			delete(r.dirty, shopper.DeviceID)
			r.mu.Unlock()
			return
		}

		if err := fn(ctx); err != nil {
			r.log.WithError(err).WithField("op", op).
				Warn("remote mirror failed, continuing local-only")
			r.mu.Lock()
			r.dirty[shopper.DeviceID] = true
			r.mu.Unlock()
		}
	}()
}

// replay makes the remote cart match the local snapshot exactly. Used after
// a mirror failure, when the local store is the only copy known to be right.
func (r *Reconciler) replay(ctx context.Context, shopper Shopper) error {
	userID := shopper.Identity.UserID

	local, err := r.local.LoadCart(ctx, shopper.DeviceID)
	if err != nil {
		return fmt.Errorf("load local cart: %w", err)
	}
	remoteCart, err := r.fetchRemoteCart(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch remote cart: %w", err)
	}

	diff := DiffLines(remoteCart.Lines, local.Lines)
	for _, key := range diff.ToRemove {
		if err := r.carts.RemoveItem(ctx, userID, key); err != nil && !errors.Is(err, remote.ErrItemNotFound) {
			return fmt.Errorf("replay remove: %w", err)
		}
	}
	for _, change := range diff.ToUpdate {
		if err := r.carts.UpdateQuantity(ctx, userID, change.Key, change.NewQuantity); err != nil {
			return fmt.Errorf("replay update: %w", err)
		}
	}
	for _, line := range diff.ToAdd {
		if err := r.carts.AddItem(ctx, userID, line); err != nil {
			return fmt.Errorf("replay add: %w", err)
		}
	}
	return nil
}
