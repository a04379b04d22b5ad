package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rajbirverr/centurionintimates-sub000/internal/checkout"
	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
)

var ErrEmptyCart = errors.New("cannot place an order for an empty cart")

// CartCleaner empties both cart stores once the order is committed.
// Satisfied by reconcile.Reconciler.
type CartCleaner interface {
	ClearAfterOrder(ctx context.Context, shopper reconcile.Shopper) error
}

// Service commits orders exactly once per checkout attempt. Each device gets
// its own PlacementGuard; the attempt ID ties retries of the same checkout to
// the same database row.
type Service struct {
	repo     RepoInterface
	carts    CartCleaner
	log      *logrus.Logger
	cooldown time.Duration

	mu       sync.Mutex
	guards   map[string]*PlacementGuard
	attempts map[string]uuid.UUID
}

func NewService(repo RepoInterface, carts CartCleaner, log *logrus.Logger) *Service {
	return &Service{
		repo:     repo,
		carts:    carts,
		log:      log,
		cooldown: DefaultCooldown,
		guards:   make(map[string]*PlacementGuard),
		attempts: make(map[string]uuid.UUID),
	}
}

// WithCooldown overrides the guard release delay. Used in tests.
func (s *Service) WithCooldown(d time.Duration) *Service {
	s.cooldown = d
	return s
}

func (s *Service) guardFor(deviceID string) *PlacementGuard {
	s.mu.Lock()
	defer s.mu.Unlock()
	guard, ok := s.guards[deviceID]
	if !ok {
		guard = NewPlacementGuard(s.cooldown)
		s.guards[deviceID] = guard
	}
	return guard
}

// attemptID returns the checkout attempt identifier for the device, minting
// one on the first call. Retries after a failed commit reuse it, so the
// database unique constraint collapses them onto one order.
func (s *Service) attemptID(deviceID string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.attempts[deviceID]
	if !ok {
		id = uuid.New()
		s.attempts[deviceID] = id
	}
	return id
}

func (s *Service) finishAttempt(deviceID string) {
	s.mu.Lock()
	delete(s.attempts, deviceID)
	s.mu.Unlock()
}

// PlaceOrder implements checkout.OrderPlacer. The guard is taken
// synchronously; a concurrent call for the same device is absorbed as
// (placed=false, err=nil). A duplicate insert for the same attempt returns
// the already-issued order number instead of minting a new one.
func (s *Service) PlaceOrder(ctx context.Context, shopper reconcile.Shopper, st checkout.State, totals checkout.Totals, cart *domain.Cart) (string, bool, error) {
	if cart == nil || cart.IsEmpty() {
		return "", false, ErrEmptyCart
	}

	var orderNumber string
	commit := func() error {
		number, err := s.commit(ctx, shopper, st, totals, cart)
		if err != nil {
			return err
		}
		orderNumber = number
		return nil
	}

	executed, err := s.guardFor(shopper.DeviceID).Do(commit)
	if !executed {
		s.log.WithField("device_id", shopper.DeviceID).
			Info("duplicate place-order call absorbed by guard")
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return orderNumber, true, nil
}

func (s *Service) commit(ctx context.Context, shopper reconcile.Shopper, st checkout.State, totals checkout.Totals, cart *domain.Cart) (string, error) {
	checkoutID := s.attemptID(shopper.DeviceID)

	ownerID := shopper.DeviceID
	if shopper.Identity.IsAuthenticated() {
		ownerID = shopper.Identity.UserID
	}

	ord := &Order{
		OrderNumber:    newOrderNumber(),
		CheckoutID:     checkoutID,
		OwnerID:        ownerID,
		DeviceID:       shopper.DeviceID,
		Lines:          append([]domain.CartLine(nil), cart.Lines...),
		Subtotal:       totals.Subtotal,
		ShippingCost:   totals.Shipping,
		Tax:            totals.Tax,
		Total:          totals.Total,
		ShippingMethod: st.Selection.Method,
		ShippingInfo:   st.ShippingInfo,
		Status:         StatusConfirmed,
	}

	err := s.repo.CreateOrder(ctx, ord)
	if errors.Is(err, ErrDuplicateCheckout) {
		// A previous attempt already committed; surface its number.
		existing, lookupErr := s.repo.GetOrderByCheckoutID(ctx, checkoutID)
		if lookupErr != nil {
			return "", fmt.Errorf("lookup existing order for checkout %s: %w", checkoutID, lookupErr)
		}
		ord = existing
	} else if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	s.finishAttempt(shopper.DeviceID)

	if clearErr := s.carts.ClearAfterOrder(ctx, shopper); clearErr != nil {
		// The cart-clear event consumer will catch up; the order stands.
		s.log.WithError(clearErr).WithFields(logrus.Fields{
			"device_id":    shopper.DeviceID,
			"order_number": ord.OrderNumber,
		}).Warn("failed to clear cart after order placement")
	}

	s.log.WithFields(logrus.Fields{
		"order_number": ord.OrderNumber,
		"owner_id":     ord.OwnerID,
		"total":        ord.Total,
	}).Info("order placed")
	return ord.OrderNumber, nil
}

// OrderByNumber reads one order back, for the confirmation and history views.
func (s *Service) OrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	return s.repo.GetOrderByNumber(ctx, orderNumber)
}

// OrdersForOwner lists a shopper's order history, newest first.
func (s *Service) OrdersForOwner(ctx context.Context, ownerID string) ([]*Order, error) {
	return s.repo.ListOrdersByOwner(ctx, ownerID)
}
