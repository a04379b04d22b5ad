package order

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajbirverr/centurionintimates-sub000/internal/checkout"
	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
)

type mockRepo struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*Order
	createErr   error
	createCalls int
}

func newMockRepo() *mockRepo {
	return &mockRepo{orders: make(map[uuid.UUID]*Order)}
}

func (m *mockRepo) CreateOrder(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.orders[order.CheckoutID]; exists {
		return ErrDuplicateCheckout
	}
	stored := *order
	m.orders[order.CheckoutID] = &stored
	return nil
}

func (m *mockRepo) GetOrderByCheckoutID(_ context.Context, checkoutID uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[checkoutID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (m *mockRepo) GetOrderByNumber(_ context.Context, orderNumber string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *mockRepo) ListOrdersByOwner(_ context.Context, ownerID string) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, order := range m.orders {
		if order.OwnerID == ownerID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (m *mockRepo) GetUnprocessedEvents(context.Context, int) ([]*OutboxEvent, error) {
	return nil, nil
}

func (m *mockRepo) MarkEventAsProcessed(context.Context, int64) error { return nil }

func (m *mockRepo) Close() error { return nil }

type mockCleaner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockCleaner) ClearAfterOrder(context.Context, reconcile.Shopper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func testService(repo RepoInterface, cleaner CartCleaner) *Service {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(repo, cleaner, log).WithCooldown(0)
}

func testShopper() reconcile.Shopper {
	return reconcile.Shopper{DeviceID: "dev-1", Identity: domain.Authenticated("u1")}
}

func testCart() *domain.Cart {
	return &domain.Cart{
		OwnerID: "dev-1",
		Lines:   []domain.CartLine{{ProductID: "P1", VariantKey: "M", Quantity: 2, UnitPrice: 50000}},
	}
}

func testTotals() checkout.Totals {
	return checkout.Totals{Subtotal: 100000, Shipping: 12000, Tax: 18000, Total: 130000}
}

func testState() checkout.State {
	return checkout.State{
		Step:         checkout.StepPayment,
		ShippingInfo: checkout.ShippingInfo{FirstName: "Asha", PostalCode: "560001"},
		Selection:    checkout.Selection{Method: "standard", Cost: 12000},
	}
}

func TestPlaceOrder_SuccessClearsCart(t *testing.T) {
	repo := newMockRepo()
	cleaner := &mockCleaner{}
	svc := testService(repo, cleaner)

	number, placed, err := svc.PlaceOrder(context.Background(), testShopper(), testState(), testTotals(), testCart())
	require.NoError(t, err)
	assert.True(t, placed)
	assert.NotEmpty(t, number)
	assert.Equal(t, 1, cleaner.calls)

	stored, err := svc.OrderByNumber(context.Background(), number)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.OwnerID)
	assert.Equal(t, domain.Paise(130000), stored.Total)
	assert.Equal(t, StatusConfirmed, stored.Status)
}

func TestPlaceOrder_EmptyCartRejected(t *testing.T) {
	repo := newMockRepo()
	svc := testService(repo, &mockCleaner{})

	_, placed, err := svc.PlaceOrder(context.Background(), testShopper(), testState(), checkout.Totals{}, &domain.Cart{OwnerID: "dev-1"})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.False(t, placed)
	assert.Equal(t, 0, repo.createCalls)
}

func TestPlaceOrder_RetryAfterFailureReusesAttempt(t *testing.T) {
	repo := newMockRepo()
	svc := testService(repo, &mockCleaner{})
	ctx := context.Background()

	repo.createErr = errors.New("db down")
	_, placed, err := svc.PlaceOrder(ctx, testShopper(), testState(), testTotals(), testCart())
	require.Error(t, err)
	assert.False(t, placed)

	// Same attempt ID on retry means a crash after commit-but-before-ack
	// would dedupe on the unique constraint rather than double-charge.
	firstAttempt := svc.attemptID("dev-1")
	repo.createErr = nil
	number, placed, err := svc.PlaceOrder(ctx, testShopper(), testState(), testTotals(), testCart())
	require.NoError(t, err)
	assert.True(t, placed)

	stored, err := repo.GetOrderByCheckoutID(ctx, firstAttempt)
	require.NoError(t, err)
	assert.Equal(t, number, stored.OrderNumber)
}

func TestPlaceOrder_DuplicateCheckoutReturnsExistingNumber(t *testing.T) {
	repo := newMockRepo()
	svc := testService(repo, &mockCleaner{})
	ctx := context.Background()

	// Pre-seed an order under the attempt ID the service will use.
	attempt := svc.attemptID("dev-1")
	existing := &Order{OrderNumber: "ORD-existing", CheckoutID: attempt, OwnerID: "u1"}
	require.NoError(t, repo.CreateOrder(ctx, existing))

	number, placed, err := svc.PlaceOrder(ctx, testShopper(), testState(), testTotals(), testCart())
	require.NoError(t, err)
	assert.True(t, placed)
	assert.Equal(t, "ORD-existing", number, "the order number is never regenerated")
}

func TestPlaceOrder_NewAttemptAfterSuccess(t *testing.T) {
	repo := newMockRepo()
	svc := testService(repo, &mockCleaner{})
	ctx := context.Background()

	first, placed, err := svc.PlaceOrder(ctx, testShopper(), testState(), testTotals(), testCart())
	require.NoError(t, err)
	require.True(t, placed)

	second, placed, err := svc.PlaceOrder(ctx, testShopper(), testState(), testTotals(), testCart())
	require.NoError(t, err)
	require.True(t, placed)
	assert.NotEqual(t, first, second, "a fresh checkout gets a fresh order")
	assert.Equal(t, 2, repo.createCalls)
}

func TestPlaceOrder_CartClearFailureDoesNotFailOrder(t *testing.T) {
	repo := newMockRepo()
	cleaner := &mockCleaner{err: errors.New("redis unreachable")}
	svc := testService(repo, cleaner)

	number, placed, err := svc.PlaceOrder(context.Background(), testShopper(), testState(), testTotals(), testCart())
	require.NoError(t, err)
	assert.True(t, placed)
	assert.NotEmpty(t, number)
}

func TestPlaceOrder_GuestOrderKeyedByDevice(t *testing.T) {
	repo := newMockRepo()
	svc := testService(repo, &mockCleaner{})
	shopper := reconcile.Shopper{DeviceID: "dev-9", Identity: domain.Anonymous()}

	number, placed, err := svc.PlaceOrder(context.Background(), shopper, testState(), testTotals(), testCart())
	require.NoError(t, err)
	require.True(t, placed)

	stored, err := svc.OrderByNumber(context.Background(), number)
	require.NoError(t, err)
	assert.Equal(t, "dev-9", stored.OwnerID)
}
