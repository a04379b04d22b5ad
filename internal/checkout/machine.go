package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
	"github.com/rajbirverr/centurionintimates-sub000/internal/shipping"
)

// CartSource reads the live cart. Totals derive from it on every call; the
// machine never holds a copy.
type CartSource interface {
	Cart(ctx context.Context, shopper reconcile.Shopper) (*domain.Cart, error)
}

// OrderPlacer commits the one-shot place-order side effect. placed reports
// whether this call performed the commit; false with a nil error means
// another commit was already in flight and this one was a no-op.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, shopper reconcile.Shopper, st State, totals Totals, cart *domain.Cart) (orderNumber string, placed bool, err error)
}

// RatesPrompt is shown instead of an empty-result state while the postal
// code is shorter than six digits.
const RatesPrompt = "enter a 6-digit postal code to see shipping options"

// Machine sequences one shopper's checkout. All mutations go through its
// lock; rate lookups deliver asynchronously through onRates.
type Machine struct {
	shopper reconcile.Shopper
	carts   CartSource
	placer  OrderPlacer
	lookup  *shipping.Lookup
	log     *logrus.Logger

	mu    sync.Mutex
	state State
}

func NewMachine(shopper reconcile.Shopper, carts CartSource, resolver shipping.RateResolver, placer OrderPlacer, log *logrus.Logger) *Machine {
	m := &Machine{
		shopper: shopper,
		carts:   carts,
		placer:  placer,
		log:     log,
		state: State{
			Step:         StepShipping,
			RatesMessage: RatesPrompt,
		},
	}
	m.lookup = shipping.NewLookup(resolver, log, m.onRates)
	return m
}

// State returns a copy of the current checkout position.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.Available = append([]shipping.Method(nil), m.state.Available...)
	st.RatesLoading = m.lookup.Loading()
	return st
}

// Totals recomputes the money view from the live cart and the current
// shipping selection.
func (m *Machine) Totals(ctx context.Context) (Totals, error) {
	cart, err := m.carts.Cart(ctx, m.shopper)
	if err != nil {
		return Totals{}, fmt.Errorf("read cart: %w", err)
	}
	m.mu.Lock()
	cost := m.state.Selection.Cost
	m.mu.Unlock()
	return DeriveTotals(cart, cost), nil
}

// SetPostalCode records the typed destination and re-fetches rates once the
// code reaches six valid digits. Shorter input suppresses the lookup and
// shows the prompt.
func (m *Machine) SetPostalCode(ctx context.Context, code string) {
	m.mu.Lock()
	m.state.ShippingInfo.PostalCode = code
	m.mu.Unlock()

	if !m.lookup.SetPostalCode(ctx, code) {
		m.mu.Lock()
		m.state.Available = nil
		m.state.RatesMessage = RatesPrompt
		m.mu.Unlock()
	}
}

// onRates receives settled (never stale) rate lookups.
func (m *Machine) onRates(res shipping.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.Err != nil {
		m.state.Available = nil
		m.state.RatesMessage = "could not fetch shipping rates, try again"
		m.log.WithError(res.Err).WithField("postal_code", res.PostalCode).
			Warn("shipping rate resolution failed")
		return
	}
	if len(res.Methods) == 0 {
		m.state.Available = nil
		m.state.RatesMessage = "no shipping methods available for this postal code"
		return
	}

	m.state.Available = res.Methods
	m.state.RatesMessage = ""
	m.applySelectionLocked(m.state.Selection.Method)
}

// applySelectionLocked keeps the selection valid against the available
// methods, defaulting to standard.
func (m *Machine) applySelectionLocked(preferred string) {
	if preferred == "" {
		preferred = shipping.MethodStandard
	}
	var fallback *shipping.Method
	for i := range m.state.Available {
		method := m.state.Available[i]
		if method.Method == preferred {
			m.state.Selection = Selection{Method: method.Method, Cost: method.Cost, Estimate: method.EstimatedDelivery}
			return
		}
		if fallback == nil {
			fallback = &method
		}
	}
	if fallback != nil {
		m.state.Selection = Selection{Method: fallback.Method, Cost: fallback.Cost, Estimate: fallback.EstimatedDelivery}
	}
}

// SelectMethod switches the shipping selection to one of the available
// methods.
func (m *Machine) SelectMethod(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, available := range m.state.Available {
		if available.Method == method {
			m.state.Selection = Selection{Method: available.Method, Cost: available.Cost, Estimate: available.EstimatedDelivery}
			return nil
		}
	}
	return fmt.Errorf("shipping method %q is not available", method)
}

// SubmitShipping validates the shipping form and advances to Payment. The
// transition is synchronous and side-effect-free.
func (m *Machine) SubmitShipping(info ShippingInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransitionTo(m.state.Step, StepPayment) {
		return ErrIllegalTransition
	}
	if errs := ValidateShipping(info); errs != nil {
		return errs
	}

	m.state.ShippingInfo = info
	if m.state.BillingInfo.SameAsShipping || m.state.BillingInfo == (BillingInfo{}) {
		m.state.BillingInfo = BillingInfo{
			SameAsShipping: true,
			Address:        info.Address,
			City:           info.City,
			State:          info.State,
			PostalCode:     info.PostalCode,
		}
	}
	m.state.Step = StepPayment
	return nil
}

// Back returns from Payment to Shipping without re-validation.
func (m *Machine) Back() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransitionTo(m.state.Step, StepShipping) {
		return ErrIllegalTransition
	}
	m.state.Step = StepShipping
	return nil
}

// SubmitPayment validates the payment form and invokes the order placement
// guard. The transition to Confirmation completes only when the guard
// resolves; the resulting order number is attached first. placed is false
// when the guard absorbed the call as a duplicate.
func (m *Machine) SubmitPayment(ctx context.Context, info PaymentInfo) (placed bool, err error) {
	m.mu.Lock()
	if !CanTransitionTo(m.state.Step, StepConfirmation) {
		m.mu.Unlock()
		return false, ErrIllegalTransition
	}
	if errs := ValidatePayment(info); errs != nil {
		m.mu.Unlock()
		return false, errs
	}
	m.state.PaymentInfo = info
	st := m.state
	m.mu.Unlock()

	cart, err := m.carts.Cart(ctx, m.shopper)
	if err != nil {
		return false, fmt.Errorf("read cart: %w", err)
	}
	totals := DeriveTotals(cart, st.Selection.Cost)

	orderNumber, placed, err := m.placer.PlaceOrder(ctx, m.shopper, st, totals, cart)
	if err != nil {
		// Recoverable: the form survives, the cart is untouched, the
		// shopper may retry.
		return false, err
	}
	if !placed {
		return false, nil
	}

	m.mu.Lock()
	m.state.OrderNumber = orderNumber
	m.state.Step = StepConfirmation
	m.mu.Unlock()
	return true, nil
}

// ResetIfCompleted starts a fresh checkout after a confirmed order, keeping
// the confirmation view intact until new shopping begins.
func (m *Machine) ResetIfCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Step == StepConfirmation {
		m.state = State{Step: StepShipping, RatesMessage: RatesPrompt}
	}
}
