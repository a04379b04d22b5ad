// Package checkout drives the Shipping -> Payment -> Confirmation step
// sequence and derives order totals from the live cart. The UI is a pure
// projection of this state; nothing here is a cached copy of the cart.
package checkout

import (
	"errors"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/shipping"
)

// Step is the checkout position. Steps advance forward only on successful
// validation of the current step's form; Payment may move back to Shipping
// freely without re-validation.
type Step int

const (
	StepShipping     Step = 1
	StepPayment      Step = 2
	StepConfirmation Step = 3
)

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "SHIPPING"
	case StepPayment:
		return "PAYMENT"
	case StepConfirmation:
		return "CONFIRMATION"
	}
	return "UNKNOWN"
}

// CanTransitionTo reports whether the step change is legal: one step forward,
// or backward from Payment to Shipping.
func CanTransitionTo(from, to Step) bool {
	if to == from+1 {
		return true
	}
	return from == StepPayment && to == StepShipping
}

var ErrIllegalTransition = errors.New("illegal checkout step transition")

// ShippingInfo is the shipping address form.
type ShippingInfo struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// BillingInfo mirrors ShippingInfo unless the shopper overrides it.
type BillingInfo struct {
	SameAsShipping bool   `json:"same_as_shipping"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
}

// PaymentMethod selects which validation applies to PaymentInfo.
type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentUPI    PaymentMethod = "upi"
	PaymentWallet PaymentMethod = "wallet"
)

// PaymentInfo is the payment form. Only the fields for the selected method
// are validated.
type PaymentInfo struct {
	Method     PaymentMethod `json:"method"`
	CardNumber string        `json:"card_number"`
	CardName   string        `json:"card_name"`
	Expiry     string        `json:"expiry"`
	CVV        string        `json:"cvv"`
	UPIID      string        `json:"upi_id"`
	WalletID   string        `json:"wallet_id"`
}

// Selection is the chosen shipping method with its cost and estimate.
// Recomputed whenever the destination postal code or the available methods
// change.
type Selection struct {
	Method   string       `json:"method"`
	Cost     domain.Paise `json:"cost"`
	Estimate string       `json:"estimate"`
}

// State is the full checkout position for one session.
type State struct {
	Step         Step              `json:"step"`
	ShippingInfo ShippingInfo      `json:"shipping_info"`
	BillingInfo  BillingInfo       `json:"billing_info"`
	PaymentInfo  PaymentInfo       `json:"payment_info"`
	Selection    Selection         `json:"selection"`
	Available    []shipping.Method `json:"available_methods"`
	RatesLoading bool              `json:"rates_loading"`
	RatesMessage string            `json:"rates_message,omitempty"`
	OrderNumber  string            `json:"order_number,omitempty"`
}

// Totals are derived from the cart on every read, never stored.
type Totals struct {
	Subtotal domain.Paise `json:"subtotal"`
	Shipping domain.Paise `json:"shipping"`
	Tax      domain.Paise `json:"tax"`
	Total    domain.Paise `json:"total"`
}

// DeriveTotals recomputes the money view from the current cart contents and
// shipping cost: subtotal, 18% tax on the subtotal, and their sum.
func DeriveTotals(cart *domain.Cart, shippingCost domain.Paise) Totals {
	subtotal := cart.Subtotal()
	tax := subtotal.Tax()
	return Totals{
		Subtotal: subtotal,
		Shipping: shippingCost,
		Tax:      tax,
		Total:    subtotal + shippingCost + tax,
	}
}
