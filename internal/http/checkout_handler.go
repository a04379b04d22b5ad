package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rajbirverr/centurionintimates-sub000/internal/checkout"
)

type CheckoutHandler struct {
	checkouts *checkout.Service
	timeout   time.Duration
}

func NewCheckoutHandler(checkouts *checkout.Service, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkouts: checkouts,
		timeout:   timeout,
	}
}

type PostalCodeRequestDTO struct {
	PostalCode string `json:"postal_code"`
}

type SelectMethodRequestDTO struct {
	Method string `json:"method"`
}

type CheckoutStateDTO struct {
	State  checkout.State  `json:"state"`
	Totals checkout.Totals `json:"totals"`
}

func (h *CheckoutHandler) state(ctx context.Context, w http.ResponseWriter, m *checkout.Machine) {
	totals, err := m.Totals(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to derive totals")
		return
	}
	respondJSON(w, http.StatusOK, CheckoutStateDTO{State: m.State(), Totals: totals})
}

func (h *CheckoutHandler) GetState(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	h.state(ctx, w, h.checkouts.Machine(shopper))
}

func (h *CheckoutHandler) SetPostalCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	var req PostalCodeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	m := h.checkouts.Machine(shopper)
	m.SetPostalCode(ctx, req.PostalCode)
	h.state(ctx, w, m)
}

func (h *CheckoutHandler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	var req SelectMethodRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	m := h.checkouts.Machine(shopper)
	if err := m.SelectMethod(req.Method); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_method", err.Error())
		return
	}
	h.state(ctx, w, m)
}

func (h *CheckoutHandler) SubmitShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	var info checkout.ShippingInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	m := h.checkouts.Machine(shopper)
	if err := m.SubmitShipping(info); err != nil {
		var fieldErrs checkout.FieldErrors
		switch {
		case errors.As(err, &fieldErrs):
			respondFieldErrors(w, fieldErrs)
		case errors.Is(err, checkout.ErrIllegalTransition):
			respondError(w, http.StatusConflict, "illegal_transition", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to submit shipping")
		}
		return
	}
	h.state(ctx, w, m)
}

func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	m := h.checkouts.Machine(shopper)
	if err := m.Back(); err != nil {
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
		return
	}
	h.state(ctx, w, m)
}

func (h *CheckoutHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	var info checkout.PaymentInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	m := h.checkouts.Machine(shopper)
	placed, err := m.SubmitPayment(ctx, info)
	if err != nil {
		var fieldErrs checkout.FieldErrors
		switch {
		case errors.As(err, &fieldErrs):
			respondFieldErrors(w, fieldErrs)
		case errors.Is(err, checkout.ErrIllegalTransition):
			respondError(w, http.StatusConflict, "illegal_transition", err.Error())
		default:
			// Recoverable: the shopper may retry with the same form.
			respondError(w, http.StatusBadGateway, "placement_failed", "order placement failed, please try again")
		}
		return
	}
	if !placed {
		respondError(w, http.StatusAccepted, "placement_in_flight", "an order placement is already in progress")
		return
	}
	h.state(ctx, w, m)
}

// Prefill maps the authenticated shopper's saved profile to a shipping form.
// Anonymous shoppers get an empty form.
func (h *CheckoutHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		respondJSON(w, http.StatusOK, checkout.ShippingInfo{})
		return
	}

	respondJSON(w, http.StatusOK, checkout.ShippingInfo{
		FirstName:  sess.FirstName,
		LastName:   sess.LastName,
		Email:      sess.Email,
		Phone:      sess.Phone,
		Address:    sess.Address,
		City:       sess.City,
		State:      sess.State,
		PostalCode: sess.PostalCode,
	})
}

func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	m := h.checkouts.Machine(shopper)
	m.ResetIfCompleted()
	h.state(ctx, w, m)
}
