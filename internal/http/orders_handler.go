package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rajbirverr/centurionintimates-sub000/internal/order"
)

// OrderReader is the slice of the order service the handler uses.
type OrderReader interface {
	OrderByNumber(ctx context.Context, orderNumber string) (*order.Order, error)
	OrdersForOwner(ctx context.Context, ownerID string) ([]*order.Order, error)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	ownerID := shopper.DeviceID
	if shopper.Identity.IsAuthenticated() {
		ownerID = shopper.Identity.UserID
	}

	orders, err := h.orders.OrdersForOwner(ctx, ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	orderNumber := chi.URLParam(r, "order_number")
	if orderNumber == "" {
		respondError(w, http.StatusBadRequest, "invalid_order_number", "order_number is required")
		return
	}

	ord, err := h.orders.OrderByNumber(ctx, orderNumber)
	if errors.Is(err, order.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load order")
		return
	}

	// Guests can only see orders placed from their own device.
	ownerID := shopper.DeviceID
	if shopper.Identity.IsAuthenticated() {
		ownerID = shopper.Identity.UserID
	}
	if ord.OwnerID != ownerID && ord.DeviceID != shopper.DeviceID {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}

	respondJSON(w, http.StatusOK, ord)
}
