package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
)

// CartAPI is the slice of the reconciler the cart and wishlist handlers use.
type CartAPI interface {
	Cart(ctx context.Context, shopper reconcile.Shopper) (*domain.Cart, error)
	Add(ctx context.Context, shopper reconcile.Shopper, line domain.CartLine) (domain.CartLine, error)
	UpdateQuantity(ctx context.Context, shopper reconcile.Shopper, key domain.LineKey, quantity int) error
	Remove(ctx context.Context, shopper reconcile.Shopper, key domain.LineKey) error
	Wishlist(ctx context.Context, shopper reconcile.Shopper) (*domain.Wishlist, error)
	AddToWishlist(ctx context.Context, shopper reconcile.Shopper, productID string) error
	RemoveFromWishlist(ctx context.Context, shopper reconcile.Shopper, productID string) error
}

type CartHandler struct {
	carts   CartAPI
	timeout time.Duration
}

func NewCartHandler(carts CartAPI, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Name      string `json:"name"`
	ImageRef  string `json:"image_ref"`
}

type UpdateQuantityRequestDTO struct {
	Variant  string `json:"variant"`
	Quantity int    `json:"quantity"`
}

type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	cart, err := h.carts.Cart(ctx, shopper)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	if req.UnitPrice < 0 {
		respondError(w, http.StatusBadRequest, "invalid_unit_price", "unit_price must not be negative")
		return
	}

	line, err := h.carts.Add(ctx, shopper, domain.CartLine{
		ProductID:  req.ProductID,
		VariantKey: req.Variant,
		Quantity:   req.Quantity,
		UnitPrice:  domain.Paise(req.UnitPrice),
		Name:       req.Name,
		ImageRef:   req.ImageRef,
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrQuantityTooLow) {
			respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to add item")
		return
	}

	respondJSON(w, http.StatusCreated, line)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	key := domain.LineKey{ProductID: productID, VariantKey: req.Variant}
	if err := h.carts.UpdateQuantity(ctx, shopper, key, req.Quantity); err != nil {
		switch {
		case errors.Is(err, reconcile.ErrLineNotFound):
			respondError(w, http.StatusNotFound, "not_found", "cart line not found")
		case errors.Is(err, reconcile.ErrQuantityTooLow):
			respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "failed to update quantity")
		}
		return
	}

	cart, err := h.carts.Cart(ctx, shopper)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	variant := r.URL.Query().Get("variant")

	key := domain.LineKey{ProductID: productID, VariantKey: variant}
	if err := h.carts.Remove(ctx, shopper, key); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to remove item")
		return
	}

	cart, err := h.carts.Cart(ctx, shopper)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

type WishlistItemRequestDTO struct {
	ProductID string `json:"product_id"`
}

func (h *CartHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	wishlist, err := h.carts.Wishlist(ctx, shopper)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load wishlist")
		return
	}
	respondJSON(w, http.StatusOK, wishlist)
}

func (h *CartHandler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	var req WishlistItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	if err := h.carts.AddToWishlist(ctx, shopper, req.ProductID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to add to wishlist")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (h *CartHandler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	shopper, ok := shopperFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusBadRequest, "missing_device", "missing device identifier")
		return
	}

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	if err := h.carts.RemoveFromWishlist(ctx, shopper, productID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to remove from wishlist")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondFieldErrors(w http.ResponseWriter, details interface{}) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "validation failed",
		Code:    "validation_error",
		Details: details,
	})
}
