package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/rajbirverr/centurionintimates-sub000/internal/checkout"
	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
)

type Status string

const (
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
)

// Order is created exactly once per checkout attempt, server side. The
// order number is issued here and never regenerated, including on retry.
type Order struct {
	OrderNumber    string                `json:"order_number"`
	CheckoutID     uuid.UUID             `json:"checkout_id"`
	OwnerID        string                `json:"owner_id"` // user ID, or device ID for guests
	DeviceID       string                `json:"device_id"`
	Lines          []domain.CartLine     `json:"lines"`
	Subtotal       domain.Paise          `json:"subtotal"`
	ShippingCost   domain.Paise          `json:"shipping_cost"`
	Tax            domain.Paise          `json:"tax"`
	Total          domain.Paise          `json:"total"`
	ShippingMethod string                `json:"shipping_method"`
	ShippingInfo   checkout.ShippingInfo `json:"shipping_info"`
	Status         Status                `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// newOrderNumber issues the immutable server-side identifier.
func newOrderNumber() string {
	return "ORD-" + uuid.New().String()
}
