package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/rajbirverr/centurionintimates-sub000/internal/domain"
	"github.com/rajbirverr/centurionintimates-sub000/internal/reconcile"
)

// MessageReader is the slice of kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartCleaner empties both stores for a shopper whose order was placed.
type CartCleaner interface {
	ClearAfterOrder(ctx context.Context, shopper reconcile.Shopper) error
}

// CartClearPoller consumes order-placed events and empties the fulfilled
// cart. The placement path clears synchronously; this consumer covers the
// case where that clear failed.
type CartClearPoller struct {
	carts  CartCleaner
	reader MessageReader
	log    *logrus.Logger
}

func NewCartClearPoller(carts CartCleaner, log *logrus.Logger, brokers ...string) *CartClearPoller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  "storefront-cart-clear",
		MaxBytes: 10e6, // 10MB
	})
	return &CartClearPoller{carts: carts, reader: reader, log: log}
}

func (p *CartClearPoller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.consumeAndClear(ctx)
	}
}

func (p *CartClearPoller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Warn("error closing kafka reader")
	}
}

type orderPlacedPayload struct {
	OrderNumber string `json:"order_number"`
	OwnerID     string `json:"owner_id"`
	DeviceID    string `json:"device_id"`
}

func (p *CartClearPoller) consumeAndClear(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.WithError(err).Error("error reading order-placed message")
		}
		return
	}

	var payload orderPlacedPayload
	if errUnmarshal := json.Unmarshal(m.Value, &payload); errUnmarshal != nil {
		p.log.WithError(errUnmarshal).Error("error parsing order-placed message")
		return
	}
	if payload.DeviceID == "" {
		p.log.Warn("order-placed message missing device_id")
		return
	}

	shopper := reconcile.Shopper{DeviceID: payload.DeviceID, Identity: domain.Anonymous()}
	if payload.OwnerID != "" && payload.OwnerID != payload.DeviceID {
		shopper.Identity = domain.Authenticated(payload.OwnerID)
	}

	if errClear := p.carts.ClearAfterOrder(ctx, shopper); errClear != nil {
		p.log.WithError(errClear).WithField("order_number", payload.OrderNumber).
			Error("failed to clear cart for placed order")
	}
}
