package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/rajbirverr/centurionintimates-sub000/internal/order"
)

// Topic carries order-placed events from the outbox to interested consumers.
const Topic = "order-placed"

// MessageWriter is the slice of kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller drains the order outbox into Kafka. Rows are marked processed
// only after a successful publish, so delivery is at-least-once.
type OutboxPoller struct {
	tick      time.Duration
	batchSize int
	repo      order.RepoInterface
	writer    MessageWriter
	log       *logrus.Logger
}

func NewOutboxPoller(repo order.RepoInterface, log *logrus.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		tick:      time.Second,
		batchSize: 100,
		repo:      repo,
		writer:    w,
		log:       log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() {
	if err := p.writer.Close(); err != nil {
		p.log.WithError(err).Warn("error closing kafka writer")
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	outboxEvents, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to fetch outbox events")
		return
	}

	for _, event := range outboxEvents {
		if errPublish := p.publish(ctx, event); errPublish != nil {
			p.log.WithError(errPublish).WithField("event_id", event.ID).
				Error("failed to publish outbox event")
			continue
		}
		if errMark := p.repo.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
			p.log.WithError(errMark).WithField("event_id", event.ID).
				Error("failed to mark outbox event as processed")
			continue
		}
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *order.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order number, keeps per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
