package bookingevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidkaranja/fundilink-backend/internal/escrow"
	pkgerrors "github.com/davidkaranja/fundilink-backend/pkg/errors"
	"github.com/davidkaranja/fundilink-backend/pkg/logger"
)

const consumerName = "booking-events"

// Event types published on the booking lifecycle topic.
const (
	EventBookingCompleted = "booking.completed"
	EventBookingCanceled  = "booking.canceled"
	EventBookingDisputed  = "booking.disputed"
)

// BookingEvent is the envelope carried on the booking events topic.
type BookingEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	BookingID  uuid.UUID `json:"booking_id"`
	OccurredAt time.Time `json:"occurred_at"`

	// Dispute resolutions carry the arbitrated split. Both must be present
	// and sum to the held amount.
	PayerAmount    *decimal.Decimal `json:"payer_amount,omitempty"`
	ProviderAmount *decimal.Decimal `json:"provider_amount,omitempty"`
}

// eventClaimer deduplicates deliveries across consumer instances.
type eventClaimer interface {
	ClaimEvent(ctx context.Context, consumer, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, consumer, eventID string) error
}

// Consumer resolves escrow holds from booking lifecycle events: completion
// releases funds to the provider, cancellation refunds the payer, dispute
// resolutions split the held amount.
type Consumer struct {
	escrow   escrow.Service
	claimer  eventClaimer
	claimTTL time.Duration
	logg     *logger.Logger
}

// ConsumerParams wires the consumer dependencies.
type ConsumerParams struct {
	Escrow   escrow.Service
	Claimer  eventClaimer
	ClaimTTL time.Duration
	Logger   *logger.Logger
}

// NewConsumer builds a booking events consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	if params.Claimer == nil {
		return nil, fmt.Errorf("event claimer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.ClaimTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Consumer{
		escrow:   params.Escrow,
		claimer:  params.Claimer,
		claimTTL: ttl,
		logg:     params.Logger,
	}, nil
}

// Run pulls messages from the subscription until the context is canceled.
// Handler errors nack the message so the broker redelivers it.
func (c *Consumer) Run(ctx context.Context, sub *pubsub.Subscriber) error {
	if sub == nil {
		return fmt.Errorf("subscriber required")
	}
	c.logg.Info(ctx, "booking events consumer started")
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := c.Process(ctx, msg.Data); err != nil {
			c.logg.Error(ctx, "booking event processing failed", err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process handles one delivery. Permanent failures (malformed payloads,
// already-resolved holds) are logged and swallowed so the broker does not
// redeliver them forever; transient failures propagate for redelivery.
func (c *Consumer) Process(ctx context.Context, data []byte) error {
	var event BookingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logg.Error(ctx, "booking event payload unreadable", err)
		return nil
	}
	if event.EventID == "" || event.BookingID == uuid.Nil {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{"type": event.Type}), "booking event missing identifiers")
		return nil
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   event.EventID,
		"event_type": event.Type,
		"booking_id": event.BookingID.String(),
	})

	claimed, err := c.claimer.ClaimEvent(ctx, consumerName, event.EventID, c.claimTTL)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		c.logg.Info(logCtx, "booking event already processed")
		return nil
	}

	if err := c.handle(ctx, event); err != nil {
		if permanent(err) {
			c.logg.Warn(c.logg.WithFields(logCtx, map[string]any{"error": err.Error()}), "booking event dropped")
			return nil
		}
		// Give a later delivery another chance.
		if releaseErr := c.claimer.ReleaseEvent(ctx, consumerName, event.EventID); releaseErr != nil {
			c.logg.Error(logCtx, "release event claim failed", releaseErr)
		}
		return err
	}

	c.logg.Info(logCtx, "booking event processed")
	return nil
}

func (c *Consumer) handle(ctx context.Context, event BookingEvent) error {
	switch event.Type {
	case EventBookingCompleted:
		_, err := c.escrow.Release(ctx, event.BookingID)
		return err
	case EventBookingCanceled:
		hold, err := c.escrow.GetHold(ctx, event.BookingID)
		if err != nil {
			return err
		}
		_, err = c.escrow.Refund(ctx, escrow.RefundParams{
			BookingID:   event.BookingID,
			PayerAmount: hold.Amount,
		})
		return err
	case EventBookingDisputed:
		if event.PayerAmount == nil || event.ProviderAmount == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "dispute event missing refund split")
		}
		_, err := c.escrow.Refund(ctx, escrow.RefundParams{
			BookingID:      event.BookingID,
			PayerAmount:    *event.PayerAmount,
			ProviderAmount: *event.ProviderAmount,
		})
		return err
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown booking event type").
			WithDetails(map[string]any{"type": event.Type})
	}
}

// permanent reports whether retrying the event can never succeed.
func permanent(err error) bool {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeHoldResolved),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound),
		pkgerrors.IsCode(err, pkgerrors.CodeValidation),
		pkgerrors.IsCode(err, pkgerrors.CodeRefundMismatch),
		pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount):
		return true
	}
	return false
}
