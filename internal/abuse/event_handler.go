package abuse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/eventbus"
)

// EventHandler evaluates event-triggered rules as platform records are
// created.
type EventHandler struct {
	detector *Detector
	logger   *zap.Logger
}

func NewEventHandler(detector *Detector, logger *zap.Logger) *EventHandler {
	return &EventHandler{detector: detector, logger: logger}
}

// RegisterSubscriptions wires each platform trigger to its rule.
func (h *EventHandler) RegisterSubscriptions(ctx context.Context, bus *eventbus.Bus) error {
	subscriptions := []struct {
		subject string
		handler eventbus.Handler
	}{
		{eventbus.SubjectRefundCreated, h.onRefundCreated},
		{eventbus.SubjectSafetyEvent, h.onSafetyEvent},
		{eventbus.SubjectTransactionCreated, h.onTransactionCreated},
		{eventbus.SubjectAIInteractionLogged, h.onAIInteraction},
		{eventbus.SubjectBookingStatusChanged, h.onBookingStatusChanged},
	}
	for _, sub := range subscriptions {
		if err := bus.Subscribe(ctx, sub.subject, "sentinel-abuse", sub.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
	}
	return nil
}

func (h *EventHandler) onRefundCreated(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.RefundCreatedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal refund created: %w", err)
	}
	return h.evaluate(ctx, SignalRefundLoop, data.UserID)
}

func (h *EventHandler) onSafetyEvent(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.SafetyEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal safety event: %w", err)
	}
	if data.EventType != "panic" {
		return nil
	}
	return h.evaluate(ctx, SignalPanicSpam, data.UserID)
}

func (h *EventHandler) onTransactionCreated(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.TransactionCreatedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal transaction created: %w", err)
	}
	if data.Kind != "token_spend" {
		return nil
	}
	return h.evaluate(ctx, SignalTokenDrain, data.UserID)
}

func (h *EventHandler) onAIInteraction(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.AIInteractionData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal ai interaction: %w", err)
	}
	if !data.Flagged {
		return nil
	}
	return h.evaluate(ctx, SignalPromptAbuse, data.UserID)
}

func (h *EventHandler) onBookingStatusChanged(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.BookingStatusData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal booking status: %w", err)
	}
	switch data.ToStatus {
	case "cancelled":
		return h.evaluate(ctx, SignalCancellationFarming, data.UserID)
	case "mismatch_reported":
		return h.evaluate(ctx, SignalFakeMismatch, data.UserID)
	default:
		return nil
	}
}

func (h *EventHandler) evaluate(ctx context.Context, signalType SignalType, userID uuid.UUID) error {
	_, err := h.detector.EvaluateRule(ctx, signalType, userID)
	return err
}
