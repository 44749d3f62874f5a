package trust

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/eventbus"
)

// EventHandler rescores users when the bus asks for it.
type EventHandler struct {
	service ScoreService
	logger  *zap.Logger
}

func NewEventHandler(service ScoreService, logger *zap.Logger) *EventHandler {
	return &EventHandler{service: service, logger: logger}
}

// RegisterSubscriptions subscribes to trust recompute requests.
func (h *EventHandler) RegisterSubscriptions(ctx context.Context, bus *eventbus.Bus) error {
	if err := bus.Subscribe(ctx, eventbus.SubjectTrustRecompute, "sentinel-trust", h.handleRecompute); err != nil {
		return fmt.Errorf("subscribe to trust recompute: %w", err)
	}
	return nil
}

func (h *EventHandler) handleRecompute(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.TrustRecomputeData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal trust recompute: %w", err)
	}

	score, err := h.service.Recompute(ctx, data.UserID)
	if err != nil {
		return err
	}
	h.logger.Info("trust score recomputed",
		zap.String("user_id", data.UserID.String()),
		zap.String("reason", data.Reason),
		zap.Int("score", score.TrustScore),
		zap.String("level", string(score.Level)))
	return nil
}
