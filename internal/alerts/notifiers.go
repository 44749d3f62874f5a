package alerts

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/messaging"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/craftlink/sentinel/pkg/httpclient"
	"github.com/craftlink/sentinel/pkg/resilience"
	"github.com/craftlink/sentinel/pkg/websocket"
)

// Notifier delivers an alert on one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert *Alert) error
}

// ---------------------------------------------------------------------------
// Dashboard

// DashboardNotifier persists the alert row and pushes it to connected
// dashboard sessions.
type DashboardNotifier struct {
	repo AlertRepository
	hub  *websocket.Hub
}

func NewDashboardNotifier(repo AlertRepository, hub *websocket.Hub) *DashboardNotifier {
	return &DashboardNotifier{repo: repo, hub: hub}
}

func (n *DashboardNotifier) Name() string { return ChannelDashboard }

func (n *DashboardNotifier) Notify(ctx context.Context, alert *Alert) error {
	if err := n.repo.InsertAlert(ctx, alert); err != nil {
		return fmt.Errorf("persist alert: %w", err)
	}
	if n.hub != nil {
		n.hub.SendToAll(&websocket.Message{
			Type: "alert",
			Data: map[string]interface{}{
				"id":         alert.ID.String(),
				"alert_type": alert.AlertType,
				"severity":   alert.Severity,
				"message":    alert.Message,
			},
			Timestamp: time.Now().UTC(),
		})
	}
	return nil
}

// ---------------------------------------------------------------------------
// Chat (Twilio)

// TwilioMessenger is the slice of the Twilio SDK the chat notifier uses.
type TwilioMessenger interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// ChatNotifier texts the on-call rotation.
type ChatNotifier struct {
	client     TwilioMessenger
	from       string
	recipients []string
	logger     *zap.Logger
}

func NewChatNotifier(client TwilioMessenger, from string, recipients []string, logger *zap.Logger) *ChatNotifier {
	return &ChatNotifier{client: client, from: from, recipients: recipients, logger: logger}
}

func (n *ChatNotifier) Name() string { return ChannelChat }

func (n *ChatNotifier) Notify(ctx context.Context, alert *Alert) error {
	if n.client == nil || len(n.recipients) == 0 {
		return fmt.Errorf("chat channel not configured")
	}

	body := fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.AlertType, alert.Message)
	var lastErr error
	delivered := 0
	for _, to := range n.recipients {
		params := &openapi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(n.from)
		params.SetBody(body)
		if _, err := n.client.CreateMessage(params); err != nil {
			n.logger.Warn("chat alert delivery failed", zap.String("to", to), zap.Error(err))
			lastErr = err
			continue
		}
		delivered++
	}
	if delivered == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// ---------------------------------------------------------------------------
// Email (notifications service over HTTP)

// EmailNotifier hands the alert to the platform notifications service.
// The call runs through a circuit breaker so a dead collaborator does
// not stall alert fanout.
type EmailNotifier struct {
	client  *httpclient.Client
	breaker *resilience.CircuitBreaker
}

func NewEmailNotifier(client *httpclient.Client, breaker *resilience.CircuitBreaker) *EmailNotifier {
	return &EmailNotifier{client: client, breaker: breaker}
}

func (n *EmailNotifier) Name() string { return ChannelEmail }

type emailAlertRequest struct {
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

func (n *EmailNotifier) Notify(ctx context.Context, alert *Alert) error {
	send := func(ctx context.Context) (interface{}, error) {
		return n.client.Post(ctx, "/api/v1/notifications/email/alert", emailAlertRequest{
			AlertType: alert.AlertType,
			Severity:  alert.Severity,
			Message:   alert.Message,
		}, nil)
	}

	if n.breaker != nil {
		_, err := n.breaker.Execute(ctx, send)
		return err
	}
	_, err := send(ctx)
	return err
}

// ---------------------------------------------------------------------------
// Push (FCM)

// PushMessenger is the slice of the FCM SDK the push notifier uses.
type PushMessenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushNotifier fans the alert out to the ops topic.
type PushNotifier struct {
	client PushMessenger
	topic  string
}

func NewPushNotifier(client PushMessenger, topic string) *PushNotifier {
	return &PushNotifier{client: client, topic: topic}
}

func (n *PushNotifier) Name() string { return ChannelPush }

func (n *PushNotifier) Notify(ctx context.Context, alert *Alert) error {
	if n.client == nil {
		return fmt.Errorf("push channel not configured")
	}
	_, err := n.client.Send(ctx, &messaging.Message{
		Topic: n.topic,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("[%s] %s", alert.Severity, alert.AlertType),
			Body:  alert.Message,
		},
		Data: map[string]string{
			"alert_id": alert.ID.String(),
			"severity": alert.Severity,
		},
	})
	return err
}
