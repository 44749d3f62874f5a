package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery channels.
const (
	ChannelDashboard = "dashboard"
	ChannelChat      = "chat"
	ChannelEmail     = "email"
	ChannelPush      = "push"
)

// Alert is one operator-facing notification.
type Alert struct {
	ID           uuid.UUID              `json:"id"`
	AlertType    string                 `json:"alert_type"`
	Severity     string                 `json:"severity"`
	Message      string                 `json:"message"`
	Channels     []string               `json:"channels"`
	Metric       string                 `json:"metric,omitempty"`
	CurrentValue float64                `json:"current_value,omitempty"`
	Threshold    float64                `json:"threshold,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Acknowledged bool                   `json:"acknowledged"`
	Resolved     bool                   `json:"resolved"`
	CreatedAt    time.Time              `json:"created_at"`
}

// ChannelsFor returns the default channel set for a severity. Higher
// severities add channels, never swap them.
func ChannelsFor(severity string) []string {
	switch severity {
	case "critical", "emergency":
		return []string{ChannelDashboard, ChannelChat, ChannelEmail, ChannelPush}
	case "high":
		return []string{ChannelDashboard, ChannelChat, ChannelEmail}
	case "medium":
		return []string{ChannelDashboard, ChannelChat}
	default:
		return []string{ChannelDashboard}
	}
}

// DedupKey identifies an alert's content so repeats inside the dedup
// window deliver once.
func (a *Alert) DedupKey() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", a.AlertType, a.Severity, a.Message)))
	return "alert:dedup:" + hex.EncodeToString(sum[:])
}
