package models

import "encoding/json"

// Notification message types understood by the client.
const (
	MsgConnectionEstablished = "connection_established"
	MsgPing                  = "ping"
	MsgPong                  = "pong"
	MsgHighRiskAlert         = "high_risk_alert"
	MsgProviderAssignment    = "provider_assignment"
	MsgSystemNotification    = "system_notification"
	MsgMarkNotificationRead  = "mark_notification_read"
)

// Priority is the urgency attached to a notification.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// NotificationMessage is a typed message on the notification channel. The same
// shape is returned by the REST notification list.
type NotificationMessage struct {
	Type       string          `json:"type"`
	Priority   Priority        `json:"priority,omitempty"`
	Title      string          `json:"title,omitempty"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  Timestamp       `json:"timestamp,omitempty"`
	TargetRole Role            `json:"target_role,omitempty"`
	ID         FlexID          `json:"id,omitempty"`
	IsRead     bool            `json:"is_read,omitempty"`
	CreatedAt  Timestamp       `json:"created_at,omitempty"`
}

// IsInboxType reports whether messages of type t belong in the notification inbox.
func IsInboxType(t string) bool {
	switch t {
	case MsgHighRiskAlert, MsgProviderAssignment, MsgSystemNotification:
		return true
	default:
		return false
	}
}

// NewMarkReadMessage builds the outbound read acknowledgement for id.
func NewMarkReadMessage(id string) NotificationMessage {
	data, _ := json.Marshal(map[string]string{"notification_id": id})
	return NotificationMessage{Type: MsgMarkNotificationRead, Data: data}
}
