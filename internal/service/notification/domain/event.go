// internal/service/notification/domain/event.go
package domain

import "time"

// EventType 通知事件类型。
type EventType string

const (
	EventAlertMatched      EventType = "ALERT_MATCHED"
	EventPurchaseSucceeded EventType = "PURCHASE_SUCCEEDED"
	EventPurchaseFailed    EventType = "PURCHASE_FAILED"
	EventPurchaseCancelled EventType = "PURCHASE_CANCELLED"
)

// Event 一条待投递的通知。AlertID / IntentID 按事件类型二选一填充。
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"userId"`
	AlertID   string    `json:"alertId,omitempty"`
	IntentID  string    `json:"intentId,omitempty"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
