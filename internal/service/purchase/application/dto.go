// internal/service/purchase/application/dto.go
package application

import (
	"time"

	"ticketradar/internal/service/purchase/domain"
)

// EnqueueCommand 入队一条购买意向。
type EnqueueCommand struct {
	UserID    string   `json:"userId"`
	AlertID   string   `json:"alertId"`
	ListingID string   `json:"listingId"`
	Platform  string   `json:"platform"`
	Quantity  int      `json:"quantity"`
	Priority  int      `json:"priority"`
	MaxPrice  *float64 `json:"maxPrice"`
	Auto      bool     `json:"auto"`
	Notes     string   `json:"notes"`
}

// IntentView 对外返回的意向视图。
type IntentView struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	AlertID       string       `json:"alertId,omitempty"`
	ListingID     string       `json:"listingId"`
	Platform      string       `json:"platform"`
	Quantity      int          `json:"quantity"`
	MaxPrice      *float64     `json:"maxPrice,omitempty"`
	Priority      int          `json:"priority"`
	Auto          bool         `json:"auto"`
	Notes         string       `json:"notes,omitempty"`
	State         domain.State `json:"state"`
	AttemptsMade  int          `json:"attemptsMade"`
	MaxAttempts   int          `json:"maxAttempts"`
	NextAttemptAt time.Time    `json:"nextAttemptAt"`
	FailureReason string       `json:"failureReason,omitempty"`
	StartedAt     *time.Time   `json:"startedAt,omitempty"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// AttemptView 尝试留痕视图。
type AttemptView struct {
	AttemptNumber int               `json:"attemptNumber"`
	Outcome       string            `json:"outcome"`
	FailureReason string            `json:"failureReason,omitempty"`
	FinalPrice    *float64          `json:"finalPrice,omitempty"`
	Fee           *float64          `json:"fee,omitempty"`
	TotalPaid     *float64          `json:"totalPaid,omitempty"`
	OrderRef      string            `json:"orderRef,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	FinishedAt    time.Time         `json:"finishedAt"`
}

func toIntentView(p *domain.PurchaseIntent) *IntentView {
	return &IntentView{
		ID: p.ID, UserID: p.UserID, AlertID: p.AlertID,
		ListingID: p.ListingID, Platform: p.Platform,
		Quantity: p.Quantity, MaxPrice: p.MaxPrice, Priority: p.Priority,
		Auto: p.Auto, Notes: p.Notes,
		State: p.State, AttemptsMade: p.AttemptsMade, MaxAttempts: p.MaxAttempts,
		NextAttemptAt: p.NextAttemptAt, FailureReason: p.FailureReason,
		StartedAt: p.StartedAt, CompletedAt: p.CompletedAt,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func toAttemptView(a *domain.PurchaseAttempt) *AttemptView {
	return &AttemptView{
		AttemptNumber: a.AttemptNumber,
		Outcome:       string(a.Outcome),
		FailureReason: a.FailureReason,
		FinalPrice:    a.FinalPrice,
		Fee:           a.Fee,
		TotalPaid:     a.TotalPaid,
		OrderRef:      a.OrderRef,
		Metadata:      a.Metadata,
		StartedAt:     a.StartedAt,
		FinishedAt:    a.FinishedAt,
	}
}
