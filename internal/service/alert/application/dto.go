// internal/service/alert/application/dto.go
package application

import (
	"time"

	"ticketradar/internal/service/alert/domain"
)

// CreateAlertCommand 创建告警的入参。通知开关缺省打开，显式传 false
// 才关闭。
type CreateAlertCommand struct {
	UserID       string         `json:"userId"`
	Name         string         `json:"name"`
	Keyword      string         `json:"keyword"`
	Platform     string         `json:"platform"`
	MaxPrice     *float64       `json:"maxPrice"`
	Currency     string         `json:"currency"`
	Filters      domain.Filters `json:"filters"`
	NotifyEmail  *bool          `json:"notifyEmail"`
	NotifySMS    *bool          `json:"notifySms"`
	AutoPurchase bool           `json:"autoPurchase"`
	AutoQuantity int            `json:"autoQuantity"`
	AutoPriority int            `json:"autoPriority"`
}

// UpdateAlertCommand 部分更新：nil 字段保持原值不动，显式传值才覆盖。
type UpdateAlertCommand struct {
	AlertID string `json:"-"`
	UserID  string `json:"-"`

	Name         *string         `json:"name"`
	Keyword      *string         `json:"keyword"`
	Platform     *string         `json:"platform"`
	MaxPrice     *float64        `json:"maxPrice"`
	ClearMax     bool            `json:"clearMaxPrice"`
	Filters      *domain.Filters `json:"filters"`
	NotifyEmail  *bool           `json:"notifyEmail"`
	NotifySMS    *bool           `json:"notifySms"`
	AutoPurchase *bool           `json:"autoPurchase"`
	AutoQuantity *int            `json:"autoQuantity"`
	AutoPriority *int            `json:"autoPriority"`
}

// AlertView 对外返回的告警视图。
type AlertView struct {
	ID              string         `json:"id"`
	UserID          string         `json:"userId"`
	Name            string         `json:"name"`
	Keyword         string         `json:"keyword"`
	Platform        string         `json:"platform,omitempty"`
	MaxPrice        *float64       `json:"maxPrice,omitempty"`
	Currency        string         `json:"currency"`
	Filters         domain.Filters `json:"filters"`
	NotifyEmail     bool           `json:"notifyEmail"`
	NotifySMS       bool           `json:"notifySms"`
	AutoPurchase    bool           `json:"autoPurchase"`
	AutoQuantity    int            `json:"autoQuantity,omitempty"`
	AutoPriority    int            `json:"autoPriority,omitempty"`
	Status          domain.Status  `json:"status"`
	MatchesFound    int64          `json:"matchesFound"`
	LastTriggeredAt *time.Time     `json:"lastTriggeredAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func toView(a *domain.Alert) *AlertView {
	return &AlertView{
		ID: a.ID, UserID: a.UserID, Name: a.Name, Keyword: a.Keyword,
		Platform: a.Platform, MaxPrice: a.MaxPrice, Currency: a.Currency,
		Filters: a.Filters, NotifyEmail: a.NotifyEmail, NotifySMS: a.NotifySMS,
		AutoPurchase: a.AutoPurchase, AutoQuantity: a.AutoQuantity, AutoPriority: a.AutoPriority,
		Status: a.Status, MatchesFound: a.MatchesFound, LastTriggeredAt: a.LastTriggeredAt,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}
