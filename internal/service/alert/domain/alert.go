// internal/service/alert/domain/alert.go
package domain

import (
	"strings"
	"time"
)

// Status 定义了告警的生命周期状态
type Status string

const (
	StatusActive Status = "ACTIVE" // 参与撮合
	StatusPaused Status = "PAUSED" // 暂停，撮合时跳过
)

// Filters 是告警的结构化过滤条件。
// 所有字段都是可选的，零值代表"不限制"。未知的过滤键在反序列化层
// 直接被拒绝，而不是悄悄忽略。
type Filters struct {
	VenueContains    string     `json:"venueContains,omitempty"`
	LocationContains string     `json:"locationContains,omitempty"`
	SectionContains  string     `json:"sectionContains,omitempty"`
	MinQuantity      int        `json:"minQuantity,omitempty"`
	EventDateFrom    *time.Time `json:"eventDateFrom,omitempty"`
	EventDateTo      *time.Time `json:"eventDateTo,omitempty"`

	// Rule 是可选的 CEL 表达式，对票源快照做最后一道自定义筛选。
	// 表达式编译或求值失败只影响当前告警，不影响同批次的其他告警。
	Rule string `json:"rule,omitempty"`
}

// Alert 是告警聚合的根实体：一条用户保存的、针对新抓取票源的查询。
type Alert struct {
	ID       string
	UserID   string
	Name     string
	Keyword  string
	Platform string // 为空表示不限平台
	MaxPrice *float64
	Currency string
	Filters  Filters

	NotifyEmail bool
	NotifySMS   bool

	// 自动购买：命中后直接生成购买意向
	AutoPurchase bool
	AutoQuantity int
	AutoPriority int

	Status          Status
	MatchesFound    int64
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate 校验告警定义的所有不变式。违反任何一条都返回 ErrValidation。
func (a *Alert) Validate() error {
	if strings.TrimSpace(a.Keyword) == "" {
		return Invalid("keyword must not be empty")
	}
	if a.MaxPrice != nil && *a.MaxPrice < 0 {
		return Invalid("max price must be >= 0")
	}
	f := a.Filters
	if f.EventDateFrom != nil && f.EventDateTo != nil && f.EventDateFrom.After(*f.EventDateTo) {
		return Invalid("event date window: from must be <= to")
	}
	if f.MinQuantity < 0 {
		return Invalid("min quantity must be >= 0")
	}
	if a.AutoPurchase {
		if a.AutoQuantity < 1 || a.AutoQuantity > 10 {
			return Invalid("auto purchase quantity must be in [1,10]")
		}
		if a.AutoPriority < 1 || a.AutoPriority > 10 {
			return Invalid("auto purchase priority must be in [1,10]")
		}
	}
	return nil
}

// Toggle 在 active / paused 之间翻转状态。
func (a *Alert) Toggle() {
	if a.Status == StatusActive {
		a.Status = StatusPaused
	} else {
		a.Status = StatusActive
	}
	a.UpdatedAt = time.Now()
}

// IsActive 判断告警是否参与撮合。
func (a *Alert) IsActive() bool {
	return a.Status == StatusActive
}
