// internal/service/alert/domain/match.go
package domain

import (
	"strings"
	"time"
)

// RuleEngine 求值告警上的可选自定义表达式。实现方负责编译缓存。
type RuleEngine interface {
	Evaluate(rule string, listing *Listing) (bool, error)
}

// MatchEvent 记录一次"告警命中票源"。
type MatchEvent struct {
	AlertID      string     `json:"alertId"`
	UserID       string     `json:"userId"`
	ListingID    string     `json:"listingId"`
	Platform     string     `json:"platform"`
	ListingTitle string     `json:"listingTitle"`
	ListingURL   string     `json:"listingUrl"`
	MinPrice     float64    `json:"minPrice"`
	Currency     string     `json:"currency"`
	EventDate    *time.Time `json:"eventDate,omitempty"`
	MatchedAt    time.Time  `json:"matchedAt"`
}

// Matcher 实现告警与票源的纯规则撮合，无任何 IO。
type Matcher struct {
	rules RuleEngine // 可为 nil，此时带 Rule 的告警视为求值失败
}

func NewMatcher(rules RuleEngine) *Matcher {
	return &Matcher{rules: rules}
}

// Matches 判断 listing 是否命中 alert。
// 返回 error 表示该告警定义本身有问题（而非"不匹配"），调用方应跳过
// 这条告警并继续处理批次里的其余告警。
//
// 规则按成本从低到高排列，全部满足才算命中：
//  1. 票源必须可售；
//  2. 告警必须处于 active；
//  3. 关键词对标题做大小写不敏感的连续子串匹配；
//  4. 平台：告警指定了平台时必须完全相等；
//  5. 价格上限：票源价格区间的下沿（最低档）不超过上限即算命中，
//     用户关心的是"有没有一档买得起的票"；
//  6. 场馆 / 地区 / 区域：大小写不敏感子串；
//  7. 日期窗口：闭区间，端点当天命中；
//  8. 最小张数；
//  9. 可选 CEL 表达式。
func (m *Matcher) Matches(alert *Alert, listing *Listing) (bool, error) {
	if err := alert.Validate(); err != nil {
		return false, err
	}
	if !listing.Available {
		return false, nil
	}
	if !alert.IsActive() {
		return false, nil
	}
	if !containsFold(listing.Title, alert.Keyword) {
		return false, nil
	}
	if alert.Platform != "" && alert.Platform != listing.Platform {
		return false, nil
	}
	if alert.MaxPrice != nil && listing.MinPrice > *alert.MaxPrice {
		return false, nil
	}

	f := alert.Filters
	if f.VenueContains != "" && !containsFold(listing.Venue, f.VenueContains) {
		return false, nil
	}
	if f.LocationContains != "" && !containsFold(listing.Location, f.LocationContains) {
		return false, nil
	}
	if f.SectionContains != "" && !containsFold(listing.Section, f.SectionContains) {
		return false, nil
	}
	if f.EventDateFrom != nil || f.EventDateTo != nil {
		if listing.EventDate == nil {
			return false, nil
		}
		d := dateOnly(*listing.EventDate)
		if f.EventDateFrom != nil && d.Before(dateOnly(*f.EventDateFrom)) {
			return false, nil
		}
		if f.EventDateTo != nil && d.After(dateOnly(*f.EventDateTo)) {
			return false, nil
		}
	}
	if f.MinQuantity > 0 && listing.Quantity < f.MinQuantity {
		return false, nil
	}

	if f.Rule != "" {
		if m.rules == nil {
			return false, Invalid("rule expression present but no rule engine configured")
		}
		ok, err := m.rules.Evaluate(f.Rule, listing)
		if err != nil {
			return false, Invalid("rule expression: " + err.Error())
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// NewMatchEvent 由一次命中构造事件。
func NewMatchEvent(alert *Alert, listing *Listing, at time.Time) *MatchEvent {
	return &MatchEvent{
		AlertID:      alert.ID,
		UserID:       alert.UserID,
		ListingID:    listing.ID,
		Platform:     listing.Platform,
		ListingTitle: listing.Title,
		ListingURL:   listing.URL,
		MinPrice:     listing.MinPrice,
		Currency:     listing.Currency,
		EventDate:    listing.EventDate,
		MatchedAt:    at,
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
