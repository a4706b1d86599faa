// internal/service/purchase/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrNotFound 意向不存在或不属于调用者。
	ErrNotFound = errors.New("purchase intent not found")

	// ErrConflict 同一用户对同一票源已有未完结的意向。
	ErrConflict = errors.New("open purchase intent already exists for this listing")

	// ErrInvalidState 当前状态不允许这次流转。
	ErrInvalidState = errors.New("invalid purchase intent state transition")

	// ErrValidation 意向参数违反不变式。
	ErrValidation = errors.New("invalid purchase intent")

	// ErrListingUnavailable 票源已下架或售罄，永久失败。
	ErrListingUnavailable = errors.New("listing no longer available")

	// ErrPriceChanged 票价超出意向的价格上限，永久失败。
	ErrPriceChanged = errors.New("listing price exceeds intent ceiling")

	// ErrPlatformUnavailable 平台侧瞬时故障，可重试。
	ErrPlatformUnavailable = errors.New("ticket platform temporarily unavailable")
)

// Invalid 构造携带原因的校验错误，errors.Is(err, ErrValidation) 成立。
func Invalid(reason string) error {
	return errors.Wrap(ErrValidation, reason)
}

// IsRetriable 判断一次尝试失败是否值得重试。
// 未知错误按可重试处理，把不可重试留给明确的业务信号。
func IsRetriable(err error) bool {
	switch {
	case errors.Is(err, ErrListingUnavailable), errors.Is(err, ErrPriceChanged):
		return false
	default:
		return true
	}
}
