// internal/service/alert/domain/errors.go
package domain

import "github.com/pkg/errors"

var (
	// ErrNotFound 目标告警不存在，或不属于调用者。
	ErrNotFound = errors.New("alert not found")

	// ErrValidation 告警定义违反不变式，拒绝入库。
	ErrValidation = errors.New("invalid alert definition")
)

// Invalid 构造一个携带具体原因的校验错误，errors.Is(err, ErrValidation) 成立。
func Invalid(reason string) error {
	return errors.Wrap(ErrValidation, reason)
}
