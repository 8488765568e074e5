package bizerr

import (
	"errors"
	"fmt"
)

// ============================================================================
// 业务错误分类
// ============================================================================
//
// 三类可区分的业务错误，调用方据此决定是重新提交（校验类）、
// 提示充值（余额类）还是换个关键词（冲突类）。
// 其余错误一律视为后端/环境故障，不在此定义。

// ValidationError 输入校验错误
// 在任何落库调用之前报出，不产生任何持久化副作用
type ValidationError struct {
	Field   string // 出错字段，可为空
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InsufficientBalanceError 余额不足
// 携带缺口金额，便于前端提示需要充值多少
type InsufficientBalanceError struct {
	Payable   int64 // 应付金额
	Total     int64 // 当前总余额
	Shortfall int64 // 缺口
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("余额不足，应付 %d，当前余额 %d，缺口 %d", e.Payable, e.Total, e.Shortfall)
}

func IsInsufficientBalance(err error) bool {
	var ie *InsufficientBalanceError
	return errors.As(err, &ie)
}

// ConflictError 唯一约束冲突
// 典型场景：同一关键词在非终态槽位上被重复购买
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Resource, e.Message)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
