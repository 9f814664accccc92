package token

import (
	"time"

	xerrors "AgentPay/internal/errors"
)

// PaymentToken 表示一次性支付令牌，余额在发放时等于授权预算。
type PaymentToken struct {
	ID       string `json:"id"`
	Holder   string `json:"holder"`
	Balance  int64  `json:"balance"`
	IssuedAt int64  `json:"issued_at"`
	ExpireIn int64  `json:"expire_in"`
}

// ExpiresAt 返回令牌的过期时间点。
func (t *PaymentToken) ExpiresAt() time.Time {
	return time.Unix(t.IssuedAt+t.ExpireIn, 0)
}

// Expired 判断令牌在给定时间是否已经过期。
func (t *PaymentToken) Expired(now time.Time) bool {
	if t.ExpireIn <= 0 {
		return false
	}
	return !now.Before(t.ExpiresAt())
}

var (
	// ErrTokenNotFound 表示指定的令牌不存在。
	ErrTokenNotFound = xerrors.New(CodeTokenNotFound, "payment token not found")
	// ErrTokenExpired 表示令牌已过有效期，扣款被拒绝。
	ErrTokenExpired = xerrors.New(CodeTokenExpired, "payment token expired")
	// ErrInsufficientBalance 表示令牌余额不足以完成扣款。
	ErrInsufficientBalance = xerrors.New(CodeInsufficientBalance, "insufficient token balance")
)

const (
	CodeTokenNotFound       xerrors.Code = "TOKEN_NOT_FOUND"
	CodeTokenExpired        xerrors.Code = "TOKEN_EXPIRED"
	CodeInsufficientBalance xerrors.Code = "TOKEN_INSUFFICIENT_BALANCE"
)

func init() {
	xerrors.Register(CodeTokenNotFound, xerrors.Attributes{
		Message:   "payment token not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeTokenExpired, xerrors.Attributes{
		Message:   "payment token expired",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientBalance, xerrors.Attributes{
		Message:   "insufficient token balance",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}
