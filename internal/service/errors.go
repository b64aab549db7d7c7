package service

import (
	"errors"
	"fmt"
)

// CouponReason is the machine-readable code for a rejected coupon
type CouponReason string

const (
	CouponInvalidCode       CouponReason = "INVALID_CODE"
	CouponNotValidNow       CouponReason = "NOT_YET_OR_NO_LONGER_VALID"
	CouponBelowMinimum      CouponReason = "BELOW_MINIMUM"
	CouponUsageLimitReached CouponReason = "USAGE_LIMIT_REACHED"
	CouponNotEligible       CouponReason = "NOT_ELIGIBLE"
)

// CouponError is a reason-coded coupon rejection
type CouponError struct {
	Reason CouponReason
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Reason)
}

// AsCouponError unwraps a CouponError if err carries one
func AsCouponError(err error) (*CouponError, bool) {
	var ce *CouponError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Validation and business-rule errors. Each rejection leaves prior state
// unchanged; the API layer maps these to status codes and reason strings.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrStockUnavailable   = errors.New("one or more items are unavailable")
	ErrInvalidPayment     = errors.New("unknown payment method")
	ErrInsufficientFunds  = errors.New("insufficient wallet funds")
	ErrNotCancellable     = errors.New("item can no longer be cancelled")
	ErrNotReturnable      = errors.New("only delivered items can be returned")
	ErrIllegalTransition  = errors.New("illegal status transition")
	ErrInvalidSignature   = errors.New("gateway signature verification failed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidAmount      = errors.New("amount must be positive")
)
