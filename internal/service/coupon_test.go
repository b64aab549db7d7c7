package service

import (
	"context"
	"testing"
	"time"

	"babymuse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func validCoupon() *models.Coupon {
	return &models.Coupon{
		ID:            1,
		Code:          "welcome10",
		DiscountValue: 10,
		IsPercentage:  true,
		MinimumAmount: 50000,
		ValidFrom:     time.Now().Add(-time.Hour),
		ValidTo:       time.Now().Add(time.Hour),
		Active:        true,
	}
}

func TestCouponValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a valid percentage coupon", func(t *testing.T) {
		st := newFakeStore()
		st.coupons["welcome10"] = validCoupon()
		svc := NewCouponService(st, nil)

		app, err := svc.Validate(ctx, "WELCOME10", 7, 200000)
		require.NoError(t, err)
		assert.Equal(t, int64(1), app.Coupon.ID)
		assert.Equal(t, int64(20000), app.Discount)
	})

	t.Run("unknown code", func(t *testing.T) {
		svc := NewCouponService(newFakeStore(), nil)

		_, err := svc.Validate(ctx, "NOPE", 7, 200000)
		ce, ok := AsCouponError(err)
		require.True(t, ok)
		assert.Equal(t, CouponInvalidCode, ce.Reason)
	})

	t.Run("blank code", func(t *testing.T) {
		svc := NewCouponService(newFakeStore(), nil)

		_, err := svc.Validate(ctx, "   ", 7, 200000)
		ce, ok := AsCouponError(err)
		require.True(t, ok)
		assert.Equal(t, CouponInvalidCode, ce.Reason)
	})

	t.Run("expired coupon", func(t *testing.T) {
		st := newFakeStore()
		c := validCoupon()
		c.ValidTo = time.Now().Add(-time.Minute)
		st.coupons["welcome10"] = c
		svc := NewCouponService(st, nil)

		_, err := svc.Validate(ctx, "welcome10", 7, 200000)
		ce, ok := AsCouponError(err)
		require.True(t, ok)
		assert.Equal(t, CouponNotValidNow, ce.Reason)
	})

	t.Run("not yet valid", func(t *testing.T) {
		st := newFakeStore()
		c := validCoupon()
		c.ValidFrom = time.Now().Add(time.Hour)
		c.ValidTo = time.Now().Add(2 * time.Hour)
		st.coupons["welcome10"] = c
		svc := NewCouponService(st, nil)

		_, err := svc.Validate(ctx, "welcome10", 7, 200000)
		ce, ok := AsCouponError(err)
		require.True(t, ok)
		assert.Equal(t, CouponNotValidNow, ce.Reason)
	})

	t.Run("cart below minimum", func(t *testing.T) {
		st := newFakeStore()
		st.coupons["welcome10"] = validCoupon()
		svc := NewCouponService(st, nil)

		_, err := svc.Validate(ctx, "welcome10", 7, 40000)
		ce, ok := AsCouponError(err)
		require.True(t, ok)
		assert.Equal(t, CouponBelowMinimum, ce.Reason)
	})

	t.Run("usage limit reached", func(t *testing.T) {
		st := newFakeStore()
		c := validCoupon()
		c.UsageLimit = intPtr(100)
		c.TimesUsed = 100
		st.coupons["welcome10"] = c
		svc := NewCouponService(st, nil)

		_, err := svc.Validate(ctx, "welcome10", 7, 200000)
		ce, ok := AsCouponError(err)
		require.True(t, ok)
		assert.Equal(t, CouponUsageLimitReached, ce.Reason)
	})

	t.Run("reserved for another user", func(t *testing.T) {
		st := newFakeStore()
		c := validCoupon()
		c.UserID = int64Ptr(42)
		st.coupons["welcome10"] = c
		svc := NewCouponService(st, nil)

		_, err := svc.Validate(ctx, "welcome10", 7, 200000)
		ce, ok := AsCouponError(err)
		require.True(t, ok)
		assert.Equal(t, CouponNotEligible, ce.Reason)

		_, err = svc.Validate(ctx, "welcome10", 42, 200000)
		assert.NoError(t, err)
	})

	t.Run("validation never consumes usage", func(t *testing.T) {
		st := newFakeStore()
		c := validCoupon()
		c.UsageLimit = intPtr(5)
		st.coupons["welcome10"] = c
		svc := NewCouponService(st, nil)

		for i := 0; i < 10; i++ {
			_, err := svc.Validate(ctx, "welcome10", 7, 200000)
			require.NoError(t, err)
		}
		assert.Equal(t, 0, c.TimesUsed)
	})
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name      string
		coupon    *models.Coupon
		cartTotal int64
		want      int64
	}{
		{
			name:      "percentage",
			coupon:    &models.Coupon{DiscountValue: 10, IsPercentage: true},
			cartTotal: 200000,
			want:      20000,
		},
		{
			name:      "percentage capped by max discount",
			coupon:    &models.Coupon{DiscountValue: 50, IsPercentage: true, MaxDiscountAmount: int64Ptr(30000)},
			cartTotal: 200000,
			want:      30000,
		},
		{
			name:      "flat amount",
			coupon:    &models.Coupon{DiscountValue: 15000},
			cartTotal: 200000,
			want:      15000,
		},
		{
			name:      "flat amount capped by cart total",
			coupon:    &models.Coupon{DiscountValue: 500000},
			cartTotal: 200000,
			want:      200000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateDiscount(tt.coupon, tt.cartTotal))
		})
	}
}
