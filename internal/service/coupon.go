package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"babymuse/internal/models"
	"babymuse/internal/redisclient"
	"babymuse/internal/store"
	"babymuse/internal/util"

	"go.uber.org/zap"
)

// CouponStore is the coupon lookup contract (interface so tests can mock it)
type CouponStore interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error)
}

// CouponApplication is a successfully validated coupon with its computed discount
type CouponApplication struct {
	Coupon   *models.Coupon `json:"coupon"`
	Discount int64          `json:"discount"`
}

// CouponService validates coupon codes against cart totals. Validation is
// side-effect-free: times_used is only consumed by the settlement path after
// payment is confirmed.
type CouponService struct {
	store  CouponStore
	cache  *redisclient.Client
	logger *zap.Logger
}

// NewCouponService creates a new coupon service; cache may be nil
func NewCouponService(store CouponStore, cache *redisclient.Client) *CouponService {
	return &CouponService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// Validate checks a coupon code against the cart total and returns the
// discount it would grant, or a reason-coded CouponError.
func (s *CouponService) Validate(ctx context.Context, code string, userID, cartTotal int64) (*CouponApplication, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		util.CouponApplicationsTotal.WithLabelValues(string(CouponInvalidCode)).Inc()
		return nil, &CouponError{Reason: CouponInvalidCode}
	}

	coupon, err := s.lookup(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.CouponApplicationsTotal.WithLabelValues(string(CouponInvalidCode)).Inc()
			return nil, &CouponError{Reason: CouponInvalidCode}
		}
		return nil, err
	}

	if reason, ok := rejectCoupon(coupon, userID, cartTotal, time.Now()); !ok {
		util.CouponApplicationsTotal.WithLabelValues(string(reason)).Inc()
		return nil, &CouponError{Reason: reason}
	}

	util.CouponApplicationsTotal.WithLabelValues("accepted").Inc()
	return &CouponApplication{
		Coupon:   coupon,
		Discount: CalculateDiscount(coupon, cartTotal),
	}, nil
}

func (s *CouponService) lookup(ctx context.Context, code string) (*models.Coupon, error) {
	key := strings.ToLower(code)
	if s.cache != nil {
		cached, err := s.cache.GetCachedCoupon(ctx, key)
		if err != nil {
			s.logger.Warn("Coupon cache read failed", zap.String("code", key), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	coupon, err := s.store.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cacheable := *coupon
		cacheable.Code = key
		if err := s.cache.CacheCoupon(ctx, &cacheable); err != nil {
			s.logger.Warn("Coupon cache write failed", zap.String("code", key), zap.Error(err))
		}
	}
	return coupon, nil
}

// InvalidateByID drops a coupon's cached read model after its usage count
// changed. Best effort; a stale entry only affects the advisory times_used.
func (s *CouponService) InvalidateByID(ctx context.Context, couponID int64) {
	if s.cache == nil {
		return
	}
	coupon, err := s.store.GetCouponByID(ctx, couponID)
	if err != nil {
		s.logger.Warn("Coupon lookup for cache invalidation failed", zap.Int64("coupon_id", couponID), zap.Error(err))
		return
	}
	if err := s.cache.InvalidateCoupon(ctx, strings.ToLower(coupon.Code)); err != nil {
		s.logger.Warn("Coupon cache invalidation failed", zap.String("code", coupon.Code), zap.Error(err))
	}
}

// rejectCoupon applies the validity rules in order and returns the first
// failing reason.
func rejectCoupon(c *models.Coupon, userID, cartTotal int64, now time.Time) (CouponReason, bool) {
	if !c.Active || c.IsDeleted {
		return CouponInvalidCode, false
	}
	if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
		return CouponNotValidNow, false
	}
	if c.UserID != nil && *c.UserID != userID {
		return CouponNotEligible, false
	}
	if cartTotal < c.MinimumAmount {
		return CouponBelowMinimum, false
	}
	if c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit {
		return CouponUsageLimitReached, false
	}
	return "", true
}

// CalculateDiscount computes the discount a coupon grants on a cart total.
// Percentage coupons are capped by max_discount_amount when set; the result
// never exceeds the cart total.
func CalculateDiscount(c *models.Coupon, cartTotal int64) int64 {
	var discount int64
	if c.IsPercentage {
		discount = cartTotal * c.DiscountValue / 100
		if c.MaxDiscountAmount != nil && discount > *c.MaxDiscountAmount {
			discount = *c.MaxDiscountAmount
		}
	} else {
		discount = c.DiscountValue
	}

	if discount > cartTotal {
		discount = cartTotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
