package store

import (
	"context"
	"database/sql"
	"fmt"

	"babymuse/internal/models"
)

// GetCouponByCode retrieves an active, non-deleted coupon by code.
// Matching is case-insensitive.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.GetContext(ctx, &c,
		"SELECT * FROM coupons WHERE LOWER(code) = LOWER($1) AND active = TRUE AND is_deleted = FALSE",
		code)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("coupon %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCouponByID retrieves a coupon by ID regardless of flags
func (s *Store) GetCouponByID(ctx context.Context, id int64) (*models.Coupon, error) {
	var c models.Coupon
	err := s.db.GetContext(ctx, &c, "SELECT * FROM coupons WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("coupon %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// consumeCouponUsage increments times_used inside tx, guarded against the
// usage limit so two settlements cannot both pass the cap.
func consumeCouponUsage(ctx context.Context, tx execer, couponID int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE coupons SET times_used = times_used + 1
		WHERE id = $1 AND (usage_limit IS NULL OR times_used < usage_limit)`,
		couponID)
	if err != nil {
		return fmt.Errorf("failed to consume coupon usage: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCouponUsageExceeded
	}
	return nil
}
