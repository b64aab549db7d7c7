package store

import (
	"context"
	"database/sql"
	"fmt"

	"babymuse/internal/models"
)

// ListCartLines returns the user's cart joined with the catalog fields pricing needs
func (s *Store) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := s.db.SelectContext(ctx, &lines, `
		SELECT ci.variant_id, v.product_id, p.name AS product_name, ci.quantity,
		       p.list_price, p.offer_percent AS product_offer_percent,
		       COALESCE(c.offer_percent, 0) AS category_offer_percent,
		       v.stock, p.is_deleted AS product_deleted
		FROM cart_items ci
		JOIN variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = v.product_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at`, userID)
	return lines, err
}

// GetAddressForUser retrieves an address owned by the user
func (s *Store) GetAddressForUser(ctx context.Context, addressID, userID int64) (*models.Address, error) {
	var a models.Address
	err := s.db.GetContext(ctx, &a,
		"SELECT * FROM addresses WHERE id = $1 AND user_id = $2", addressID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("address %d: %w", addressID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetDefaultAddress retrieves the user's default address
func (s *Store) GetDefaultAddress(ctx context.Context, userID int64) (*models.Address, error) {
	var a models.Address
	err := s.db.GetContext(ctx, &a,
		"SELECT * FROM addresses WHERE user_id = $1 AND is_default = TRUE LIMIT 1", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("default address for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
