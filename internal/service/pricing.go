package service

import "babymuse/internal/models"

// PricingConfig carries the checkout pricing constants, amounts in paise
type PricingConfig struct {
	ShippingFee           int64
	FreeShippingThreshold int64
	TaxRatePercent        int64
}

// PriceBreakdown is the result of pricing a cart, amounts in paise
type PriceBreakdown struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// OfferPrice returns a cart line's unit price after applying the greater of
// the product's own offer percentage or its category's.
func OfferPrice(line models.CartLine) int64 {
	pct := line.ProductOfferPercent
	if line.CategoryOfferPercent > pct {
		pct = line.CategoryOfferPercent
	}
	return line.ListPrice - line.ListPrice*int64(pct)/100
}

// ComputePricing combines subtotal, the free-shipping threshold rule, the
// flat tax rate and the coupon discount into the payable total. Pure
// function; the total is clamped at zero so a discount can never produce a
// negative payable amount.
func ComputePricing(lines []models.CartLine, discount int64, cfg PricingConfig) PriceBreakdown {
	var subtotal int64
	for _, line := range lines {
		subtotal += OfferPrice(line) * int64(line.Quantity)
	}

	var shipping int64
	if subtotal < cfg.FreeShippingThreshold {
		shipping = cfg.ShippingFee
	}

	tax := subtotal * cfg.TaxRatePercent / 100

	total := subtotal + shipping + tax - discount
	if total < 0 {
		total = 0
	}

	return PriceBreakdown{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    total,
	}
}
