package cart

import "github.com/shopspring/decimal"

// ShippingPolicy prices delivery for the lines of one vendor.
type ShippingPolicy interface {
	Charge(vendorID string, vendorSubtotal decimal.Decimal) decimal.Decimal
}

// FlatRate charges Fee per vendor, waived once the vendor subtotal reaches
// FreeAbove. A zero FreeAbove never waives.
type FlatRate struct {
	Fee       decimal.Decimal
	FreeAbove decimal.Decimal
}

func (f FlatRate) Charge(_ string, subtotal decimal.Decimal) decimal.Decimal {
	if f.FreeAbove.IsPositive() && subtotal.GreaterThanOrEqual(f.FreeAbove) {
		return decimal.Zero
	}
	return f.Fee
}
