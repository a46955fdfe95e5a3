package order

import "github.com/shopspring/decimal"

// minorUnitExponent is the number of fractional digits of the supported
// currencies (INR, USD, EUR).
const minorUnitExponent = 2

// DeliveryPolicy decides the delivery fee from the subtotal: orders at or
// above Threshold ship free, the rest pay Fee.
type DeliveryPolicy struct {
	Threshold decimal.Decimal
	Fee       decimal.Decimal
}

// Totals is the monetary breakdown of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
}

// ComputeTotals prices line items with the given delivery policy. Only the
// frozen unit prices of the items are used.
func ComputeTotals(items []LineItem, policy DeliveryPolicy) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = subtotal.Round(minorUnitExponent)

	fee := decimal.Zero
	if subtotal.LessThan(policy.Threshold) {
		fee = policy.Fee.Round(minorUnitExponent)
	}

	return Totals{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       subtotal.Add(fee),
	}
}

// MinorUnits converts the total into integer minor units (paise, cents) as
// expected by payment gateways.
func (t Totals) MinorUnits() int64 {
	return t.Total.Shift(minorUnitExponent).Round(0).IntPart()
}

// Consistent reports whether the breakdown adds up.
func (t Totals) Consistent() bool {
	return t.Subtotal.Add(t.DeliveryFee).Equal(t.Total)
}
