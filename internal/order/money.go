package order

import "github.com/shopspring/decimal"

const taxRate = "0.10"

const (
	shippingFlatFee       = 10
	freeShippingThreshold = 100
)

// RecomputeTotals derives the money fields from the line-item snapshots.
// It is a pure function of the items: client-supplied totals never feed
// into it, and recomputing from the same items always yields the same
// result. Tax is 10% of the subtotal rounded to 2 decimals; shipping is a
// flat fee waived above the free-shipping threshold.
func (o *Order) RecomputeTotals() {
	items := decimal.Zero
	for _, item := range o.Items {
		line := decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity)))
		items = items.Add(line)
	}
	items = items.Round(2)

	tax := items.Mul(decimal.RequireFromString(taxRate)).Round(2)

	shipping := decimal.NewFromInt(shippingFlatFee)
	if items.GreaterThan(decimal.NewFromInt(freeShippingThreshold)) {
		shipping = decimal.Zero
	}

	o.ItemsPrice = items.InexactFloat64()
	o.TaxPrice = tax.InexactFloat64()
	o.ShippingPrice = shipping.InexactFloat64()
	o.TotalPrice = items.Add(tax).Add(shipping).Round(2).InexactFloat64()
}
