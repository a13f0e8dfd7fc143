package service

import (
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
)

// Aggregate prices every item in order and sums the results into invoice totals.
// An empty list yields zero totals. The same inputs always give the same outputs.
func Aggregate(calc taxdomain.Calculator, items []taxdomain.LineItem, taxType taxdomain.TaxType, gstApplicable bool) (invoicedomain.Totals, []taxdomain.LineItemComputation) {
	var totals invoicedomain.Totals
	computed := make([]taxdomain.LineItemComputation, 0, len(items))

	for _, item := range items {
		c := calc.ComputeItemAmounts(item, taxType, gstApplicable)
		computed = append(computed, c)

		totals.SubTotal += c.BaseAmount
		totals.Discount += c.DiscountAmount
		totals.Tax += c.TaxAmount
		totals.SGST += c.SGSTAmount
		totals.CGST += c.CGSTAmount
		totals.IGST += c.IGSTAmount
		totals.Total += c.TotalAmount
	}
	return totals, computed
}
