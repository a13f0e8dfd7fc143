package domain

// Calculator prices individual line items.
type Calculator interface {
	ComputeItemAmounts(item LineItem, taxType TaxType, gstApplicable bool) LineItemComputation
	Rates() Rates
}

// ValidateLineItem rejects percentages outside 0..100. Amount fields are
// not bounds-checked here; negatives propagate through the computation.
func ValidateLineItem(item LineItem) error {
	if item.Discount != nil && (*item.Discount < 0 || *item.Discount > 100) {
		return ErrInvalidDiscount
	}
	for _, rate := range []*float64{item.SGST, item.CGST, item.IGST} {
		if rate != nil && (*rate < 0 || *rate > 100) {
			return ErrInvalidTaxRate
		}
	}
	if item.TaxType != "" && !item.TaxType.Valid() {
		return ErrInvalidTaxType
	}
	return nil
}
