package domain

import "strings"

// TaxType selects how GST is split on a line item.
type TaxType string

const (
	// TaxTypeSGSTCGST splits GST into state and central components (intra-state supply).
	TaxTypeSGSTCGST TaxType = "sgst_cgst"
	// TaxTypeIGST applies a single integrated rate (inter-state supply).
	TaxTypeIGST TaxType = "igst"
)

// ParseTaxType maps empty or unknown values to TaxTypeSGSTCGST.
func ParseTaxType(value string) TaxType {
	if TaxType(strings.ToLower(strings.TrimSpace(value))) == TaxTypeIGST {
		return TaxTypeIGST
	}
	return TaxTypeSGSTCGST
}

// Valid reports whether t is one of the known regimes.
func (t TaxType) Valid() bool {
	return t == TaxTypeSGSTCGST || t == TaxTypeIGST
}

// LineItem carries the raw pricing inputs of one invoice line.
// Optional percentages are nil when absent.
type LineItem struct {
	Quantity        float64  `json:"quantity"`
	Rate            float64  `json:"rate"`
	Discount        *float64 `json:"discount,omitempty"`
	IsPercentageQty bool     `json:"is_percentage_qty"`
	PercentageValue *float64 `json:"percentage_value,omitempty"`
	SGST            *float64 `json:"sgst,omitempty"`
	CGST            *float64 `json:"cgst,omitempty"`
	IGST            *float64 `json:"igst,omitempty"`
	TaxType         TaxType  `json:"tax_type,omitempty"`
	GSTApplicable   bool     `json:"gst_applicable"`
}

// LineItemComputation is the derived amounts for one line item.
// TotalAmount is the taxable amount; tax is reported separately and never added in.
type LineItemComputation struct {
	BaseAmount     float64 `json:"base_amount"`
	DiscountAmount float64 `json:"discount_amount"`
	TaxableAmount  float64 `json:"taxable_amount"`
	TaxAmount      float64 `json:"tax_amount"`
	SGSTAmount     float64 `json:"sgst_amount"`
	CGSTAmount     float64 `json:"cgst_amount"`
	IGSTAmount     float64 `json:"igst_amount"`
	TotalAmount    float64 `json:"total_amount"`
}

// Rates are the GST percentages applied when a line item does not carry its own.
type Rates struct {
	SGST float64
	CGST float64
	IGST float64
}

const (
	DefaultSGSTRate = 9.0
	DefaultCGSTRate = 9.0
	DefaultIGSTRate = 18.0
)

func DefaultRates() Rates {
	return Rates{
		SGST: DefaultSGSTRate,
		CGST: DefaultCGSTRate,
		IGST: DefaultIGSTRate,
	}
}
