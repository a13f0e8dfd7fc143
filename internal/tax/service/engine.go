package service

import (
	"github.com/smallbiznis/billbook/internal/config"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"go.uber.org/fx"
)

// ComputeBaseAmount returns the pre-discount amount of a line item.
// Percentage mode applies only when a percentage value is supplied.
func ComputeBaseAmount(item taxdomain.LineItem) float64 {
	if item.IsPercentageQty && item.PercentageValue != nil {
		return *item.PercentageValue / 100 * item.Rate
	}
	return item.Quantity * item.Rate
}

// Engine prices line items against a fixed set of default rates.
type Engine struct {
	rates taxdomain.Rates
}

// NewEngine returns an engine pricing against rates as given. A zero rate is a
// real 0% rate; unset rates are resolved to the defaults when config loads.
func NewEngine(rates taxdomain.Rates) *Engine {
	return &Engine{rates: rates}
}

func (e *Engine) Rates() taxdomain.Rates {
	return e.rates
}

// ComputeItemAmounts derives discount, taxable, tax and total amounts for item.
func (e *Engine) ComputeItemAmounts(item taxdomain.LineItem, taxType taxdomain.TaxType, gstApplicable bool) taxdomain.LineItemComputation {
	base := ComputeBaseAmount(item)
	discount := base * valueOr(item.Discount, 0) / 100
	taxable := base - discount

	out := taxdomain.LineItemComputation{
		BaseAmount:     base,
		DiscountAmount: discount,
		TaxableAmount:  taxable,
		TotalAmount:    taxable,
	}
	if !gstApplicable {
		return out
	}

	switch taxType {
	case taxdomain.TaxTypeIGST:
		out.IGSTAmount = taxable * valueOr(item.IGST, e.rates.IGST) / 100
		out.TaxAmount = out.IGSTAmount
	default:
		out.SGSTAmount = taxable * valueOr(item.SGST, e.rates.SGST) / 100
		out.CGSTAmount = taxable * valueOr(item.CGST, e.rates.CGST) / 100
		out.TaxAmount = out.SGSTAmount + out.CGSTAmount
	}
	return out
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

type Params struct {
	fx.In

	Holder *config.TaxConfigHolder `optional:"true"`
}

// configuredCalculator builds an engine from the live tax config on every call
// so rate changes picked up by the config watcher apply to the next invoice.
type configuredCalculator struct {
	holder *config.TaxConfigHolder
}

func NewCalculator(p Params) taxdomain.Calculator {
	return &configuredCalculator{holder: p.Holder}
}

func (c *configuredCalculator) engine() *Engine {
	cfg := c.holder.Get()
	return NewEngine(taxdomain.Rates{SGST: cfg.SGST, CGST: cfg.CGST, IGST: cfg.IGST})
}

func (c *configuredCalculator) Rates() taxdomain.Rates {
	return c.engine().Rates()
}

func (c *configuredCalculator) ComputeItemAmounts(item taxdomain.LineItem, taxType taxdomain.TaxType, gstApplicable bool) taxdomain.LineItemComputation {
	return c.engine().ComputeItemAmounts(item, taxType, gstApplicable)
}
