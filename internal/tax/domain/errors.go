package domain

import "errors"

var (
	ErrInvalidTaxType  = errors.New("invalid_tax_type")
	ErrInvalidTaxRate  = errors.New("invalid_tax_rate")
	ErrInvalidDiscount = errors.New("invalid_discount")
)
