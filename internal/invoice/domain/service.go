package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

// ItemRequest is one line as submitted by the client.
type ItemRequest struct {
	Description     string   `json:"description"`
	Quantity        float64  `json:"quantity"`
	Rate            float64  `json:"rate"`
	Discount        *float64 `json:"discount"`
	IsPercentageQty bool     `json:"is_percentage_qty"`
	PercentageValue *float64 `json:"percentage_value"`
	SGST            *float64 `json:"sgst"`
	CGST            *float64 `json:"cgst"`
	IGST            *float64 `json:"igst"`
}

type InvoiceRequest struct {
	Number        string        `json:"number"`
	Type          string        `json:"type"`
	Status        string        `json:"status"`
	PartyID       string        `json:"party_id"`
	PartyName     string        `json:"party_name"`
	Date          string        `json:"date"`
	DueDate       string        `json:"due_date"`
	TaxType       string        `json:"tax_type"`
	GSTApplicable *bool         `json:"gst_applicable"`
	Notes         string        `json:"notes"`
	Items         []ItemRequest `json:"items"`
}

type CreateInvoiceRequest struct {
	InvoiceRequest
}

type UpdateInvoiceRequest struct {
	ID string `json:"-"`
	InvoiceRequest
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Type      string `form:"type"`
	Status    string `form:"status"`
	Customer  string `form:"customer"`
	Search    string `form:"search"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	SortBy    string `form:"sort_by"`
	OrderBy   string `form:"order_by"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []InvoiceSummary `json:"invoices"`
	Count    int64            `json:"count"`
}

type Service interface {
	Create(context.Context, CreateInvoiceRequest) (Invoice, error)
	Update(context.Context, UpdateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(context.Context, ListInvoiceRequest) (ListInvoiceResponse, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidType      = errors.New("invalid_type")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidDate      = errors.New("invalid_date")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrInvalidParty     = errors.New("invalid_party")
	ErrPartyNotFound    = errors.New("party_not_found")
	ErrInvalidItems     = errors.New("invalid_items")
	ErrInvalidTaxType   = errors.New("invalid_tax_type")
	ErrDuplicateNumber  = errors.New("duplicate_invoice_number")
	ErrNotFound         = errors.New("not_found")
)
