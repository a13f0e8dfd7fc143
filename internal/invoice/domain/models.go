// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	"gorm.io/datatypes"
)

// InvoiceType says whether the business issued or received the invoice.
type InvoiceType string

const (
	InvoiceTypeSales    InvoiceType = "sales"
	InvoiceTypePurchase InvoiceType = "purchase"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeSales || t == InvoiceTypePurchase
}

// InvoiceStatus represents invoice payment states.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue:
		return true
	default:
		return false
	}
}

// Totals are invoice-level sums of the per-item computations.
// Total is the sum of taxable amounts; Tax is tracked beside it, not inside it.
type Totals struct {
	SubTotal float64 `json:"sub_total"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	SGST     float64 `json:"sgst"`
	CGST     float64 `json:"cgst"`
	IGST     float64 `json:"igst"`
	Total    float64 `json:"total"`
}

// Invoice represents a sales or purchase invoice.
type Invoice struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoices_user_number" json:"user_id"`
	Number        string            `gorm:"type:text;not null;uniqueIndex:ux_invoices_user_number" json:"number"`
	Type          InvoiceType       `gorm:"type:text;not null;index" json:"type"`
	Status        InvoiceStatus     `gorm:"type:text;not null;default:'draft'" json:"status"`
	PartyID       *snowflake.ID     `gorm:"index" json:"party_id,omitempty"`
	PartyName     string            `gorm:"type:text;not null" json:"party_name"`
	Date          time.Time         `gorm:"not null;index" json:"date"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	TaxType       taxdomain.TaxType `gorm:"type:text;not null" json:"tax_type"`
	GSTApplicable bool              `gorm:"not null;default:true" json:"gst_applicable"`
	SubTotal      float64           `gorm:"not null;default:0" json:"sub_total"`
	Discount      float64           `gorm:"not null;default:0" json:"discount"`
	Tax           float64           `gorm:"not null;default:0" json:"tax"`
	SGST          float64           `gorm:"column:sgst;not null;default:0" json:"sgst"`
	CGST          float64           `gorm:"column:cgst;not null;default:0" json:"cgst"`
	IGST          float64           `gorm:"column:igst;not null;default:0" json:"igst"`
	Total         float64           `gorm:"not null;default:0" json:"total"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Items []InvoiceItem `gorm:"-" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// ApplyTotals copies aggregated totals onto the invoice.
func (i *Invoice) ApplyTotals(t Totals) {
	i.SubTotal = t.SubTotal
	i.Discount = t.Discount
	i.Tax = t.Tax
	i.SGST = t.SGST
	i.CGST = t.CGST
	i.IGST = t.IGST
	i.Total = t.Total
}

// InvoiceItem represents a line on an invoice. GST rates live in Meta and are
// hydrated into the rate fields when the item is loaded.
type InvoiceItem struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	InvoiceID       snowflake.ID   `gorm:"not null;index" json:"invoice_id"`
	Position        int            `gorm:"not null" json:"position"`
	Description     string         `gorm:"type:text" json:"description"`
	Quantity        float64        `gorm:"not null;default:0" json:"quantity"`
	Rate            float64        `gorm:"not null;default:0" json:"rate"`
	Discount        *float64       `json:"discount,omitempty"`
	IsPercentageQty bool           `gorm:"not null;default:false" json:"is_percentage_qty"`
	PercentageValue *float64       `json:"percentage_value,omitempty"`
	BaseAmount      float64        `gorm:"not null;default:0" json:"base_amount"`
	DiscountAmount  float64        `gorm:"not null;default:0" json:"discount_amount"`
	TaxableAmount   float64        `gorm:"not null;default:0" json:"taxable_amount"`
	TaxAmount       float64        `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount     float64        `gorm:"not null;default:0" json:"total_amount"`
	Meta            datatypes.JSON `gorm:"type:jsonb" json:"-"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	SGST       *float64 `gorm:"-" json:"sgst,omitempty"`
	CGST       *float64 `gorm:"-" json:"cgst,omitempty"`
	IGST       *float64 `gorm:"-" json:"igst,omitempty"`
	SGSTAmount float64  `gorm:"-" json:"sgst_amount"`
	CGSTAmount float64  `gorm:"-" json:"cgst_amount"`
	IGSTAmount float64  `gorm:"-" json:"igst_amount"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// LineItem rebuilds the pricing input of a stored item from its columns and
// whatever the meta sidecar carries. Absent rates stay nil.
func (it *InvoiceItem) LineItem(taxType taxdomain.TaxType, gstApplicable bool) taxdomain.LineItem {
	item := taxdomain.LineItem{
		Quantity:        it.Quantity,
		Rate:            it.Rate,
		Discount:        it.Discount,
		IsPercentageQty: it.IsPercentageQty,
		PercentageValue: it.PercentageValue,
		SGST:            it.SGST,
		CGST:            it.CGST,
		IGST:            it.IGST,
		TaxType:         taxType,
		GSTApplicable:   gstApplicable,
	}
	if meta, ok := taxdomain.ParseItemMeta(it.Meta); ok {
		item = meta.Apply(item)
	}
	return item
}

// Hydrate fills the rate and per-component tax fields of a loaded item.
// The meta sidecar may be missing, malformed or partial: rates it lacks come
// from calc's defaults and amounts it lacks are recomputed by calc.
func (it *InvoiceItem) Hydrate(taxType taxdomain.TaxType, gstApplicable bool, calc taxdomain.Calculator) {
	item := it.LineItem(taxType, gstApplicable)
	meta, _ := taxdomain.ParseItemMeta(it.Meta)
	computed := calc.ComputeItemAmounts(item, taxType, gstApplicable)
	defaults := calc.Rates()

	it.SGST = rateOr(item.SGST, defaults.SGST)
	it.CGST = rateOr(item.CGST, defaults.CGST)
	it.IGST = rateOr(item.IGST, defaults.IGST)
	it.SGSTAmount = amountOr(meta.SGSTAmount, computed.SGSTAmount)
	it.CGSTAmount = amountOr(meta.CGSTAmount, computed.CGSTAmount)
	it.IGSTAmount = amountOr(meta.IGSTAmount, computed.IGSTAmount)
	it.IsPercentageQty = item.IsPercentageQty
	it.PercentageValue = item.PercentageValue
}

func rateOr(v *float64, def float64) *float64 {
	if v != nil {
		return v
	}
	return &def
}

func amountOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}

// InvoiceSummary is the list view of an invoice.
type InvoiceSummary struct {
	ID        snowflake.ID  `json:"id"`
	Number    string        `json:"number"`
	Type      InvoiceType   `json:"type"`
	Status    InvoiceStatus `json:"status"`
	PartyName string        `json:"party_name"`
	Date      time.Time     `json:"date"`
	DueDate   *time.Time    `json:"due_date,omitempty"`
	Tax       float64       `json:"tax"`
	Total     float64       `json:"total"`
}

func (i Invoice) Summary() InvoiceSummary {
	return InvoiceSummary{
		ID:        i.ID,
		Number:    i.Number,
		Type:      i.Type,
		Status:    i.Status,
		PartyName: i.PartyName,
		Date:      i.Date,
		DueDate:   i.DueDate,
		Tax:       i.Tax,
		Total:     i.Total,
	}
}
