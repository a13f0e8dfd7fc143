package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/pkg/db/option"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

const invoiceColumns = `id, user_id, number, type, status, party_id, party_name, date, due_date,
	tax_type, gst_applicable, sub_total, discount, tax, sgst, cgst, igst, total, notes,
	created_at, updated_at`

var sortable = map[string]bool{
	"date":       true,
	"total":      true,
	"number":     true,
	"created_at": true,
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.UserID,
		inv.Number,
		inv.Type,
		inv.Status,
		inv.PartyID,
		inv.PartyName,
		inv.Date,
		inv.DueDate,
		inv.TaxType,
		inv.GSTApplicable,
		inv.SubTotal,
		inv.Discount,
		inv.Tax,
		inv.SGST,
		inv.CGST,
		inv.IGST,
		inv.Total,
		inv.Notes,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET number = ?, type = ?, status = ?, party_id = ?, party_name = ?, date = ?, due_date = ?,
		     tax_type = ?, gst_applicable = ?, sub_total = ?, discount = ?, tax = ?,
		     sgst = ?, cgst = ?, igst = ?, total = ?, notes = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		inv.Number,
		inv.Type,
		inv.Status,
		inv.PartyID,
		inv.PartyName,
		inv.Date,
		inv.DueDate,
		inv.TaxType,
		inv.GSTApplicable,
		inv.SubTotal,
		inv.Discount,
		inv.Tax,
		inv.SGST,
		inv.CGST,
		inv.IGST,
		inv.Total,
		inv.Notes,
		inv.UpdatedAt,
		inv.UserID,
		inv.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM invoices WHERE user_id = ? AND id = ?`,
		userID,
		id,
	)
	return res.RowsAffected, res.Error
}

// FindByID returns nil, nil when the invoice does not exist for the user.
func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices WHERE user_id = ? AND id = ?`,
		userID,
		id,
	).Scan(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == 0 {
		return nil, nil
	}
	return &inv, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Invoice, int64, error) {
	opts := []option.QueryOption{
		option.ApplySearch(filter.Customer, "party_name"),
		option.ApplySearch(filter.Search, "number", "party_name"),
	}
	if filter.Type != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "type", Operator: option.EQ, Value: filter.Type}))
	}
	if filter.Status != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: filter.Status}))
	}
	if filter.StartDate != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "date", Operator: option.GTE, Value: *filter.StartDate}))
	}
	if filter.EndDate != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "date", Operator: option.LTE, Value: *filter.EndDate}))
	}

	stmt := option.Apply(
		db.WithContext(ctx).Model(&domain.Invoice{}).Where("user_id = ?", userID),
		opts...,
	)

	var total int64
	if err := stmt.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []*domain.Invoice
	err := option.Apply(stmt,
		option.WithSortBy(option.QuerySortBy{
			SortBy:  filter.SortBy,
			OrderBy: filter.OrderBy,
			Allow:   sortable,
			Default: "date",
		}),
		option.ApplyPagination(page),
	).Order("id desc").Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	for _, item := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_items (
				id, invoice_id, position, description, quantity, rate, discount,
				is_percentage_qty, percentage_value, base_amount, discount_amount,
				taxable_amount, tax_amount, total_amount, meta, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.InvoiceID,
			item.Position,
			item.Description,
			item.Quantity,
			item.Rate,
			item.Discount,
			item.IsPercentageQty,
			item.PercentageValue,
			item.BaseAmount,
			item.DiscountAmount,
			item.TaxableAmount,
			item.TaxAmount,
			item.TotalAmount,
			item.Meta,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM invoice_items WHERE invoice_id = ?`,
		invoiceID,
	).Error
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Model(&domain.InvoiceItem{}).
		Where("invoice_id = ?", invoiceID).
		Order("position asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPastDue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE status = ? AND due_date IS NOT NULL AND due_date < ?
		 ORDER BY due_date ASC, id ASC
		 LIMIT ?`,
		domain.InvoiceStatusPending,
		asOf,
		limit,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.InvoiceStatusOverdue,
		now,
		id,
		domain.InvoiceStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
