package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Type      InvoiceType
	Status    InvoiceStatus
	Customer  string
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	SortBy    string
	OrderBy   string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Delete(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Invoice, int64, error)

	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	DeleteItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) error
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)

	// ListPastDue returns pending invoices of any user whose due date is before asOf.
	ListPastDue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]*Invoice, error)
	// MarkOverdue flips a pending invoice to overdue and reports whether it changed.
	MarkOverdue(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}

// StatsInvalidator drops cached dashboard figures after invoices change.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userID snowflake.ID) error
}
