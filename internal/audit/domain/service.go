package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service records invoice history without ever affecting the caller.
type Service interface {
	// Record schedules an entry and returns immediately. Failures are logged, never returned.
	Record(ctx context.Context, ownerID, invoiceID snowflake.ID, action, details string, changes any)
	// List returns the owner's history for an invoice, including invoices since deleted.
	List(ctx context.Context, ownerID snowflake.ID, invoiceID string) ([]AuditLog, error)
}

var (
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvalidUser      = errors.New("invalid_user")
)
