package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByInvoice(ctx context.Context, db *gorm.DB, ownerID, invoiceID snowflake.ID) ([]*AuditLog, error)
}
