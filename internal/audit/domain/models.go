package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Display names recorded when the acting user cannot be resolved to a real name.
const (
	ActorNameSystem       = "System"
	ActorNameUnknownUser  = "Unknown User"
	ActorNameLookupFailed = "Error Fetching Name"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// AuditLog is one append-only history entry for an invoice. UserID is the
// invoice owner, kept so history stays readable after the invoice is deleted.
type AuditLog struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID   `gorm:"not null;index" json:"user_id"`
	InvoiceID   snowflake.ID   `gorm:"not null;index" json:"invoice_id"`
	Action      string         `gorm:"type:text;not null" json:"action"`
	ActorUserID *snowflake.ID  `gorm:"index" json:"actor_user_id,omitempty"`
	ActorName   string         `gorm:"type:text;not null" json:"actor_name"`
	Changes     datatypes.JSON `gorm:"type:jsonb" json:"changes,omitempty"`
	Details     string         `gorm:"type:text" json:"details,omitempty"`
	IPAddress   *string        `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent   *string        `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "invoice_audit_logs" }
