package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PartyKind separates the people a business sells to from those it buys from.
type PartyKind string

const (
	PartyKindCustomer PartyKind = "customer"
	PartyKindVendor   PartyKind = "vendor"
)

func (k PartyKind) Valid() bool {
	return k == PartyKindCustomer || k == PartyKindVendor
}

type Party struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	Name      string       `gorm:"not null" json:"name"`
	Kind      PartyKind    `gorm:"type:text;not null" json:"kind"`
	Email     string       `gorm:"type:text" json:"email,omitempty"`
	Phone     string       `gorm:"type:text" json:"phone,omitempty"`
	GSTIN     string       `gorm:"column:gstin;type:text" json:"gstin,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Party) TableName() string { return "parties" }
