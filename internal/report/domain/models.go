package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/report/bucket"
	"gorm.io/gorm"
)

// Counts are raw invoice totals shown beside the chart.
type Counts struct {
	Total    int64 `json:"total"`
	Sales    int64 `json:"sales"`
	Purchase int64 `json:"purchase"`
	Paid     int64 `json:"paid"`
	Pending  int64 `json:"pending"`
	Overdue  int64 `json:"overdue"`
	Draft    int64 `json:"draft"`
}

type StatsRequest struct {
	Period string `form:"period"`
	Type   string `form:"type"`
}

type StatsResponse struct {
	Counts Counts       `json:"counts"`
	Chart  bucket.Chart `json:"chart"`
}

type Repository interface {
	// GroupedCounts returns rows for the window of period ending today, ascending by key.
	GroupedCounts(ctx context.Context, db *gorm.DB, userID snowflake.ID, period bucket.Period, invoiceType string, now time.Time) ([]bucket.Row, error)
	Counts(ctx context.Context, db *gorm.DB, userID snowflake.ID, invoiceType string) (Counts, error)
}

type Service interface {
	Stats(ctx context.Context, req StatsRequest) (StatsResponse, error)
}

var (
	ErrInvalidUser = errors.New("invalid_user")
	ErrInvalidType = errors.New("invalid_type")
)
