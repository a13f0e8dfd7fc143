package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/report/bucket"
	"github.com/smallbiznis/billbook/internal/report/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type groupedRow struct {
	BucketKey   string
	InvoiceType string
	Total       int64
}

func (r *repo) GroupedCounts(ctx context.Context, db *gorm.DB, userID snowflake.ID, period bucket.Period, invoiceType string, now time.Time) ([]bucket.Row, error) {
	start, end := window(period, now)
	key := keyExpr(db.Dialector.Name(), period)

	query := `SELECT ` + key + ` AS bucket_key, type AS invoice_type, COUNT(*) AS total
		FROM invoices
		WHERE user_id = ? AND date >= ? AND date < ?`
	args := []any{userID, start, end}
	if invoiceType != "" {
		query += ` AND type = ?`
		args = append(args, invoiceType)
	}
	query += ` GROUP BY ` + key + `, type ORDER BY bucket_key ASC, invoice_type ASC`

	var grouped []groupedRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&grouped).Error; err != nil {
		return nil, err
	}

	rows := make([]bucket.Row, 0, len(grouped))
	for _, g := range grouped {
		rows = append(rows, bucket.Row{Key: g.BucketKey, Type: g.InvoiceType, Count: g.Total})
	}
	return rows, nil
}

func (r *repo) Counts(ctx context.Context, db *gorm.DB, userID snowflake.ID, invoiceType string) (domain.Counts, error) {
	query := `SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN type = 'sales' THEN 1 ELSE 0 END), 0) AS sales,
			COALESCE(SUM(CASE WHEN type = 'purchase' THEN 1 ELSE 0 END), 0) AS purchase,
			COALESCE(SUM(CASE WHEN status = 'paid' THEN 1 ELSE 0 END), 0) AS paid,
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'overdue' THEN 1 ELSE 0 END), 0) AS overdue,
			COALESCE(SUM(CASE WHEN status = 'draft' THEN 1 ELSE 0 END), 0) AS draft
		FROM invoices
		WHERE user_id = ?`
	args := []any{userID}
	if invoiceType != "" {
		query += ` AND type = ?`
		args = append(args, invoiceType)
	}

	var counts domain.Counts
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&counts).Error; err != nil {
		return domain.Counts{}, err
	}
	return counts, nil
}

// window is the [start, end) date range a period's chart covers.
func window(period bucket.Period, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := today.AddDate(0, 0, 1)
	switch period {
	case bucket.PeriodMonthly:
		// five calendar weeks, the current one last
		monday := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
		return monday.AddDate(0, 0, -28), end
	case bucket.PeriodYearly:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, -11, 0), end
	default:
		return today.AddDate(0, 0, -6), end
	}
}

func keyExpr(dialect string, period bucket.Period) string {
	switch dialect {
	case "postgres":
		switch period {
		case bucket.PeriodMonthly:
			return "to_char(date, 'IYYY-IW')"
		case bucket.PeriodYearly:
			return "to_char(date, 'YYYY-MM')"
		default:
			return "to_char(date, 'YYYY-MM-DD')"
		}
	case "mysql":
		switch period {
		case bucket.PeriodMonthly:
			return "DATE_FORMAT(date, '%x-%v')"
		case bucket.PeriodYearly:
			return "DATE_FORMAT(date, '%Y-%m')"
		default:
			return "DATE_FORMAT(date, '%Y-%m-%d')"
		}
	default:
		// %W restarts at 00 on January 1st and would split the week spanning
		// new year, so sqlite keys weeks by their Monday instead.
		switch period {
		case bucket.PeriodMonthly:
			return "date(date, 'weekday 0', '-6 days')"
		case bucket.PeriodYearly:
			return "strftime('%Y-%m', date)"
		default:
			return "strftime('%Y-%m-%d', date)"
		}
	}
}
