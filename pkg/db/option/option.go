// Package option holds composable gorm query modifiers used by repositories.
package option

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a statement before it is executed.
type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type queryOptionFunc func(stmt *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(stmt *gorm.DB) *gorm.DB { return f(stmt) }

type Operator string

const (
	EQ   Operator = "="
	GTE  Operator = ">="
	LTE  Operator = "<="
	LIKE Operator = "LIKE"
)

// Condition is a single column predicate. Field must come from code, never from user input.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if field == "" {
			return stmt
		}
		op := cond.Operator
		if op == "" {
			op = EQ
		}
		return stmt.Where(fmt.Sprintf("%s %s ?", field, op), cond.Value)
	})
}

// ApplySearch matches term case-insensitively against any of the given columns.
func ApplySearch(term string, fields ...string) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		term = strings.TrimSpace(term)
		if term == "" || len(fields) == 0 {
			return stmt
		}
		pattern := "%" + strings.ToLower(term) + "%"
		clauses := make([]string, 0, len(fields))
		args := make([]any, 0, len(fields))
		for _, field := range fields {
			clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE ?", field))
			args = append(args, pattern)
		}
		return stmt.Where("("+strings.Join(clauses, " OR ")+")", args...)
	})
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
	Default string
}

func WithQuerySortBy(sortBy, orderBy string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{SortBy: sortBy, OrderBy: orderBy, Allow: allow}
}

// WithSortBy orders by an allowed column, falling back to the default (or
// created_at) descending.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		column := strings.TrimSpace(sort.SortBy)
		if !sort.Allow[column] {
			column = sort.Default
		}
		if column == "" {
			column = "created_at"
		}
		direction := "DESC"
		if strings.EqualFold(strings.TrimSpace(sort.OrderBy), "asc") {
			direction = "ASC"
		}
		return stmt.Order(column + " " + direction)
	})
}

func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(stmt *gorm.DB) *gorm.DB {
		return stmt.Offset(page.Offset()).Limit(page.Limit())
	})
}

// Apply runs opts in order.
func Apply(stmt *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		stmt = opt.Apply(stmt)
	}
	return stmt
}
