package option

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type row struct {
	ID     int64 `gorm:"primaryKey"`
	Name   string
	Amount float64
}

func setup(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&row{}))
	require.NoError(t, conn.Create(&[]row{
		{ID: 1, Name: "Acme Traders", Amount: 10},
		{ID: 2, Name: "Bolt Supplies", Amount: 20},
		{ID: 3, Name: "acme retail", Amount: 30},
	}).Error)
	return conn
}

func TestApplyOperatorAndSearch(t *testing.T) {
	conn := setup(t)

	var rows []row
	err := Apply(conn.Model(&row{}),
		ApplySearch("ACME", "name"),
		ApplyOperator(Condition{Field: "amount", Operator: GTE, Value: 15}),
	).Find(&rows).Error
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].ID)
}

func TestSortAndPagination(t *testing.T) {
	conn := setup(t)

	var rows []row
	err := Apply(conn.Model(&row{}),
		WithSortBy(QuerySortBy{SortBy: "amount", OrderBy: "asc", Allow: map[string]bool{"amount": true}}),
		ApplyPagination(pagination.Pagination{Page: 2, PageSize: 2}),
	).Find(&rows).Error
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].ID)
}

func TestSortRejectsUnknownColumn(t *testing.T) {
	conn := setup(t)

	var rows []row
	err := Apply(conn.Model(&row{}),
		WithSortBy(QuerySortBy{SortBy: "name; DROP TABLE rows", Allow: map[string]bool{"amount": true}, Default: "id"}),
	).Find(&rows).Error
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0].ID)
}
