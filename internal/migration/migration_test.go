package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestMigrateFallsBackToAutoMigrate(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	res, err := Migrate(conn)
	require.NoError(t, err)
	assert.True(t, res.Auto)
	assert.Zero(t, res.Version)
	for _, table := range []string{"users", "parties", "invoices", "invoice_items", "invoice_audit_logs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestMigrateRequiresConnection(t *testing.T) {
	_, err := Migrate(nil)
	assert.Error(t, err)
}
