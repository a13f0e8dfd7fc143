package seed

import (
	"testing"

	userdomain "github.com/smallbiznis/billbook/internal/user/domain"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDefaultUserIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&userdomain.User{}))

	first, err := EnsureDefaultUser(conn, "", " Owner@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", first.Email)
	assert.Equal(t, defaultUserName, first.Name)

	second, err := EnsureDefaultUser(conn, "Someone Else", "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, conn.Model(&userdomain.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnsureDefaultUserRequiresDB(t *testing.T) {
	_, err := EnsureDefaultUser(nil, "", "")
	assert.Error(t, err)
}
