package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ksred/minimarbles/internal/database"
	"github.com/ksred/minimarbles/internal/types"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	return NewService(db), db
}

func TestCreateUser_DefaultBalance(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.CreateUser("Alice")
	require.NoError(t, err)

	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, int64(1000), user.Balance)
	assert.NotEmpty(t, user.ID)
}

func TestCreateUser_PersistsToDatabase(t *testing.T) {
	svc, db := newTestService(t)

	user, err := svc.CreateUser("Bob")
	require.NoError(t, err)

	var found types.User
	require.NoError(t, db.First(&found, "id = ?", user.ID).Error)
	assert.Equal(t, "Bob", found.Name)
	assert.Equal(t, int64(1000), found.Balance)
}

func TestCreateUser_MultipleUsersGetDistinctIDs(t *testing.T) {
	svc, _ := newTestService(t)

	alice, err := svc.CreateUser("Alice")
	require.NoError(t, err)
	bob, err := svc.CreateUser("Bob")
	require.NoError(t, err)

	assert.NotEqual(t, alice.ID, bob.ID)

	all, err := svc.ListUsers()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateUserWithBalance_Custom(t *testing.T) {
	svc, _ := newTestService(t)

	user, err := svc.CreateUserWithBalance("Charlie", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), user.Balance)

	zero, err := svc.CreateUserWithBalance("Dana", 0)
	require.NoError(t, err)
	stored, err := svc.GetUser(zero.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Balance)
}

func TestCreateUser_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateUser("")
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.CreateUser("   ")
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.CreateUser(strings.Repeat("x", 101))
	assert.ErrorIs(t, err, ErrNameTooLong)

	_, err = svc.CreateUserWithBalance("Eve", -1)
	assert.ErrorIs(t, err, ErrNegativeBalance)

	all, err := svc.ListUsers()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGetUser_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetUser("no-such-user")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestListUsers_EmptyIsNotNil(t *testing.T) {
	svc, _ := newTestService(t)

	all, err := svc.ListUsers()
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestTotalBalance(t *testing.T) {
	svc, _ := newTestService(t)

	total, err := svc.TotalBalance()
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, err = svc.CreateUser("Alice")
	require.NoError(t, err)
	_, err = svc.CreateUserWithBalance("Bob", 250)
	require.NoError(t, err)

	total, err = svc.TotalBalance()
	require.NoError(t, err)
	assert.Equal(t, int64(1250), total)
}
