package model

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/welfarefund/src/database"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sql.DB, username, staff, role string) *User {
	t.Helper()
	u := &User{Username: username, Email: username + "@Example.org", FullName: username, StaffNumber: staff, Role: role}
	require.NoError(t, u.HashPassword("Password123"))
	require.NoError(t, u.CreateUser(db))
	return u
}

func TestCreateAndLookupUser(t *testing.T) {
	db := openDB(t)
	u := createUser(t, db, "grace", "STAFF-0010", "")
	assert.NotZero(t, u.ID)
	assert.Equal(t, RoleMember, u.Role)
	assert.Equal(t, StatusActive, u.Status)
	assert.Equal(t, AuthProviderLocal, u.AuthProvider)

	byEmail, err := GetUserByEmail(db, "GRACE@example.ORG")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byStaff, err := GetUserByStaffNumber(db, "STAFF-0010")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byStaff.ID)
	assert.NoError(t, byStaff.CheckPassword("Password123"))
	assert.Error(t, byStaff.CheckPassword("nope"))

	_, err = GetUserByStaffNumber(db, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = GetUserByUsername(db, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Staff numbers are unique; blank ones are not.
	dup := &User{Username: "other", Email: "other@example.org", StaffNumber: "STAFF-0010"}
	assert.Error(t, dup.CreateUser(db))
	createUser(t, db, "nostaff1", "", "")
	createUser(t, db, "nostaff2", "", "")
}

func TestListUsersFilters(t *testing.T) {
	db := openDB(t)
	createUser(t, db, "heidi", "STAFF-0011", RoleMember)
	ivan := createUser(t, db, "ivan", "STAFF-0012", RoleMember)
	createUser(t, db, "judy", "", RoleAdmin)
	require.NoError(t, UpdateUserStatus(db, ivan.ID, StatusSuspended))

	all, err := ListUsers(db, UserFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	members, err := ListUsers(db, UserFilter{Role: RoleMember, Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "heidi", members[0].Username)

	found, err := ListUsers(db, UserFilter{Search: "staff-0012"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, StatusSuspended, found[0].Status)

	assert.ErrorIs(t, UpdateUserStatus(db, 999, StatusActive), ErrUserNotFound)
}

func TestTokensAndPasswords(t *testing.T) {
	db := openDB(t)
	u := createUser(t, db, "ken", "", "")
	expires := time.Now().Add(time.Hour)

	require.NoError(t, SetVerificationToken(db, u.ID, "verify-me", expires))
	got, err := GetUserByVerificationToken(db, "verify-me")
	require.NoError(t, err)
	assert.False(t, got.IsEmailVerified)
	assert.WithinDuration(t, expires, got.EmailVerificationTokenExpiresAt, time.Second)

	require.NoError(t, MarkEmailVerified(db, u.ID))
	_, err = GetUserByVerificationToken(db, "verify-me")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, SetPasswordResetToken(db, u.ID, "reset-me", expires))
	got, err = GetUserByPasswordResetToken(db, "reset-me")
	require.NoError(t, err)
	assert.True(t, got.IsEmailVerified)

	require.NoError(t, got.HashPassword("NewPassword456"))
	require.NoError(t, UpdatePassword(db, u.ID, got.Password))
	_, err = GetUserByPasswordResetToken(db, "reset-me")
	assert.ErrorIs(t, err, ErrUserNotFound)

	reloaded, err := GetUserByID(db, u.ID)
	require.NoError(t, err)
	assert.NoError(t, reloaded.CheckPassword("NewPassword456"))
}

func TestSessions(t *testing.T) {
	db := openDB(t)
	u := createUser(t, db, "leo", "", "")

	live := &Session{UserID: u.ID, Token: "access-1", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, CreateSession(db, live))
	expired := &Session{UserID: u.ID, Token: "access-2", RefreshToken: "refresh-2", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, CreateSession(db, expired))

	got, err := GetSessionByToken(db, "access-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	got, err = GetSessionByRefreshToken(db, "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	_, err = GetSessionByToken(db, "access-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, DeleteSessionByToken(db, "access-1"))
	require.NoError(t, DeleteSessionByToken(db, "access-1"))
	_, err = GetSessionByToken(db, "access-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, CreateSession(db, &Session{UserID: u.ID, Token: "access-3", RefreshToken: "refresh-3", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, DeleteSessionsForUser(db, u.ID))
	_, err = GetSessionByRefreshToken(db, "refresh-3")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
