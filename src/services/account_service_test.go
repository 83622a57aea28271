package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/security"
)

func newAccounts(f *fixture) AccountService {
	auth := security.NewAuthService("test-secret-that-is-at-least-32-bytes-long", time.Hour)
	return NewAccountService(f.db, auth, f.email, f.cache, AccountSettings{})
}

func TestRegisterVerifyLogin(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)
	meta := SessionMeta{UserAgent: "test", ClientIP: "127.0.0.1"}

	u, err := accounts.Register(f.ctx, CreateMemberInput{
		Username: "nadia", Email: "nadia@example.org", Password: "Password123",
		FullName: "nadia okafor", Role: model.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, u.Role, "self-registration never grants admin")
	assert.False(t, u.IsEmailVerified)
	require.NotEmpty(t, f.email.Sent())

	_, err = accounts.Login(f.ctx, "nadia", "Password123", meta)
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = accounts.VerifyEmail(f.ctx, "bogus")
	assert.ErrorIs(t, err, ErrNotFound)
	verified, err := accounts.VerifyEmail(f.ctx, u.EmailVerificationToken)
	require.NoError(t, err)
	assert.True(t, verified.IsEmailVerified)

	_, err = accounts.Login(f.ctx, "nadia", "wrong-password1", meta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accounts.Login(f.ctx, "nobody", "Password123", meta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := accounts.Login(f.ctx, "nadia", "Password123", meta)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	_, err = model.GetSessionByToken(f.db, res.AccessToken)
	require.NoError(t, err)

	refreshed, err := accounts.Refresh(f.ctx, res.RefreshToken, meta)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, refreshed.RefreshToken)
	_, err = accounts.Refresh(f.ctx, res.RefreshToken, meta)
	assert.ErrorIs(t, err, security.ErrInvalidToken, "refresh tokens are single use")

	require.NoError(t, accounts.Logout(f.ctx, refreshed.AccessToken))
	_, err = model.GetSessionByToken(f.db, refreshed.AccessToken)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)
	u := f.member("omar", "STAFF-O1", model.RoleMember, monthsAgo(2))

	require.NoError(t, accounts.RequestPasswordReset(f.ctx, "unknown@example.org"))
	require.NoError(t, accounts.RequestPasswordReset(f.ctx, u.Email))

	stored, err := model.GetUserByID(f.db, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.PasswordResetToken)

	assert.Error(t, accounts.ResetPassword(f.ctx, stored.PasswordResetToken, "short"))
	require.NoError(t, accounts.ResetPassword(f.ctx, stored.PasswordResetToken, "NewPassword456"))
	assert.ErrorIs(t, accounts.ResetPassword(f.ctx, stored.PasswordResetToken, "NewPassword789"), ErrNotFound)

	_, err = accounts.Login(f.ctx, "omar", "NewPassword456", SessionMeta{})
	require.NoError(t, err)
}

func TestLoginWithGoogle(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)
	local := f.member("pam", "STAFF-P1", model.RoleMember, monthsAgo(2))

	_, err := accounts.LoginWithGoogle(f.ctx, local.Email, "Pam", SessionMeta{})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	res, err := accounts.LoginWithGoogle(f.ctx, "quinn@example.org", "quinn adebayo", SessionMeta{})
	require.NoError(t, err)
	assert.Equal(t, model.AuthProviderGoogle, res.User.AuthProvider)
	assert.Equal(t, "Quinn Adebayo", res.User.FullName)

	again, err := accounts.LoginWithGoogle(f.ctx, "quinn@example.org", "Quinn", SessionMeta{})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)
}

func TestNewAccountsRefreshCachedDashboard(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)
	f.member("rosa", "STAFF-R1", model.RoleMember, monthsAgo(3))

	dash, err := f.reports.AdminDashboard(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, dash.TotalMembers)

	_, err = accounts.Register(f.ctx, CreateMemberInput{
		Username: "sami", Email: "sami@example.org", Password: "Password123", FullName: "sami bello",
	})
	require.NoError(t, err)
	_, found := f.cache.Get(ckAdminDashboard)
	assert.False(t, found, "registration drops cached aggregates")

	dash, err = f.reports.AdminDashboard(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.TotalMembers)

	_, err = accounts.LoginWithGoogle(f.ctx, "tara@example.org", "tara eze", SessionMeta{})
	require.NoError(t, err)
	dash, err = f.reports.AdminDashboard(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dash.TotalMembers)
}
