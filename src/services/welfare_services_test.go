package services

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/welfarefund/src/config"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/utils"
	"github.com/xuri/excelize/v2"
)

func seedCatalog(t *testing.T, f *fixture) []models.WelfareService {
	t.Helper()
	active := true
	seeds := []config.WelfareServiceSeed{
		{Code: "medical", Name: "Medical support", MaxAmount: "500", MinMembershipMonths: 3, MinConsistencyPercent: 75, Active: &active},
		{Code: "bereavement", Name: "Bereavement", MaxAmount: "1000", MinMembershipMonths: 0, MinConsistencyPercent: 0},
	}
	n, err := f.welfare.SeedCatalog(f.ctx, seeds)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = f.welfare.SeedCatalog(f.ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "seeding twice leaves existing services alone")

	services, err := f.welfare.ListServices(f.ctx, true)
	require.NoError(t, err)
	require.Len(t, services, 2)
	return services
}

func serviceByCode(services []models.WelfareService, code string) models.WelfareService {
	for _, s := range services {
		if s.Code == code {
			return s
		}
	}
	panic("no service " + code)
}

func TestServiceCatalog(t *testing.T) {
	f := newFixture(t)
	services := seedCatalog(t, f)
	medical := serviceByCode(services, "MEDICAL")
	assert.True(t, d("500").Equal(medical.MaxAmount))

	_, err := f.welfare.CreateService(f.ctx, ServiceInput{Code: "medical", Name: "Dup", MaxAmount: d("10"), Active: true})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = f.welfare.CreateService(f.ctx, ServiceInput{Code: "EDU", Name: "Education", MaxAmount: d("0"), Active: true})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	updated, err := f.welfare.UpdateService(f.ctx, medical.ID, ServiceInput{
		Code: "MEDICAL", Name: "Medical support", MaxAmount: d("750"), MinMembershipMonths: 3, MinConsistencyPercent: 75, Active: false,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)

	active, err := f.welfare.ListServices(f.ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestWelfareApplicationLifecycle(t *testing.T) {
	f := newFixture(t)
	services := seedCatalog(t, f)
	medical := serviceByCode(services, "MEDICAL")

	u := f.member("ines", "STAFF-I1", model.RoleMember, monthsAgo(4))
	f.pay(u, 2, "50")

	result, err := f.welfare.CheckEligibility(f.ctx, u.ID, medical.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, result.MonthsAsMember)
	assert.Equal(t, 2, result.PaidPeriods)
	assert.InDelta(t, 50.0, result.ConsistencyPercent, 0.001)
	assert.False(t, result.Eligible)
	require.Len(t, result.Reasons, 1)

	_, err = f.welfare.Apply(f.ctx, u.ID, ApplyInput{ServiceID: medical.ID, Amount: d("100"), Description: "surgery"})
	assert.ErrorIs(t, err, ErrNotEligible)

	for _, period := range utils.PeriodsFrom(u.JoinedAt, 4)[2:] {
		_, err := f.contributions.Record(f.ctx, f.admin.ID, ContributionInput{UserID: u.ID, Period: period, Amount: d("50"), Method: "cash"})
		require.NoError(t, err)
	}

	_, err = f.welfare.Apply(f.ctx, u.ID, ApplyInput{ServiceID: medical.ID, Amount: d("600"), Description: "surgery"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	app, err := f.welfare.Apply(f.ctx, u.ID, ApplyInput{ServiceID: medical.ID, Amount: d("400"), Description: "surgery"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(app.Reference, "WA-"))
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.InDelta(t, 100.0, app.ConsistencyPercent, 0.001)

	_, err = f.welfare.Apply(f.ctx, u.ID, ApplyInput{ServiceID: medical.ID, Amount: d("50"), Description: "follow-up"})
	assert.ErrorIs(t, err, ErrInvalidState, "one open application per service")

	_, err = f.welfare.Review(f.ctx, f.admin.ID, app.ID, ReviewInput{Approve: true, Amount: d("450")})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	approved, err := f.welfare.Review(f.ctx, f.admin.ID, app.ID, ReviewInput{Approve: true, Amount: d("300"), Note: "partial"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApproved, approved.Status)
	require.True(t, approved.AmountApproved.Valid)
	assert.True(t, d("300").Equal(approved.AmountApproved.Decimal))

	_, err = f.welfare.Withdraw(f.ctx, u.ID, app.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	disbursed, err := f.welfare.Disburse(f.ctx, f.admin.ID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationDisbursed, disbursed.Status)
	assert.NotNil(t, disbursed.DisbursedAt)

	_, err = f.welfare.Disburse(f.ctx, f.admin.ID, app.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Closed applications do not block a new one.
	next, err := f.welfare.Apply(f.ctx, u.ID, ApplyInput{ServiceID: medical.ID, Amount: d("50"), Description: "follow-up"})
	require.NoError(t, err)
	_, err = f.welfare.Review(f.ctx, f.admin.ID, next.ID, ReviewInput{Approve: false})
	assert.Error(t, err, "rejection needs a note")
	withdrawn, err := f.welfare.Withdraw(f.ctx, u.ID, next.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationWithdrawn, withdrawn.Status)

	apps, err := f.welfare.ListApplications(f.ctx, ApplicationFilter{UserID: u.ID})
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}

func TestNotify(t *testing.T) {
	f := newFixture(t)
	u, err := f.members.CreateMember(f.ctx, CreateMemberInput{
		Username: "jamal", Email: "jamal@example.org", Password: "Password123",
		FullName: "Jamal Tester", StaffNumber: "STAFF-J1", Phone: "+254700000001",
		JoinedAt: monthsAgo(2).Format(utils.DefaultDateFormat),
	})
	require.NoError(t, err)

	require.NoError(t, f.notifications.Notify(f.ctx, u, "Hello", "Welcome to the fund"))

	inbox, err := f.notifications.List(f.ctx, u.ID, true)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, models.ChannelInApp, inbox[0].Channel)

	sent := f.email.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, "jamal@example.org", sent[len(sent)-1].To)

	require.NoError(t, f.notifications.MarkRead(f.ctx, u.ID, inbox[0].ID))
	assert.ErrorIs(t, f.notifications.MarkRead(f.ctx, f.admin.ID, inbox[0].ID), ErrNotFound)

	require.NoError(t, f.notifications.Notify(f.ctx, u, "Second", "Another"))
	require.NoError(t, f.notifications.Notify(f.ctx, u, "Third", "Another"))
	n, err := f.notifications.MarkAllRead(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	unread, err := f.notifications.List(f.ctx, u.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestSendArrearsReminders(t *testing.T) {
	f := newFixture(t)
	paid := f.member("kofi", "STAFF-K1", model.RoleMember, monthsAgo(3))
	late := f.member("lina", "STAFF-L1", model.RoleMember, monthsAgo(3))
	f.member("newbie", "STAFF-N1", model.RoleMember, monthsAgo(0))
	f.pay(paid, 3, "50")

	period := utils.Period(monthsAgo(1))
	n, err := f.notifications.SendArrearsReminders(f.ctx, period)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inbox, err := f.notifications.List(f.ctx, late.ID, false)
	require.NoError(t, err)
	require.NotEmpty(t, inbox)
	assert.Contains(t, inbox[0].Subject, period)

	_, err = f.notifications.SendArrearsReminders(f.ctx, "2024-13")
	assert.Error(t, err)
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	u := f.member("musa", "STAFF-M1", model.RoleMember, monthsAgo(4))
	f.pay(u, 4, "50")

	dash, err := f.reports.AdminDashboard(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.TotalMembers)
	assert.True(t, d("200").Equal(dash.TotalContributions))

	_, found := f.cache.Get(ckAdminDashboard)
	assert.True(t, found)

	_, err = f.withdrawals.Request(f.ctx, u.ID, d("25"), "transport")
	require.NoError(t, err)
	_, found = f.cache.Get(ckAdminDashboard)
	assert.False(t, found, "writes drop cached aggregates")

	dash, err = f.reports.AdminDashboard(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.PendingWithdrawals)

	member, err := f.reports.MemberDashboard(f.ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, d("75").Equal(member.Balance.AvailableBalance))
	assert.Len(t, member.OpenWithdrawals, 1)
	assert.Len(t, member.RecentContributions, 4)
	assert.Equal(t, 4, member.MonthsAsMember)
	assert.Positive(t, member.UnreadNotifications)

	statement, err := f.reports.MemberStatement(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "STAFF-M1", statement.StaffNumber)
	assert.Len(t, statement.Contributions, 4)

	_, err = f.reports.MemberStatement(f.ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	year := u.JoinedAt.Year()
	report, err := f.reports.MonthlyReport(f.ctx, year)
	require.NoError(t, err)
	assert.Len(t, report.Lines, 12)

	_, err = f.reports.MonthlyReport(f.ctx, 1999)
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.reports.ExportContributions(f.ctx, year, &buf))
	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(contributionsSheet)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "Period", rows[0][0])

	var inYear int
	for _, p := range utils.PeriodsFrom(u.JoinedAt, 4) {
		if strings.HasPrefix(p, fmt.Sprintf("%d-", year)) {
			inYear++
		}
	}
	assert.Len(t, rows, inYear+1)

	summary, err := book.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Len(t, summary, 14)
}
