package handlers

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/security"
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/services"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: bad", validation.ErrValidationFailed): http.StatusBadRequest,
		services.ErrInvalidAmount:                             http.StatusBadRequest,
		services.ErrInvalidCredentials:                        http.StatusUnauthorized,
		security.ErrInvalidToken:                              http.StatusUnauthorized,
		services.ErrMemberInactive:                            http.StatusForbidden,
		services.ErrEmailNotVerified:                          http.StatusForbidden,
		fmt.Errorf("wrapped: %w", services.ErrNotFound):       http.StatusNotFound,
		services.ErrDuplicatePeriod:                           http.StatusConflict,
		services.ErrInvalidState:                              http.StatusConflict,
		services.ErrInsufficientBalance:                       http.StatusUnprocessableEntity,
		services.ErrNotEligible:                               http.StatusUnprocessableEntity,
		errors.New("disk on fire"):                            http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}

	dbErr := fmt.Errorf("error checking contribution hash: %w", sql.ErrConnDone)
	assert.Equal(t, http.StatusInternalServerError, statusFor(dbErr), "storage failures are server errors")
}

func TestCSRFMiddleware(t *testing.T) {
	s := newServer(t)

	// No token at all.
	anon := &client{s: s}
	rec := anon.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "Password123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A token this server did not sign is refused even when cookie and header agree.
	forged := &client{s: s, csrf: "nonce.c2lnbmF0dXJl"}
	rec = forged.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "Password123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Reads pass without a token.
	rec = anon.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.client().do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "Password123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthGuards(t *testing.T) {
	s := newServer(t)
	s.createUser("alice", "STAFF-0001", model.RoleMember, 6)

	assert.Equal(t, http.StatusUnauthorized, s.client().do(http.MethodGet, "/api/me", nil).Code)

	garbage := s.client()
	garbage.token = "not-a-jwt"
	assert.Equal(t, http.StatusUnauthorized, garbage.do(http.MethodGet, "/api/me", nil).Code)

	bad := s.client().do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	alice := s.login("alice")
	me := alice.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "alice", decode[model.User](t, me).Username)

	assert.Equal(t, http.StatusForbidden, alice.do(http.MethodGet, "/api/admin/dashboard", nil).Code)
	assert.Equal(t, http.StatusForbidden, alice.do(http.MethodGet, "/api/admin/members", nil).Code)

	admin := s.login("admin")
	assert.Equal(t, http.StatusOK, admin.do(http.MethodGet, "/api/admin/dashboard", nil).Code)

	assert.Equal(t, http.StatusNoContent, alice.do(http.MethodPost, "/api/auth/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, alice.do(http.MethodGet, "/api/me", nil).Code)
}

func TestMemberAdministration(t *testing.T) {
	s := newServer(t)
	admin := s.login("admin")

	rec := admin.do(http.MethodPost, "/api/admin/members", map[string]string{
		"username": "bob", "email": "bob@example.org", "password": "Password123",
		"full_name": "bob builder", "staff_number": "STAFF-0002",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bob := decode[model.User](t, rec)
	assert.Equal(t, "Bob Builder", bob.FullName)
	assert.Equal(t, "/api/admin/members/"+strconv.FormatInt(bob.ID, 10), rec.Header().Get("Location"))

	dup := admin.do(http.MethodPost, "/api/admin/members", map[string]string{
		"username": "bob2", "email": "bob@example.org", "password": "Password123",
		"full_name": "Other Bob",
	})
	assert.Equal(t, http.StatusConflict, dup.Code)

	list := admin.do(http.MethodGet, "/api/admin/members?search=builder", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]model.User](t, list), 1)

	assert.Equal(t, http.StatusNotFound, admin.do(http.MethodGet, "/api/admin/members/9999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, admin.do(http.MethodGet, "/api/admin/members/abc", nil).Code)

	bobClient := s.login("bob")
	rec = admin.do(http.MethodPut, fmt.Sprintf("/api/admin/members/%d/status", bob.ID), map[string]string{"status": "exited"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusExited, decode[model.User](t, rec).Status)

	// Exit drops live sessions and blocks new logins.
	assert.Equal(t, http.StatusUnauthorized, bobClient.do(http.MethodGet, "/api/me", nil).Code)
	relogin := s.client().do(http.MethodPost, "/api/auth/login", map[string]string{"username": "bob", "password": "Password123"})
	assert.Equal(t, http.StatusForbidden, relogin.Code)

	self := admin.do(http.MethodPut, fmt.Sprintf("/api/admin/members/%d/status", s.admin.ID), map[string]string{"status": "suspended"})
	assert.Equal(t, http.StatusForbidden, self.Code)
}

func TestContributionAndWithdrawalFlow(t *testing.T) {
	s := newServer(t)
	member := s.createUser("carol", "STAFF-0003", model.RoleMember, 12)
	admin := s.login("admin")
	carol := s.login("carol")

	for i := 12; i > 8; i-- {
		rec := admin.do(http.MethodPost, "/api/admin/contributions", map[string]interface{}{
			"user_id": member.ID, "period": period(i), "amount": "50", "method": "cash",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	dup := admin.do(http.MethodPost, "/api/admin/contributions", map[string]interface{}{
		"user_id": member.ID, "period": period(12), "amount": "50", "method": "cash",
	})
	assert.Equal(t, http.StatusConflict, dup.Code)

	payroll := carol.do(http.MethodPost, "/api/contributions", map[string]interface{}{
		"period": period(8), "amount": "50", "method": "payroll",
	})
	assert.Equal(t, http.StatusBadRequest, payroll.Code)

	submitted := carol.do(http.MethodPost, "/api/contributions", map[string]interface{}{
		"period": period(8), "amount": "50", "method": "mobile_money", "reference": "MM-1",
	})
	require.Equal(t, http.StatusCreated, submitted.Code, submitted.Body.String())
	pending := decode[models.Contribution](t, submitted)
	assert.Equal(t, models.ContributionPending, pending.Status)

	reject := admin.do(http.MethodPost, fmt.Sprintf("/api/admin/contributions/%d/reject", pending.ID), map[string]string{"note": "no such transfer"})
	require.Equal(t, http.StatusOK, reject.Code)
	assert.Equal(t, models.ContributionRejected, decode[models.Contribution](t, reject).Status)

	summary := carol.do(http.MethodGet, "/api/contributions/summary", nil)
	require.Equal(t, http.StatusOK, summary.Code)
	assert.Equal(t, 4, decode[models.ContributionSummary](t, summary).ConfirmedCount)
	etag := summary.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, http.StatusNotModified, carol.get("/api/contributions/summary", etag).Code)

	balance := carol.do(http.MethodGet, "/api/balance", nil)
	require.Equal(t, http.StatusOK, balance.Code)
	assert.True(t, decimal.NewFromInt(100).Equal(decode[models.BalanceSummary](t, balance).AvailableBalance))

	rec := carol.do(http.MethodPost, "/api/withdrawals", map[string]string{"amount": "60", "reason": "school fees"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wd := decode[models.Withdrawal](t, rec)

	tooMuch := carol.do(http.MethodPost, "/api/withdrawals", map[string]string{"amount": "50", "reason": "more fees"})
	assert.Equal(t, http.StatusUnprocessableEntity, tooMuch.Code)

	rec = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%d/approve", wd.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.WithdrawalApproved, decode[models.Withdrawal](t, rec).Status)

	rec = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/withdrawals/%d/complete", wd.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.WithdrawalCompleted, decode[models.Withdrawal](t, rec).Status)

	assert.Equal(t, http.StatusConflict, carol.do(http.MethodPost, fmt.Sprintf("/api/withdrawals/%d/cancel", wd.ID), nil).Code)

	mine := carol.do(http.MethodGet, "/api/withdrawals", nil)
	require.Equal(t, http.StatusOK, mine.Code)
	assert.Len(t, decode[[]models.Withdrawal](t, mine), 1)

	all := admin.do(http.MethodGet, "/api/admin/contributions?status=confirmed", nil)
	require.Equal(t, http.StatusOK, all.Code)
	assert.Len(t, decode[[]models.Contribution](t, all), 4)
}

func TestWelfareFlow(t *testing.T) {
	s := newServer(t)
	s.createUser("dave", "STAFF-0004", model.RoleMember, 12)
	admin := s.login("admin")
	dave := s.login("dave")

	rec := admin.do(http.MethodPost, "/api/admin/welfare/services", map[string]interface{}{
		"code": "med", "name": "Medical support", "max_amount": "500",
		"min_membership_months": 6, "min_consistency_percent": 0,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	svc := decode[models.WelfareService](t, rec)
	assert.Equal(t, "MED", svc.Code)
	assert.True(t, svc.Active)

	dup := admin.do(http.MethodPost, "/api/admin/welfare/services", map[string]interface{}{
		"code": "MED", "name": "Again", "max_amount": "10",
	})
	assert.Equal(t, http.StatusConflict, dup.Code)

	assert.Equal(t, http.StatusForbidden, dave.do(http.MethodPost, "/api/admin/welfare/services", map[string]interface{}{
		"code": "X", "name": "X", "max_amount": "1",
	}).Code)

	list := dave.do(http.MethodGet, "/api/welfare/services", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decode[[]models.WelfareService](t, list), 1)

	elig := dave.do(http.MethodGet, fmt.Sprintf("/api/welfare/services/%d/eligibility", svc.ID), nil)
	require.Equal(t, http.StatusOK, elig.Code)
	assert.True(t, decode[models.EligibilityResult](t, elig).Eligible)

	over := dave.do(http.MethodPost, "/api/welfare/applications", map[string]interface{}{
		"service_id": svc.ID, "amount": "900", "description": "surgery",
	})
	assert.Equal(t, http.StatusBadRequest, over.Code)

	rec = dave.do(http.MethodPost, "/api/welfare/applications", map[string]interface{}{
		"service_id": svc.ID, "amount": "300", "description": "surgery",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	app := decode[models.WelfareApplication](t, rec)

	again := dave.do(http.MethodPost, "/api/welfare/applications", map[string]interface{}{
		"service_id": svc.ID, "amount": "100", "description": "follow-up",
	})
	assert.Equal(t, http.StatusConflict, again.Code)

	rec = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/welfare/applications/%d/review", app.ID), map[string]interface{}{
		"approve": true, "amount": "250", "note": "partial",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reviewed := decode[models.WelfareApplication](t, rec)
	assert.Equal(t, models.ApplicationApproved, reviewed.Status)
	require.True(t, reviewed.AmountApproved.Valid)
	assert.True(t, decimal.NewFromInt(250).Equal(reviewed.AmountApproved.Decimal))

	rec = admin.do(http.MethodPost, fmt.Sprintf("/api/admin/welfare/applications/%d/disburse", app.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ApplicationDisbursed, decode[models.WelfareApplication](t, rec).Status)

	update := admin.do(http.MethodPut, fmt.Sprintf("/api/admin/welfare/services/%d", svc.ID), map[string]interface{}{
		"code": "MED", "name": "Medical support", "max_amount": "500", "active": false,
	})
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())
	assert.Empty(t, decode[[]models.WelfareService](t, dave.do(http.MethodGet, "/api/welfare/services", nil)))
	assert.Len(t, decode[[]models.WelfareService](t, admin.do(http.MethodGet, "/api/welfare/services", nil)), 1)
}

func TestNotificationsAndReports(t *testing.T) {
	s := newServer(t)
	member := s.createUser("erin", "STAFF-0005", model.RoleMember, 3)
	admin := s.login("admin")
	erin := s.login("erin")

	rec := admin.do(http.MethodPost, "/api/admin/contributions", map[string]interface{}{
		"user_id": member.ID, "period": period(3), "amount": "50", "method": "bank",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	unread := erin.do(http.MethodGet, "/api/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, unread.Code)
	notes := decode[[]models.Notification](t, unread)
	require.NotEmpty(t, notes)

	assert.Equal(t, http.StatusNoContent, erin.do(http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", notes[0].ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, erin.do(http.MethodPost, "/api/notifications/9999/read", nil).Code)
	readAll := erin.do(http.MethodPost, "/api/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, readAll.Code)

	reminders := admin.do(http.MethodPost, "/api/admin/reminders", map[string]string{"period": period(1)})
	require.Equal(t, http.StatusOK, reminders.Code, reminders.Body.String())
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, reminders)["reminded"])
	assert.Equal(t, http.StatusBadRequest, admin.do(http.MethodPost, "/api/admin/reminders", map[string]string{"period": "2020-13"}).Code)

	dash := erin.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, dash.Code)
	assert.Equal(t, 3, decode[models.MemberDashboard](t, dash).MonthsAsMember)

	statement := admin.do(http.MethodGet, fmt.Sprintf("/api/admin/members/%d/statement", member.ID), nil)
	assert.Equal(t, http.StatusOK, statement.Code)

	year := time.Now().Year()
	monthly := admin.do(http.MethodGet, fmt.Sprintf("/api/admin/reports/monthly?year=%d", year), nil)
	assert.Equal(t, http.StatusOK, monthly.Code)
	assert.Equal(t, http.StatusBadRequest, admin.do(http.MethodGet, "/api/admin/reports/monthly?year=1999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, admin.do(http.MethodGet, "/api/admin/reports/monthly?year=abc", nil).Code)

	export := admin.do(http.MethodGet, fmt.Sprintf("/api/admin/reports/export?year=%d", year), nil)
	require.Equal(t, http.StatusOK, export.Code)
	assert.Equal(t, xlsxContentType, export.Header().Get("Content-Type"))
	assert.Contains(t, export.Header().Get("Content-Disposition"), fmt.Sprintf("contributions-%d.xlsx", year))
	assert.Equal(t, "PK", export.Body.String()[:2])

	dashboard := admin.do(http.MethodGet, "/api/admin/dashboard", nil)
	require.Equal(t, http.StatusOK, dashboard.Code)
	etag := dashboard.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, http.StatusNotModified, admin.get("/api/admin/dashboard", etag).Code)
}

func TestPayrollImportUpload(t *testing.T) {
	s := newServer(t)
	s.createUser("frank", "STAFF-0006", model.RoleMember, 6)
	admin := s.login("admin")

	upload := func(format, contentType, content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("format", format))
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="payroll.csv"`)
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/admin/contributions/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set(csrfHeaderName, admin.csrf)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: admin.csrf})
		req.Header.Set("Authorization", "Bearer "+admin.token)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	csv := "staff_number,full_name,period,amount,reference\n" +
		"STAFF-0006,Frank," + period(2) + ",50,PAY-1\n" +
		"STAFF-9999,Nobody," + period(2) + ",50,PAY-2\n"
	rec := upload("payroll", "text/csv", csv)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[models.ImportResult](t, rec)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, []string{"STAFF-9999"}, result.Unmatched)

	again := decode[models.ImportResult](t, upload("payroll", "text/csv", csv))
	assert.Equal(t, 0, again.Inserted)
	assert.Equal(t, 1, again.Duplicates)

	assert.Equal(t, http.StatusBadRequest, upload("payroll", "image/png", csv).Code)
	assert.Equal(t, http.StatusBadRequest, upload("payroll", "text/csv", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR").Code)
	assert.Equal(t, http.StatusBadRequest, upload("spreadsheet", "text/csv", csv).Code)
}
