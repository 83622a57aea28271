package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/username/welfarefund/src/database"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/processors"
	"github.com/username/welfarefund/src/security"
	"github.com/username/welfarefund/src/services"
	"github.com/username/welfarefund/src/utils"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

var testCSRFKey = []byte("test-csrf-key-that-is-32-bytes-long!!")

// server is the full API over a fresh database.
type server struct {
	t       *testing.T
	handler http.Handler
	members services.MemberService
	email   *services.MockEmailService
	admin   *model.User
}

func newServer(t *testing.T) *server {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "welfare.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	monthlyDue := decimal.NewFromInt(50)
	reportCache := services.NewReportCache(time.Minute)
	email := &services.MockEmailService{}
	authService := security.NewAuthService("test-jwt-secret-that-is-at-least-32-bytes", time.Hour)
	notifications := services.NewNotificationService(db, email, monthlyDue.StringFixed(2))
	contributionProcessor := processors.NewContributionProcessor(monthlyDue)
	balanceProcessor := processors.NewBalanceProcessor(processors.DefaultWithdrawalRatio)

	members := services.NewMemberService(db, reportCache, notifications)
	accounts := services.NewAccountService(db, authService, email, reportCache, services.AccountSettings{})
	contributions := services.NewContributionService(db, contributionProcessor, processors.NewPayrollProcessor(),
		monthlyDue, reportCache, notifications)
	users := NewUserHandler(db, authService, accounts, members)

	s := &server{
		t:       t,
		members: members,
		email:   email,
		handler: NewRouter(Handlers{
			Users:         users,
			Members:       NewMemberHandler(members),
			Contributions: NewContributionHandler(contributions),
			Uploads:       NewUploadHandler(contributions, 1<<20),
			Withdrawals:   NewWithdrawalHandler(services.NewWithdrawalService(db, balanceProcessor, reportCache, notifications)),
			Welfare:       NewWelfareHandler(services.NewWelfareService(db, processors.NewEligibilityProcessor(), reportCache, notifications)),
			Notifications: NewNotificationHandler(notifications),
			Reports: NewReportHandler(services.NewReportService(db, processors.NewReportProcessor(), balanceProcessor,
				contributionProcessor, reportCache)),
			CSRF: NewCSRF(testCSRFKey, false),
		}),
	}
	s.admin = s.createUser("admin", "", model.RoleAdmin, 24)
	return s
}

// createUser enrols a verified account that joined monthsAgo months back.
func (s *server) createUser(username, staff, role string, monthsAgo int) *model.User {
	s.t.Helper()
	now := time.Now().UTC()
	joined := time.Date(now.Year(), now.Month()-time.Month(monthsAgo), 1, 0, 0, 0, 0, time.UTC)
	u, err := s.members.CreateMember(context.Background(), services.CreateMemberInput{
		Username:    username,
		Email:       username + "@example.org",
		Password:    "Password123",
		FullName:    username + " tester",
		StaffNumber: staff,
		Role:        role,
		JoinedAt:    joined.Format(utils.DefaultDateFormat),
	})
	require.NoError(s.t, err)
	return u
}

// client carries a CSRF pair and, once logged in, a bearer token.
type client struct {
	s     *server
	csrf  string
	token string
}

func (s *server) client() *client {
	s.t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/csrf", nil))
	require.Equal(s.t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(s.t, body["csrfToken"])
	return &client{s: s, csrf: body["csrfToken"]}
}

func (s *server) login(username string) *client {
	s.t.Helper()
	c := s.client()
	rec := c.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": "Password123"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var result services.AuthResult
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &result))
	c.token = result.AccessToken
	return c
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.csrf != "" {
		req.Header.Set(csrfHeaderName, c.csrf)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: c.csrf})
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.s.handler.ServeHTTP(rec, req)
	return rec
}

// get issues a conditional GET with If-None-Match set to etag.
func (c *client) get(path, etag string) *httptest.ResponseRecorder {
	c.s.t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("If-None-Match", etag)
	req.Header.Set("Authorization", "Bearer "+c.token)
	rec := httptest.NewRecorder()
	c.s.handler.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals the response into v and returns it.
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func period(monthsAgo int) string {
	now := time.Now().UTC()
	return utils.Period(time.Date(now.Year(), now.Month()-time.Month(monthsAgo), 1, 0, 0, 0, 0, time.UTC))
}
