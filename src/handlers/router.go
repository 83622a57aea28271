package handlers

import (
	"net/http"
	"strings"

	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/utils"
)

// Handlers groups everything the router mounts. OAuth is nil when Google login is off.
type Handlers struct {
	Users         *UserHandler
	OAuth         *OAuthHandler
	Members       *MemberHandler
	Contributions *ContributionHandler
	Uploads       *UploadHandler
	Withdrawals   *WithdrawalHandler
	Welfare       *WelfareHandler
	Notifications *NotificationHandler
	Reports       *ReportHandler
	CSRF          *CSRF
}

// NewRouter builds the API mux. Every state-changing route passes the CSRF check;
// the admin routes additionally require the admin role.
func NewRouter(h Handlers) http.Handler {
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	csrf := h.CSRF.Middleware
	public := func(handler http.HandlerFunc) http.Handler {
		return csrf(handler)
	}
	authed := func(handler http.HandlerFunc) http.Handler {
		return csrf(h.Users.AuthMiddleware(handler))
	}
	admin := func(handler http.HandlerFunc) http.Handler {
		return csrf(h.Users.AuthMiddleware(AdminMiddleware(handler)))
	}

	// Auth
	apiRouter.HandleFunc("GET /api/auth/csrf", h.CSRF.GetCSRFToken)
	apiRouter.HandleFunc("GET /api/auth/verify-email", h.Users.VerifyEmailHandler)
	apiRouter.Handle("POST /api/auth/login", public(h.Users.LoginUserHandler))
	apiRouter.Handle("POST /api/auth/register", public(h.Users.RegisterUserHandler))
	apiRouter.Handle("POST /api/auth/refresh", public(h.Users.RefreshTokenHandler))
	apiRouter.Handle("POST /api/auth/logout", authed(h.Users.LogoutUserHandler))
	apiRouter.Handle("POST /api/auth/request-password-reset", public(h.Users.RequestPasswordResetHandler))
	apiRouter.Handle("POST /api/auth/reset-password", public(h.Users.ResetPasswordHandler))
	if h.OAuth != nil {
		apiRouter.HandleFunc("GET /api/auth/google/login", h.OAuth.HandleGoogleLogin)
		apiRouter.HandleFunc("GET /api/auth/google/callback", h.OAuth.HandleGoogleCallback)
	}

	// Member self-service
	apiRouter.Handle("GET /api/me", authed(h.Users.HandleGetMe))
	apiRouter.Handle("PUT /api/me", authed(h.Users.HandleUpdateMe))
	apiRouter.Handle("GET /api/dashboard", authed(h.Reports.HandleMemberDashboard))
	apiRouter.Handle("GET /api/statement", authed(h.Reports.HandleMyStatement))

	apiRouter.Handle("GET /api/contributions", authed(h.Contributions.HandleListMine))
	apiRouter.Handle("GET /api/contributions/summary", authed(h.Contributions.HandleSummary))
	apiRouter.Handle("POST /api/contributions", authed(h.Contributions.HandleSubmit))

	apiRouter.Handle("GET /api/balance", authed(h.Withdrawals.HandleBalance))
	apiRouter.Handle("GET /api/withdrawals", authed(h.Withdrawals.HandleListMine))
	apiRouter.Handle("POST /api/withdrawals", authed(h.Withdrawals.HandleRequest))
	apiRouter.Handle("POST /api/withdrawals/{id}/cancel", authed(h.Withdrawals.HandleCancel))

	apiRouter.Handle("GET /api/welfare/services", authed(h.Welfare.HandleListServices))
	apiRouter.Handle("GET /api/welfare/services/{id}/eligibility", authed(h.Welfare.HandleEligibility))
	apiRouter.Handle("GET /api/welfare/applications", authed(h.Welfare.HandleListMine))
	apiRouter.Handle("POST /api/welfare/applications", authed(h.Welfare.HandleApply))
	apiRouter.Handle("POST /api/welfare/applications/{id}/withdraw", authed(h.Welfare.HandleWithdraw))

	apiRouter.Handle("GET /api/notifications", authed(h.Notifications.HandleList))
	apiRouter.Handle("POST /api/notifications/{id}/read", authed(h.Notifications.HandleMarkRead))
	apiRouter.Handle("POST /api/notifications/read-all", authed(h.Notifications.HandleMarkAllRead))

	// Administration
	apiRouter.Handle("GET /api/admin/members", admin(h.Members.HandleList))
	apiRouter.Handle("POST /api/admin/members", admin(h.Members.HandleCreate))
	apiRouter.Handle("GET /api/admin/members/{id}", admin(h.Members.HandleGet))
	apiRouter.Handle("PUT /api/admin/members/{id}/status", admin(h.Members.HandleUpdateStatus))
	apiRouter.Handle("GET /api/admin/members/{id}/statement", admin(h.Reports.HandleMemberStatement))

	apiRouter.Handle("GET /api/admin/contributions", admin(h.Contributions.HandleListAll))
	apiRouter.Handle("POST /api/admin/contributions", admin(h.Contributions.HandleRecord))
	apiRouter.Handle("POST /api/admin/contributions/import", admin(h.Uploads.HandleImport))
	apiRouter.Handle("POST /api/admin/contributions/{id}/confirm", admin(h.Contributions.HandleConfirm))
	apiRouter.Handle("POST /api/admin/contributions/{id}/reject", admin(h.Contributions.HandleReject))

	apiRouter.Handle("GET /api/admin/withdrawals", admin(h.Withdrawals.HandleListAll))
	apiRouter.Handle("POST /api/admin/withdrawals/{id}/approve", admin(h.Withdrawals.HandleApprove))
	apiRouter.Handle("POST /api/admin/withdrawals/{id}/reject", admin(h.Withdrawals.HandleReject))
	apiRouter.Handle("POST /api/admin/withdrawals/{id}/complete", admin(h.Withdrawals.HandleComplete))

	apiRouter.Handle("POST /api/admin/welfare/services", admin(h.Welfare.HandleCreateService))
	apiRouter.Handle("PUT /api/admin/welfare/services/{id}", admin(h.Welfare.HandleUpdateService))
	apiRouter.Handle("GET /api/admin/welfare/applications", admin(h.Welfare.HandleListAll))
	apiRouter.Handle("POST /api/admin/welfare/applications/{id}/review", admin(h.Welfare.HandleReview))
	apiRouter.Handle("POST /api/admin/welfare/applications/{id}/disburse", admin(h.Welfare.HandleDisburse))

	apiRouter.Handle("POST /api/admin/reminders", admin(h.Notifications.HandleSendReminders))

	apiRouter.Handle("GET /api/admin/dashboard", admin(h.Reports.HandleAdminDashboard))
	apiRouter.Handle("GET /api/admin/reports/monthly", admin(h.Reports.HandleMonthlyReport))
	apiRouter.Handle("GET /api/admin/reports/export", admin(h.Reports.HandleExport))

	rootMux.Handle("/api/", apiRouter)
	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Welfare fund backend is running"})
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
		}
		http.NotFound(w, r)
	})

	return RequestIDMiddleware(rootMux)
}
