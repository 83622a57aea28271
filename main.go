package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/username/welfarefund/src/config"
	"github.com/username/welfarefund/src/handlers"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/processors"
	"github.com/username/welfarefund/src/security"
	"github.com/username/welfarefund/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(allowed []string, next http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		allowedOrigins[origin] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Requested-With, X-Request-ID, Cookie, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "X-CSRF-Token, ETag, X-Request-ID, Content-Disposition")
		}

		if r.Method == http.MethodOptions {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// app holds the wired services shared by the server and the maintenance commands.
type app struct {
	db            *sql.DB
	authService   *security.AuthService
	emailService  services.EmailService
	notifications services.NotificationService
	members       services.MemberService
	accounts      services.AccountService
	contributions services.ContributionService
	withdrawals   services.WithdrawalService
	welfare       services.WelfareService
	reports       services.ReportService
}

func newApp(cfg *config.AppConfig, db *sql.DB) *app {
	logger.L.Info("Initializing report cache...", "ttl", cfg.ReportCacheTTL.String())
	reportCache := services.NewReportCache(cfg.ReportCacheTTL)

	logger.L.Info("Initializing services...")
	authService := security.NewAuthService(cfg.JWTSecret, cfg.AccessTokenExpiry)
	emailService := services.NewEmailService(cfg)
	notifications := services.NewNotificationService(db, emailService, cfg.MonthlyDueAmount.StringFixed(2))

	contributionProcessor := processors.NewContributionProcessor(cfg.MonthlyDueAmount)
	balanceProcessor := processors.NewBalanceProcessor(cfg.WithdrawalRatio)

	return &app{
		db:            db,
		authService:   authService,
		emailService:  emailService,
		notifications: notifications,
		members:       services.NewMemberService(db, reportCache, notifications),
		accounts: services.NewAccountService(db, authService, emailService, reportCache, services.AccountSettings{
			RefreshTokenExpiry:      cfg.RefreshTokenExpiry,
			VerificationTokenExpiry: cfg.VerificationTokenExpiry,
			PasswordResetExpiry:     cfg.PasswordResetTokenExpiry,
		}),
		contributions: services.NewContributionService(db, contributionProcessor, processors.NewPayrollProcessor(),
			cfg.MonthlyDueAmount, reportCache, notifications),
		withdrawals: services.NewWithdrawalService(db, balanceProcessor, reportCache, notifications),
		welfare:     services.NewWelfareService(db, processors.NewEligibilityProcessor(), reportCache, notifications),
		reports: services.NewReportService(db, processors.NewReportProcessor(), balanceProcessor,
			contributionProcessor, reportCache),
	}
}

func (a *app) router(cfg *config.AppConfig) http.Handler {
	userHandler := handlers.NewUserHandler(a.db, a.authService, a.accounts, a.members)
	oauthHandler := handlers.NewOAuthHandler(cfg, userHandler)
	if oauthHandler == nil {
		logger.L.Info("Google login disabled; GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}

	return handlers.NewRouter(handlers.Handlers{
		Users:         userHandler,
		OAuth:         oauthHandler,
		Members:       handlers.NewMemberHandler(a.members),
		Contributions: handlers.NewContributionHandler(a.contributions),
		Uploads:       handlers.NewUploadHandler(a.contributions, cfg.MaxUploadSizeBytes),
		Withdrawals:   handlers.NewWithdrawalHandler(a.withdrawals),
		Welfare:       handlers.NewWelfareHandler(a.welfare),
		Notifications: handlers.NewNotificationHandler(a.notifications),
		Reports:       handlers.NewReportHandler(a.reports),
		CSRF:          handlers.NewCSRF(cfg.CSRFAuthKey, strings.HasPrefix(cfg.FrontendBaseURL, "https://")),
	})
}

// seedCatalogIfEmpty loads the bundled catalog on first start.
func (a *app) seedCatalogIfEmpty(ctx context.Context, path string) {
	existing, err := a.welfare.ListServices(ctx, false)
	if err != nil {
		logger.L.Error("Failed to check welfare catalog", "error", err)
		return
	}
	if len(existing) > 0 {
		return
	}
	seeds, err := config.LoadWelfareCatalog(path)
	if err != nil {
		logger.L.Warn("Welfare catalog not seeded", "path", path, "error", err)
		return
	}
	n, err := a.welfare.SeedCatalog(ctx, seeds)
	if err != nil {
		logger.L.Error("Failed to seed welfare catalog", "error", err)
		return
	}
	logger.L.Info("Welfare catalog seeded", "services", n, "path", path)
}

func serve(cfg *config.AppConfig) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, db)
	a.seedCatalogIfEmpty(ctx, cfg.WelfareCatalogPath)

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(cfg.AllowedOrigins, rateLimitMiddleware(a.router(cfg)))

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("Server starting", "address", serverAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("Failed to start server", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.L.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	logger.L.Info("Server stopped gracefully.")
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
