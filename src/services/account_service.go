package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/security"
	"github.com/username/welfarefund/src/security/validation"
)

// AccountSettings are the token lifetimes the account flows need.
type AccountSettings struct {
	RefreshTokenExpiry      time.Duration
	VerificationTokenExpiry time.Duration
	PasswordResetExpiry     time.Duration
}

// SessionMeta identifies the client a session is opened for.
type SessionMeta struct {
	UserAgent string
	ClientIP  string
}

// AuthResult is returned by every flow that opens a session.
type AuthResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         *model.User `json:"user"`
}

// AccountService covers self-service registration and sessions.
type AccountService interface {
	Register(ctx context.Context, input CreateMemberInput) (*model.User, error)
	VerifyEmail(ctx context.Context, token string) (*model.User, error)
	Login(ctx context.Context, username, password string, meta SessionMeta) (*AuthResult, error)
	LoginWithGoogle(ctx context.Context, email, name string, meta SessionMeta) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string, meta SessionMeta) (*AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type accountServiceImpl struct {
	db           *sql.DB
	authService  *security.AuthService
	emailService EmailService
	reportCache  *cache.Cache
	settings     AccountSettings
	now          func() time.Time
}

func NewAccountService(db *sql.DB, authService *security.AuthService, emailService EmailService, reportCache *cache.Cache, settings AccountSettings) AccountService {
	if settings.RefreshTokenExpiry <= 0 {
		settings.RefreshTokenExpiry = 7 * 24 * time.Hour
	}
	if settings.VerificationTokenExpiry <= 0 {
		settings.VerificationTokenExpiry = 24 * time.Hour
	}
	if settings.PasswordResetExpiry <= 0 {
		settings.PasswordResetExpiry = time.Hour
	}
	return &accountServiceImpl{
		db:           db,
		authService:  authService,
		emailService: emailService,
		reportCache:  reportCache,
		settings:     settings,
		now:          time.Now,
	}
}

// Register creates an unverified member account and mails the verification link.
// The role is always member regardless of input.
func (s *accountServiceImpl) Register(ctx context.Context, input CreateMemberInput) (*model.User, error) {
	input.Role = model.RoleMember
	input.JoinedAt = ""
	user, err := buildMember(input)
	if err != nil {
		return nil, err
	}
	if err := ensureUnique(s.db, user); err != nil {
		return nil, err
	}
	hash, err := s.authService.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing password: %v", ErrProcessingFailed, err)
	}
	token, err := security.RandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("%w: generating verification token: %v", ErrProcessingFailed, err)
	}
	user.Password = hash
	user.IsEmailVerified = false
	user.EmailVerificationToken = token
	user.EmailVerificationTokenExpiresAt = s.now().UTC().Add(s.settings.VerificationTokenExpiry)

	if err := user.CreateUser(s.db); err != nil {
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	invalidateReports(s.reportCache, user.ID)
	log := logger.FromContext(ctx)
	log.Info("Member registered", "userID", user.ID, "username", user.Username)
	if err := s.emailService.SendVerificationEmail(user.Email, user.Username, token); err != nil {
		log.Error("Failed to send verification email", "userID", user.ID, "error", err)
	}
	return user, nil
}

func (s *accountServiceImpl) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	user, err := model.GetUserByVerificationToken(s.db, strings.TrimSpace(token))
	if errors.Is(err, model.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: verification link is invalid", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if s.now().After(user.EmailVerificationTokenExpiresAt) {
		return nil, fmt.Errorf("%w: verification link has expired", ErrInvalidState)
	}
	if err := model.MarkEmailVerified(s.db, user.ID); err != nil {
		return nil, fmt.Errorf("error verifying email: %w", err)
	}
	user.IsEmailVerified = true
	user.EmailVerificationToken = ""
	logger.FromContext(ctx).Info("Email verified", "userID", user.ID)
	return user, nil
}

func (s *accountServiceImpl) Login(ctx context.Context, username, password string, meta SessionMeta) (*AuthResult, error) {
	log := logger.FromContext(ctx)
	user, err := model.GetUserByUsername(s.db, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			return nil, err
		}
		log.Info("Login failed: unknown user", "username", username)
		return nil, ErrInvalidCredentials
	}
	if user.Password == "" || s.authService.CompareHashAndPassword(user.Password, password) != nil {
		log.Info("Login failed: bad password", "userID", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}
	return s.openSession(ctx, user, meta)
}

// LoginWithGoogle signs in the account with the provider-verified email, creating a
// member account on first use. Local accounts cannot be taken over this way.
func (s *accountServiceImpl) LoginWithGoogle(ctx context.Context, email, name string, meta SessionMeta) (*AuthResult, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	user, err := model.GetUserByEmail(s.db, email)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		fullName := validation.NormalizeName(name)
		if fullName == "" {
			fullName = email
		}
		user = &model.User{
			Username:        email,
			Email:           email,
			FullName:        fullName,
			AuthProvider:    model.AuthProviderGoogle,
			IsEmailVerified: true,
		}
		if err := user.CreateUser(s.db); err != nil {
			return nil, fmt.Errorf("error creating google account: %w", err)
		}
		invalidateReports(s.reportCache, user.ID)
		logger.FromContext(ctx).Info("Member registered through Google", "userID", user.ID)
	case err != nil:
		return nil, err
	case user.AuthProvider != model.AuthProviderGoogle:
		return nil, fmt.Errorf("%w: email is registered with a password", ErrAlreadyExists)
	}
	return s.openSession(ctx, user, meta)
}

func (s *accountServiceImpl) openSession(ctx context.Context, user *model.User, meta SessionMeta) (*AuthResult, error) {
	if user.Status == model.StatusExited {
		return nil, ErrMemberInactive
	}
	accessToken, err := s.authService.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}
	refreshToken, err := s.authService.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}
	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    meta.UserAgent,
		ClientIP:     meta.ClientIP,
		ExpiresAt:    s.now().Add(s.settings.RefreshTokenExpiry),
	}
	if err := model.CreateSession(s.db, session); err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	logger.FromContext(ctx).Info("Session opened", "userID", user.ID, "role", user.Role)
	return &AuthResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

// Refresh rotates the session: the old one is dropped and a new pair issued.
func (s *accountServiceImpl) Refresh(ctx context.Context, refreshToken string, meta SessionMeta) (*AuthResult, error) {
	session, err := model.GetSessionByRefreshToken(s.db, strings.TrimSpace(refreshToken))
	if errors.Is(err, model.ErrSessionNotFound) {
		return nil, security.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	user, err := getMember(s.db, session.UserID)
	if err != nil {
		return nil, err
	}
	if err := model.DeleteSessionByToken(s.db, session.Token); err != nil {
		return nil, fmt.Errorf("error rotating session: %w", err)
	}
	return s.openSession(ctx, user, meta)
}

func (s *accountServiceImpl) Logout(ctx context.Context, accessToken string) error {
	if err := model.DeleteSessionByToken(s.db, accessToken); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}
	logger.FromContext(ctx).Info("Session closed")
	return nil
}

// RequestPasswordReset mails a reset link when the email belongs to a local account.
// Unknown addresses succeed silently so callers cannot discover which accounts exist.
func (s *accountServiceImpl) RequestPasswordReset(ctx context.Context, email string) error {
	log := logger.FromContext(ctx)
	user, err := model.GetUserByEmail(s.db, strings.TrimSpace(email))
	if errors.Is(err, model.ErrUserNotFound) {
		log.Info("Password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	if user.AuthProvider != model.AuthProviderLocal {
		log.Info("Password reset requested for non-local account", "userID", user.ID)
		return nil
	}
	token, err := security.RandomToken(32)
	if err != nil {
		return fmt.Errorf("%w: generating reset token: %v", ErrProcessingFailed, err)
	}
	if err := model.SetPasswordResetToken(s.db, user.ID, token, s.now().UTC().Add(s.settings.PasswordResetExpiry)); err != nil {
		return fmt.Errorf("error storing reset token: %w", err)
	}
	if err := s.emailService.SendPasswordResetEmail(user.Email, user.Username, token); err != nil {
		log.Error("Failed to send password reset email", "userID", user.ID, "error", err)
		return err
	}
	return nil
}

func (s *accountServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}
	user, err := model.GetUserByPasswordResetToken(s.db, strings.TrimSpace(token))
	if errors.Is(err, model.ErrUserNotFound) {
		return fmt.Errorf("%w: reset link is invalid", ErrNotFound)
	}
	if err != nil {
		return err
	}
	if s.now().After(user.PasswordResetTokenExpiresAt) {
		return fmt.Errorf("%w: reset link has expired", ErrInvalidState)
	}
	hash, err := s.authService.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: hashing password: %v", ErrProcessingFailed, err)
	}
	if err := model.UpdatePassword(s.db, user.ID, hash); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}
	if err := model.DeleteSessionsForUser(s.db, user.ID); err != nil {
		logger.FromContext(ctx).Warn("Failed to drop sessions after password reset", "userID", user.ID, "error", err)
	}
	logger.FromContext(ctx).Info("Password reset", "userID", user.ID)
	return nil
}
