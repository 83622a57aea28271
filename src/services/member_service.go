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
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/utils"
)

type memberServiceImpl struct {
	db          *sql.DB
	reportCache *cache.Cache
	notifier    Notifier
}

func NewMemberService(db *sql.DB, reportCache *cache.Cache, notifier Notifier) MemberService {
	return &memberServiceImpl{db: db, reportCache: reportCache, notifier: notifier}
}

func (s *memberServiceImpl) CreateMember(ctx context.Context, input CreateMemberInput) (*model.User, error) {
	user, err := buildMember(input)
	if err != nil {
		return nil, err
	}
	if err := ensureUnique(s.db, user); err != nil {
		return nil, err
	}
	if err := user.HashPassword(input.Password); err != nil {
		return nil, fmt.Errorf("%w: hashing password: %v", ErrProcessingFailed, err)
	}
	if err := user.CreateUser(s.db); err != nil {
		return nil, fmt.Errorf("error creating member: %w", err)
	}
	invalidateReports(s.reportCache, user.ID)
	logger.FromContext(ctx).Info("Member created", "userID", user.ID, "staffNumber", user.StaffNumber, "role", user.Role)
	return user, nil
}

func buildMember(input CreateMemberInput) (*model.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	staff := validation.NormalizeStaffNumber(input.StaffNumber)
	phone := strings.TrimSpace(input.Phone)

	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if err := validation.ValidateStaffNumber(staff); err != nil {
		return nil, err
	}
	if err := validation.ValidatePhone(phone); err != nil {
		return nil, err
	}
	fullName := validation.NormalizeName(input.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", validation.ErrValidationFailed)
	}

	role := strings.ToLower(strings.TrimSpace(input.Role))
	switch role {
	case "":
		role = model.RoleMember
	case model.RoleMember, model.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role '%s'", validation.ErrValidationFailed, input.Role)
	}

	joinedAt := time.Now().UTC()
	if input.JoinedAt != "" {
		t, err := utils.ParseDate(input.JoinedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: joined_at must be YYYY-MM-DD", validation.ErrValidationFailed)
		}
		if t.After(joinedAt) {
			return nil, fmt.Errorf("%w: joined_at is in the future", validation.ErrValidationFailed)
		}
		joinedAt = t
	}

	return &model.User{
		Username:    username,
		Email:       email,
		FullName:    fullName,
		StaffNumber: staff,
		Department:  validation.CleanText(input.Department),
		Phone:       phone,
		Role:        role,
		Status:      model.StatusActive,
		JoinedAt:    joinedAt,
		// Accounts enrolled by an admin use the address on the staff record.
		IsEmailVerified: true,
	}, nil
}

// ensureUnique rejects usernames, emails and staff numbers that are already taken.
func ensureUnique(db *sql.DB, user *model.User) error {
	checks := []struct {
		field  string
		lookup func() (*model.User, error)
	}{
		{"username", func() (*model.User, error) { return model.GetUserByUsername(db, user.Username) }},
		{"email", func() (*model.User, error) { return model.GetUserByEmail(db, user.Email) }},
		{"staff number", func() (*model.User, error) { return model.GetUserByStaffNumber(db, user.StaffNumber) }},
	}
	for _, c := range checks {
		existing, err := c.lookup()
		if err != nil && !errors.Is(err, model.ErrUserNotFound) {
			return fmt.Errorf("error checking %s: %w", c.field, err)
		}
		if existing != nil {
			return fmt.Errorf("%w: %s is already registered", ErrAlreadyExists, c.field)
		}
	}
	return nil
}

func (s *memberServiceImpl) GetMember(ctx context.Context, id int64) (*model.User, error) {
	return getMember(s.db, id)
}

func getMember(db *sql.DB, id int64) (*model.User, error) {
	user, err := model.GetUserByID(db, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching member %d: %w", id, err)
	}
	return user, nil
}

func (s *memberServiceImpl) ListMembers(ctx context.Context, filter model.UserFilter) ([]model.User, error) {
	users, err := model.ListUsers(s.db, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing members: %w", err)
	}
	return users, nil
}

// UpdateStatus suspends, reactivates or exits a member. Exit is final and admins cannot change their own status.
func (s *memberServiceImpl) UpdateStatus(ctx context.Context, adminID, memberID int64, status string) (*model.User, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case model.StatusActive, model.StatusSuspended, model.StatusExited:
	default:
		return nil, fmt.Errorf("%w: unknown status '%s'", validation.ErrValidationFailed, status)
	}
	if adminID == memberID {
		return nil, fmt.Errorf("%w: cannot change your own status", ErrForbidden)
	}

	user, err := getMember(s.db, memberID)
	if err != nil {
		return nil, err
	}
	if user.Status == status {
		return user, nil
	}
	if user.Status == model.StatusExited {
		return nil, fmt.Errorf("%w: member has exited the fund", ErrInvalidState)
	}

	if err := model.UpdateUserStatus(s.db, memberID, status); err != nil {
		return nil, fmt.Errorf("error updating member status: %w", err)
	}
	if status != model.StatusActive {
		if err := model.DeleteSessionsForUser(s.db, memberID); err != nil {
			logger.FromContext(ctx).Warn("Failed to drop sessions of deactivated member", "userID", memberID, "error", err)
		}
	}
	invalidateReports(s.reportCache, memberID)
	logger.FromContext(ctx).Info("Member status changed", "userID", memberID, "from", user.Status, "to", status, "adminID", adminID)

	user.Status = status
	notify(ctx, s.notifier, user, "Membership status updated",
		fmt.Sprintf("Your welfare fund membership is now %s.", status))
	return user, nil
}

func (s *memberServiceImpl) UpdateProfile(ctx context.Context, memberID int64, input ProfileInput) (*model.User, error) {
	user, err := getMember(s.db, memberID)
	if err != nil {
		return nil, err
	}

	fullName := user.FullName
	if strings.TrimSpace(input.FullName) != "" {
		fullName = validation.NormalizeName(input.FullName)
	}
	phone := strings.TrimSpace(input.Phone)
	if err := validation.ValidatePhone(phone); err != nil {
		return nil, err
	}
	department := validation.CleanText(input.Department)

	if err := model.UpdateUserProfile(s.db, memberID, fullName, phone, department); err != nil {
		return nil, fmt.Errorf("error updating profile: %w", err)
	}
	user.FullName, user.Phone, user.Department = fullName, phone, department
	invalidateReports(s.reportCache, memberID)
	return user, nil
}

// notify delivers a message without failing the calling operation.
func notify(ctx context.Context, n Notifier, user *model.User, subject, body string) {
	if n == nil || user == nil {
		return
	}
	if err := n.Notify(ctx, user, subject, body); err != nil {
		logger.FromContext(ctx).Warn("Failed to notify member", "userID", user.ID, "subject", subject, "error", err)
	}
}
