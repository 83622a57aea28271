package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/utils"
)

type notificationServiceImpl struct {
	db           *sql.DB
	emailService EmailService
	monthlyDue   string
	now          func() time.Time
}

func NewNotificationService(db *sql.DB, emailService EmailService, monthlyDue string) NotificationService {
	return &notificationServiceImpl{db: db, emailService: emailService, monthlyDue: monthlyDue, now: time.Now}
}

// Notify always stores an in-app notification. Email goes out when the member has a
// verified address; SMS is simulated when a phone number is set. Delivery failures on
// the outer channels are logged and do not fail the call.
func (s *notificationServiceImpl) Notify(ctx context.Context, user *model.User, subject, body string) error {
	if user == nil {
		return fmt.Errorf("%w: no recipient", ErrNotFound)
	}
	log := logger.FromContext(ctx)
	now := s.now().UTC()

	inApp := &models.Notification{UserID: user.ID, Channel: models.ChannelInApp, Subject: subject, Body: body, CreatedAt: now}
	if err := insertNotification(ctx, s.db, inApp); err != nil {
		return err
	}

	if user.Email != "" && user.IsEmailVerified && s.emailService != nil {
		if err := s.emailService.SendNotificationEmail(user.Email, user.FullName, subject, body); err != nil {
			log.Warn("Failed to send notification email", "userID", user.ID, "error", err)
		} else {
			s.logDelivery(ctx, user.ID, models.ChannelEmail, subject, body, now)
		}
	}

	if user.Phone != "" {
		log.Info("Simulated SMS sent", "userID", user.ID, "phone", user.Phone, "subject", subject)
		s.logDelivery(ctx, user.ID, models.ChannelSMS, subject, body, now)
	}
	return nil
}

func (s *notificationServiceImpl) logDelivery(ctx context.Context, userID int64, channel, subject, body string, at time.Time) {
	n := &models.Notification{UserID: userID, Channel: channel, Subject: subject, Body: body, Read: true, CreatedAt: at}
	if err := insertNotification(ctx, s.db, n); err != nil {
		logger.FromContext(ctx).Warn("Failed to record delivery", "userID", userID, "channel", channel, "error", err)
	}
}

func (s *notificationServiceImpl) List(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error) {
	return listNotifications(ctx, s.db, userID, unreadOnly)
}

func (s *notificationServiceImpl) MarkRead(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ? AND channel = ?`,
		id, userID, models.ChannelInApp)
	if err != nil {
		return fmt.Errorf("error marking notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *notificationServiceImpl) MarkAllRead(ctx context.Context, userID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND channel = ? AND is_read = FALSE`,
		userID, models.ChannelInApp)
	if err != nil {
		return 0, fmt.Errorf("error marking notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SendArrearsReminders notifies every active member who joined on or before period
// and has no pending or confirmed contribution for it. It returns the number reminded.
func (s *notificationServiceImpl) SendArrearsReminders(ctx context.Context, period string) (int, error) {
	if err := validation.ValidatePeriod(period, s.now()); err != nil {
		return 0, err
	}
	members, err := model.ListUsers(s.db, model.UserFilter{Role: model.RoleMember, Status: model.StatusActive})
	if err != nil {
		return 0, fmt.Errorf("error listing members: %w", err)
	}

	sent := 0
	for i := range members {
		member := &members[i]
		if utils.Period(member.JoinedAt) > period {
			continue
		}
		paid, err := hasContributionForPeriod(ctx, s.db, member.ID, period)
		if err != nil {
			return sent, err
		}
		if paid {
			continue
		}
		body := fmt.Sprintf("We have no contribution from you for %s. The monthly due is %s.", period, s.monthlyDue)
		if err := s.Notify(ctx, member, "Contribution reminder for "+period, body); err != nil {
			return sent, err
		}
		sent++
	}
	logger.FromContext(ctx).Info("Arrears reminders sent", "period", period, "members", len(members), "reminded", sent)
	return sent, nil
}
