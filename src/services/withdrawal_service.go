package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/processors"
	"github.com/username/welfarefund/src/security/validation"
)

type withdrawalServiceImpl struct {
	db               *sql.DB
	balanceProcessor processors.BalanceProcessor
	reportCache      *cache.Cache
	notifier         Notifier
	now              func() time.Time
}

func NewWithdrawalService(db *sql.DB, balanceProcessor processors.BalanceProcessor, reportCache *cache.Cache, notifier Notifier) WithdrawalService {
	return &withdrawalServiceImpl{
		db:               db,
		balanceProcessor: balanceProcessor,
		reportCache:      reportCache,
		notifier:         notifier,
		now:              time.Now,
	}
}

func newReference(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// balance computes the member's position from q, leaving out the withdrawal with id excludeID.
func (s *withdrawalServiceImpl) balance(ctx context.Context, q querier, userID, excludeID int64) (models.BalanceSummary, error) {
	contributions, err := listContributions(ctx, q, ContributionFilter{UserID: userID})
	if err != nil {
		return models.BalanceSummary{}, err
	}
	withdrawals, err := listWithdrawals(ctx, q, WithdrawalFilter{UserID: userID})
	if err != nil {
		return models.BalanceSummary{}, err
	}
	if excludeID != 0 {
		kept := withdrawals[:0]
		for _, w := range withdrawals {
			if w.ID != excludeID {
				kept = append(kept, w)
			}
		}
		withdrawals = kept
	}
	return s.balanceProcessor.Calculate(contributions, withdrawals), nil
}

func (s *withdrawalServiceImpl) Balance(ctx context.Context, userID int64) (models.BalanceSummary, error) {
	if _, err := getMember(s.db, userID); err != nil {
		return models.BalanceSummary{}, err
	}
	return s.balance(ctx, s.db, userID, 0)
}

// Request reserves amount against the available balance. The check and the insert share
// one transaction so concurrent requests cannot both spend the same balance.
func (s *withdrawalServiceImpl) Request(ctx context.Context, userID int64, amount decimal.Decimal, reason string) (*models.Withdrawal, error) {
	member, err := getMember(s.db, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsActive() {
		return nil, ErrMemberInactive
	}
	if err := validation.ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	reason, err = validation.RequireText("reason", reason, 500)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	summary, err := s.balance(ctx, tx, userID, 0)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(summary.AvailableBalance) {
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance,
			amount.StringFixed(2), summary.AvailableBalance.StringFixed(2))
	}

	w := &models.Withdrawal{
		Reference:   newReference("WD"),
		UserID:      userID,
		Amount:      amount,
		Reason:      reason,
		Status:      models.WithdrawalPending,
		RequestedAt: s.now().UTC(),
		MemberName:  member.FullName,
	}
	if err := insertWithdrawal(ctx, tx, w); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing withdrawal: %w", err)
	}

	invalidateReports(s.reportCache, userID)
	logger.FromContext(ctx).Info("Withdrawal requested", "userID", userID, "reference", w.Reference, "amount", amount.String())
	return w, nil
}

func (s *withdrawalServiceImpl) Cancel(ctx context.Context, userID, id int64) (*models.Withdrawal, error) {
	w, err := getWithdrawal(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, ErrForbidden
	}
	err = transition(ctx, s.db, `UPDATE withdrawals SET status = ? WHERE id = ? AND status = ?`,
		models.WithdrawalCancelled, id, models.WithdrawalPending)
	w, err = s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Withdrawal cancelled", "userID", userID, "reference", w.Reference)
	return w, nil
}

// Approve re-checks the balance without the request itself. Ledger rows corrected outside
// the service can shrink the balance while the request is pending.
func (s *withdrawalServiceImpl) Approve(ctx context.Context, adminID, id int64, note string) (*models.Withdrawal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	w, err := getWithdrawal(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != models.WithdrawalPending {
		return nil, fmt.Errorf("%w: withdrawal is %s", ErrInvalidState, w.Status)
	}
	summary, err := s.balance(ctx, tx, w.UserID, w.ID)
	if err != nil {
		return nil, err
	}
	if w.Amount.GreaterThan(summary.AvailableBalance) {
		return nil, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance,
			w.Amount.StringFixed(2), summary.AvailableBalance.StringFixed(2))
	}
	err = transition(ctx, tx, `UPDATE withdrawals SET status = ?, reviewed_by = ?, review_note = ?, reviewed_at = ? WHERE id = ? AND status = ?`,
		models.WithdrawalApproved, adminID, validation.CleanText(note), s.now().UTC(), id, models.WithdrawalPending)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing approval: %w", err)
	}

	w, err = s.afterTransition(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Withdrawal approved", "reference", w.Reference, "adminID", adminID)
	s.notifyMember(ctx, w, "Withdrawal approved",
		fmt.Sprintf("Your withdrawal %s of %s has been approved and will be paid out shortly.", w.Reference, w.Amount.StringFixed(2)))
	return w, nil
}

// Reject declines a pending or approved withdrawal, releasing the reserved amount.
func (s *withdrawalServiceImpl) Reject(ctx context.Context, adminID, id int64, note string) (*models.Withdrawal, error) {
	note, err := validation.RequireText("note", note, 500)
	if err != nil {
		return nil, err
	}
	err = transition(ctx, s.db, `UPDATE withdrawals SET status = ?, reviewed_by = ?, review_note = ?, reviewed_at = ? WHERE id = ? AND status IN (?, ?)`,
		models.WithdrawalRejected, adminID, note, s.now().UTC(), id, models.WithdrawalPending, models.WithdrawalApproved)
	w, err := s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Withdrawal rejected", "reference", w.Reference, "adminID", adminID)
	s.notifyMember(ctx, w, "Withdrawal rejected",
		fmt.Sprintf("Your withdrawal %s was rejected: %s", w.Reference, note))
	return w, nil
}

func (s *withdrawalServiceImpl) Complete(ctx context.Context, adminID, id int64) (*models.Withdrawal, error) {
	err := transition(ctx, s.db, `UPDATE withdrawals SET status = ?, completed_at = ? WHERE id = ? AND status = ?`,
		models.WithdrawalCompleted, s.now().UTC(), id, models.WithdrawalApproved)
	w, err := s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Withdrawal completed", "reference", w.Reference, "adminID", adminID)
	s.notifyMember(ctx, w, "Withdrawal paid",
		fmt.Sprintf("Your withdrawal %s of %s has been paid.", w.Reference, w.Amount.StringFixed(2)))
	return w, nil
}

func (s *withdrawalServiceImpl) afterTransition(ctx context.Context, id int64, err error) (*models.Withdrawal, error) {
	w, getErr := getWithdrawal(ctx, s.db, id)
	if getErr != nil {
		return nil, getErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: withdrawal is %s", err, w.Status)
	}
	invalidateReports(s.reportCache, w.UserID)
	return w, nil
}

func (s *withdrawalServiceImpl) notifyMember(ctx context.Context, w *models.Withdrawal, subject, body string) {
	member, err := getMember(s.db, w.UserID)
	if err != nil {
		logger.FromContext(ctx).Warn("Cannot notify member", "userID", w.UserID, "error", err)
		return
	}
	notify(ctx, s.notifier, member, subject, body)
}

func (s *withdrawalServiceImpl) List(ctx context.Context, filter WithdrawalFilter) ([]models.Withdrawal, error) {
	return listWithdrawals(ctx, s.db, filter)
}
