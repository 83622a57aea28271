package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/parsers"
	"github.com/username/welfarefund/src/processors"
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/utils"
)

var memberMethods = map[string]bool{
	models.MethodMobileMoney: true,
	models.MethodBank:        true,
	models.MethodCash:        true,
}

var adminMethods = map[string]bool{
	models.MethodPayroll:     true,
	models.MethodMobileMoney: true,
	models.MethodBank:        true,
	models.MethodCash:        true,
}

type contributionServiceImpl struct {
	db                    *sql.DB
	contributionProcessor processors.ContributionProcessor
	payrollProcessor      processors.PayrollProcessor
	monthlyDue            decimal.Decimal
	reportCache           *cache.Cache
	notifier              Notifier
	now                   func() time.Time
}

func NewContributionService(
	db *sql.DB,
	contributionProcessor processors.ContributionProcessor,
	payrollProcessor processors.PayrollProcessor,
	monthlyDue decimal.Decimal,
	reportCache *cache.Cache,
	notifier Notifier,
) ContributionService {
	return &contributionServiceImpl{
		db:                    db,
		contributionProcessor: contributionProcessor,
		payrollProcessor:      payrollProcessor,
		monthlyDue:            monthlyDue,
		reportCache:           reportCache,
		notifier:              notifier,
		now:                   time.Now,
	}
}

// Submit records a member's own payment as pending until an admin confirms it.
func (s *contributionServiceImpl) Submit(ctx context.Context, userID int64, input ContributionInput) (*models.Contribution, error) {
	member, err := getMember(s.db, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsActive() {
		return nil, ErrMemberInactive
	}
	method := strings.ToLower(strings.TrimSpace(input.Method))
	if !memberMethods[method] {
		return nil, fmt.Errorf("%w: payment method '%s' is not accepted", validation.ErrValidationFailed, input.Method)
	}
	c, err := s.newContribution(member, input, method)
	if err != nil {
		return nil, err
	}
	c.Status = models.ContributionPending

	if err := s.store(ctx, c); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Contribution submitted", "userID", userID, "period", c.Period, "amount", c.Amount.String())
	return c, nil
}

// Record stores a payment taken by an admin; it is confirmed immediately.
func (s *contributionServiceImpl) Record(ctx context.Context, adminID int64, input ContributionInput) (*models.Contribution, error) {
	member, err := getMember(s.db, input.UserID)
	if err != nil {
		return nil, err
	}
	if member.Status == model.StatusExited {
		return nil, ErrMemberInactive
	}
	method := strings.ToLower(strings.TrimSpace(input.Method))
	if !adminMethods[method] {
		return nil, fmt.Errorf("%w: payment method '%s' is not accepted", validation.ErrValidationFailed, input.Method)
	}
	c, err := s.newContribution(member, input, method)
	if err != nil {
		return nil, err
	}
	c.Status = models.ContributionConfirmed
	c.RecordedBy = adminID

	if err := s.store(ctx, c); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Contribution recorded", "userID", member.ID, "period", c.Period, "adminID", adminID)
	notify(ctx, s.notifier, member, "Contribution received",
		fmt.Sprintf("We recorded your contribution of %s for %s.", c.Amount.StringFixed(2), c.Period))
	return c, nil
}

func (s *contributionServiceImpl) newContribution(member *model.User, input ContributionInput, method string) (*models.Contribution, error) {
	now := s.now().UTC()
	period := strings.TrimSpace(input.Period)
	if err := validation.ValidatePeriod(period, now); err != nil {
		return nil, err
	}
	if period < utils.Period(member.JoinedAt) {
		return nil, fmt.Errorf("%w: period %s is before the member joined", validation.ErrValidationFailed, period)
	}
	if err := validation.ValidateAmount(input.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return &models.Contribution{
		UserID:      member.ID,
		Period:      period,
		Amount:      input.Amount,
		Method:      method,
		Reference:   validation.CleanText(input.Reference),
		Note:        validation.CleanText(input.Note),
		HashID:      "manual-" + uuid.NewString(),
		PaidAt:      now,
		CreatedAt:   now,
		MemberName:  member.FullName,
		StaffNumber: member.StaffNumber,
	}, nil
}

// store inserts c unless the member already has a live contribution for the period.
func (s *contributionServiceImpl) store(ctx context.Context, c *models.Contribution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := hasContributionForPeriod(ctx, tx, c.UserID, c.Period)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePeriod, c.Period)
	}
	if _, err := insertContribution(ctx, tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing contribution: %w", err)
	}
	invalidateReports(s.reportCache, c.UserID)
	return nil
}

func (s *contributionServiceImpl) Confirm(ctx context.Context, adminID, id int64) (*models.Contribution, error) {
	err := transition(ctx, s.db, `UPDATE contributions SET status = ?, recorded_by = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.ContributionConfirmed, adminID, s.now().UTC(), id, models.ContributionPending)
	c, err := s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Contribution confirmed", "contributionID", id, "adminID", adminID)
	s.notifyMember(ctx, c.UserID, "Contribution confirmed",
		fmt.Sprintf("Your contribution of %s for %s has been confirmed.", c.Amount.StringFixed(2), c.Period))
	return c, nil
}

func (s *contributionServiceImpl) Reject(ctx context.Context, adminID, id int64, note string) (*models.Contribution, error) {
	note, err := validation.RequireText("note", note, 500)
	if err != nil {
		return nil, err
	}
	err = transition(ctx, s.db, `UPDATE contributions SET status = ?, note = ?, recorded_by = ?, updated_at = ? WHERE id = ? AND status = ?`,
		models.ContributionRejected, note, adminID, s.now().UTC(), id, models.ContributionPending)
	c, err := s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Contribution rejected", "contributionID", id, "adminID", adminID)
	s.notifyMember(ctx, c.UserID, "Contribution rejected",
		fmt.Sprintf("Your contribution for %s was rejected: %s", c.Period, note))
	return c, nil
}

// afterTransition resolves a guarded update into the fresh record, telling a missing
// record apart from one in the wrong status.
func (s *contributionServiceImpl) afterTransition(ctx context.Context, id int64, err error) (*models.Contribution, error) {
	c, getErr := getContribution(ctx, s.db, id)
	if getErr != nil {
		return nil, getErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: contribution is %s", err, c.Status)
	}
	invalidateReports(s.reportCache, c.UserID)
	return c, nil
}

func (s *contributionServiceImpl) notifyMember(ctx context.Context, userID int64, subject, body string) {
	member, err := getMember(s.db, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("Cannot notify member", "userID", userID, "error", err)
		return
	}
	notify(ctx, s.notifier, member, subject, body)
}

func (s *contributionServiceImpl) List(ctx context.Context, filter ContributionFilter) ([]models.Contribution, error) {
	return listContributions(ctx, s.db, filter)
}

func (s *contributionServiceImpl) Summary(ctx context.Context, userID int64) (models.ContributionSummary, error) {
	member, err := getMember(s.db, userID)
	if err != nil {
		return models.ContributionSummary{}, err
	}
	contributions, err := listContributions(ctx, s.db, ContributionFilter{UserID: userID})
	if err != nil {
		return models.ContributionSummary{}, err
	}
	return s.contributionProcessor.Summarize(contributions, member.JoinedAt, s.now().UTC()), nil
}

// Import loads a payroll or bank file in one transaction. Rows already imported are
// counted as duplicates; a row for a period the member already paid another way is
// reported as a row error.
func (s *contributionServiceImpl) Import(ctx context.Context, adminID int64, format string, file io.Reader) (*models.ImportResult, error) {
	overallStartTime := time.Now()
	log := logger.FromContext(ctx)
	log.Info("Import START", "adminID", adminID, "format", format)

	parser, err := parsers.GetParser(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	rows, rowErrors, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	members, err := model.ListUsers(s.db, model.UserFilter{})
	if err != nil {
		return nil, fmt.Errorf("error loading members: %w", err)
	}
	byStaff := make(map[string]int64, len(members))
	for _, m := range members {
		if m.StaffNumber != "" && m.Status != model.StatusExited {
			byStaff[m.StaffNumber] = m.ID
		}
	}
	lines := make(map[string]int, len(rows))
	for _, row := range rows {
		lines[processors.GenerateHash(row)] = row.Line
	}

	contributions, unmatched := s.payrollProcessor.Process(rows, byStaff, s.monthlyDue)

	result := &models.ImportResult{
		Format:    strings.ToLower(strings.TrimSpace(format)),
		RowsRead:  len(rows) + len(rowErrors),
		Unmatched: unmatched,
		Errors:    rowErrors,
		Total:     decimal.Zero,
	}
	if result.Errors == nil {
		result.Errors = []models.ImportRowError{}
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	touched := make(map[int64]bool)
	for i := range contributions {
		c := &contributions[i]
		c.RecordedBy = adminID

		dup, err := hashExists(ctx, dbTx, c.UserID, c.HashID)
		if err != nil {
			return nil, fmt.Errorf("error checking contribution hash: %w", err)
		}
		if dup {
			log.Debug("Skipping duplicate contribution on import", "userID", c.UserID, "hash_id", c.HashID)
			result.Duplicates++
			continue
		}
		paid, err := hasContributionForPeriod(ctx, dbTx, c.UserID, c.Period)
		if err != nil {
			return nil, fmt.Errorf("error checking contribution period: %w", err)
		}
		if paid {
			result.Errors = append(result.Errors, models.ImportRowError{
				Line:    lines[c.HashID],
				Message: fmt.Sprintf("%s already has a contribution for %s", c.StaffNumber, c.Period),
			})
			continue
		}
		inserted, err := insertContribution(ctx, dbTx, c)
		if err != nil {
			return nil, fmt.Errorf("error inserting imported contribution: %w", err)
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Inserted++
		result.Total = result.Total.Add(c.Amount)
		touched[c.UserID] = true
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing import: %w", err)
	}

	for userID := range touched {
		invalidateReports(s.reportCache, userID)
	}
	log.Info("Import END", "adminID", adminID, "inserted", result.Inserted, "duplicates", result.Duplicates,
		"errors", len(result.Errors), "unmatched", len(result.Unmatched), "duration", time.Since(overallStartTime))
	return result, nil
}
