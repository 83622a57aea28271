package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/config"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/processors"
	"github.com/username/welfarefund/src/security/validation"
)

type welfareServiceImpl struct {
	db                   *sql.DB
	eligibilityProcessor processors.EligibilityProcessor
	reportCache          *cache.Cache
	notifier             Notifier
	now                  func() time.Time
}

func NewWelfareService(db *sql.DB, eligibilityProcessor processors.EligibilityProcessor, reportCache *cache.Cache, notifier Notifier) WelfareService {
	return &welfareServiceImpl{
		db:                   db,
		eligibilityProcessor: eligibilityProcessor,
		reportCache:          reportCache,
		notifier:             notifier,
		now:                  time.Now,
	}
}

func (s *welfareServiceImpl) ListServices(ctx context.Context, activeOnly bool) ([]models.WelfareService, error) {
	return listServices(ctx, s.db, activeOnly)
}

func (s *welfareServiceImpl) GetService(ctx context.Context, id int64) (*models.WelfareService, error) {
	return getService(ctx, s.db, id)
}

func validateServiceInput(input ServiceInput) (models.WelfareService, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return models.WelfareService{}, fmt.Errorf("%w: code is required", validation.ErrValidationFailed)
	}
	name, err := validation.RequireText("name", input.Name, 100)
	if err != nil {
		return models.WelfareService{}, err
	}
	if err := validation.ValidateAmount(input.MaxAmount); err != nil {
		return models.WelfareService{}, fmt.Errorf("%w: max amount: %v", ErrInvalidAmount, err)
	}
	if input.MinMembershipMonths < 0 {
		return models.WelfareService{}, fmt.Errorf("%w: minimum membership months cannot be negative", validation.ErrValidationFailed)
	}
	if input.MinConsistencyPercent < 0 || input.MinConsistencyPercent > 100 {
		return models.WelfareService{}, fmt.Errorf("%w: minimum consistency must be between 0 and 100", validation.ErrValidationFailed)
	}
	return models.WelfareService{
		Code:                  code,
		Name:                  name,
		Description:           validation.CleanText(input.Description),
		MaxAmount:             input.MaxAmount,
		MinMembershipMonths:   input.MinMembershipMonths,
		MinConsistencyPercent: input.MinConsistencyPercent,
		Active:                input.Active,
	}, nil
}

func (s *welfareServiceImpl) CreateService(ctx context.Context, input ServiceInput) (*models.WelfareService, error) {
	svc, err := validateServiceInput(input)
	if err != nil {
		return nil, err
	}
	taken, err := serviceCodeExists(ctx, s.db, svc.Code, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: service code %s", ErrAlreadyExists, svc.Code)
	}
	if err := insertService(ctx, s.db, &svc); err != nil {
		return nil, err
	}
	invalidateReports(s.reportCache, 0)
	logger.FromContext(ctx).Info("Welfare service created", "serviceID", svc.ID, "code", svc.Code)
	return &svc, nil
}

func (s *welfareServiceImpl) UpdateService(ctx context.Context, id int64, input ServiceInput) (*models.WelfareService, error) {
	svc, err := validateServiceInput(input)
	if err != nil {
		return nil, err
	}
	svc.ID = id
	taken, err := serviceCodeExists(ctx, s.db, svc.Code, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: service code %s", ErrAlreadyExists, svc.Code)
	}
	if err := updateService(ctx, s.db, &svc); err != nil {
		return nil, err
	}
	invalidateReports(s.reportCache, 0)
	logger.FromContext(ctx).Info("Welfare service updated", "serviceID", id, "code", svc.Code, "active", svc.Active)
	return &svc, nil
}

// SeedCatalog inserts catalog entries whose code is not in the database yet and
// returns how many were added. Existing services are left untouched.
func (s *welfareServiceImpl) SeedCatalog(ctx context.Context, seeds []config.WelfareServiceSeed) (int, error) {
	inserted := 0
	for _, seed := range seeds {
		maxAmount, err := seed.MaxAmountDecimal()
		if err != nil {
			return inserted, fmt.Errorf("catalog entry %s: %w", seed.Code, err)
		}
		svc, err := validateServiceInput(ServiceInput{
			Code:                  seed.Code,
			Name:                  seed.Name,
			Description:           seed.Description,
			MaxAmount:             maxAmount,
			MinMembershipMonths:   seed.MinMembershipMonths,
			MinConsistencyPercent: seed.MinConsistencyPercent,
			Active:                seed.IsActive(),
		})
		if err != nil {
			return inserted, fmt.Errorf("catalog entry %s: %w", seed.Code, err)
		}
		exists, err := serviceCodeExists(ctx, s.db, svc.Code, 0)
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}
		if err := insertService(ctx, s.db, &svc); err != nil {
			return inserted, err
		}
		inserted++
	}
	if inserted > 0 {
		invalidateReports(s.reportCache, 0)
	}
	logger.FromContext(ctx).Info("Welfare catalog seeded", "entries", len(seeds), "inserted", inserted)
	return inserted, nil
}

func (s *welfareServiceImpl) CheckEligibility(ctx context.Context, userID, serviceID int64) (models.EligibilityResult, error) {
	member, err := getMember(s.db, userID)
	if err != nil {
		return models.EligibilityResult{}, err
	}
	svc, err := getService(ctx, s.db, serviceID)
	if err != nil {
		return models.EligibilityResult{}, err
	}
	contributions, err := listContributions(ctx, s.db, ContributionFilter{UserID: userID})
	if err != nil {
		return models.EligibilityResult{}, err
	}
	return s.eligibilityProcessor.Evaluate(member, contributions, *svc, s.now().UTC()), nil
}

// Apply files an application after checking eligibility. The eligibility figures at
// submission time are stored with the application.
func (s *welfareServiceImpl) Apply(ctx context.Context, userID int64, input ApplyInput) (*models.WelfareApplication, error) {
	member, err := getMember(s.db, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsActive() {
		return nil, ErrMemberInactive
	}
	if err := validation.ValidateAmount(input.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	description, err := validation.RequireText("description", input.Description, 1000)
	if err != nil {
		return nil, err
	}

	result, err := s.CheckEligibility(ctx, userID, input.ServiceID)
	if err != nil {
		return nil, err
	}
	if !result.Eligible {
		return nil, fmt.Errorf("%w: %s", ErrNotEligible, strings.Join(result.Reasons, "; "))
	}
	if input.Amount.GreaterThan(result.MaxAmount) {
		return nil, fmt.Errorf("%w: %s exceeds the service maximum of %s", ErrInvalidAmount,
			input.Amount.StringFixed(2), result.MaxAmount.StringFixed(2))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	open, err := listApplications(ctx, tx, ApplicationFilter{UserID: userID, ServiceID: input.ServiceID})
	if err != nil {
		return nil, err
	}
	for _, a := range open {
		if a.IsOpen() {
			return nil, fmt.Errorf("%w: application %s for this service is still %s", ErrInvalidState, a.Reference, a.Status)
		}
	}

	app := &models.WelfareApplication{
		Reference:          newReference("WA"),
		UserID:             userID,
		ServiceID:          input.ServiceID,
		AmountRequested:    input.Amount,
		Description:        description,
		Status:             models.ApplicationPending,
		MonthsAsMember:     result.MonthsAsMember,
		ConsistencyPercent: result.ConsistencyPercent,
		SubmittedAt:        s.now().UTC(),
	}
	if err := insertApplication(ctx, tx, app); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing application: %w", err)
	}

	invalidateReports(s.reportCache, userID)
	logger.FromContext(ctx).Info("Welfare application submitted", "userID", userID, "reference", app.Reference, "serviceID", input.ServiceID)
	return getApplication(ctx, s.db, app.ID)
}

func (s *welfareServiceImpl) Withdraw(ctx context.Context, userID, id int64) (*models.WelfareApplication, error) {
	app, err := getApplication(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, ErrForbidden
	}
	err = transition(ctx, s.db, `UPDATE welfare_applications SET status = ? WHERE id = ? AND status = ?`,
		models.ApplicationWithdrawn, id, models.ApplicationPending)
	app, err = s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Welfare application withdrawn", "userID", userID, "reference", app.Reference)
	return app, nil
}

// Review approves (optionally for less than requested) or rejects a pending application.
func (s *welfareServiceImpl) Review(ctx context.Context, adminID, id int64, input ReviewInput) (*models.WelfareApplication, error) {
	app, err := getApplication(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationPending {
		return nil, fmt.Errorf("%w: application is %s", ErrInvalidState, app.Status)
	}
	now := s.now().UTC()

	var subject, body string
	if input.Approve {
		amount := input.Amount
		if amount.IsZero() {
			amount = app.AmountRequested
		}
		if err := validation.ValidateAmount(amount); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		if amount.GreaterThan(app.AmountRequested) {
			return nil, fmt.Errorf("%w: approved amount cannot exceed the requested %s", ErrInvalidAmount, app.AmountRequested.StringFixed(2))
		}
		err = transition(ctx, s.db, `UPDATE welfare_applications SET status = ?, amount_approved = ?, reviewed_by = ?, review_note = ?, reviewed_at = ?
			WHERE id = ? AND status = ?`,
			models.ApplicationApproved, moneyValue(amount), adminID, validation.CleanText(input.Note), now, id, models.ApplicationPending)
		subject = "Welfare application approved"
		body = fmt.Sprintf("Your %s application %s was approved for %s.", app.ServiceName, app.Reference, amount.StringFixed(2))
	} else {
		note, noteErr := validation.RequireText("note", input.Note, 500)
		if noteErr != nil {
			return nil, noteErr
		}
		err = transition(ctx, s.db, `UPDATE welfare_applications SET status = ?, reviewed_by = ?, review_note = ?, reviewed_at = ?
			WHERE id = ? AND status = ?`,
			models.ApplicationRejected, adminID, note, now, id, models.ApplicationPending)
		subject = "Welfare application rejected"
		body = fmt.Sprintf("Your %s application %s was rejected: %s", app.ServiceName, app.Reference, note)
	}

	app, err = s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Welfare application reviewed", "reference", app.Reference, "status", app.Status, "adminID", adminID)
	s.notifyMember(ctx, app.UserID, subject, body)
	return app, nil
}

func (s *welfareServiceImpl) Disburse(ctx context.Context, adminID, id int64) (*models.WelfareApplication, error) {
	err := transition(ctx, s.db, `UPDATE welfare_applications SET status = ?, disbursed_at = ? WHERE id = ? AND status = ?`,
		models.ApplicationDisbursed, s.now().UTC(), id, models.ApplicationApproved)
	app, err := s.afterTransition(ctx, id, err)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Welfare application disbursed", "reference", app.Reference, "adminID", adminID)
	amount := decimal.Zero
	if app.AmountApproved.Valid {
		amount = app.AmountApproved.Decimal
	}
	s.notifyMember(ctx, app.UserID, "Welfare payout sent",
		fmt.Sprintf("%s for your %s application %s has been paid out.", amount.StringFixed(2), app.ServiceName, app.Reference))
	return app, nil
}

func (s *welfareServiceImpl) afterTransition(ctx context.Context, id int64, err error) (*models.WelfareApplication, error) {
	app, getErr := getApplication(ctx, s.db, id)
	if getErr != nil {
		return nil, getErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: application is %s", err, app.Status)
	}
	invalidateReports(s.reportCache, app.UserID)
	return app, nil
}

func (s *welfareServiceImpl) notifyMember(ctx context.Context, userID int64, subject, body string) {
	member, err := getMember(s.db, userID)
	if err != nil {
		logger.FromContext(ctx).Warn("Cannot notify member", "userID", userID, "error", err)
		return
	}
	notify(ctx, s.notifier, member, subject, body)
}

func (s *welfareServiceImpl) ListApplications(ctx context.Context, filter ApplicationFilter) ([]models.WelfareApplication, error) {
	return listApplications(ctx, s.db, filter)
}
