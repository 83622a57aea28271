package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/models"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// moneyValue is the stored TEXT form of an amount.
func moneyValue(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// whereClause joins conditions with AND.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, arg interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// transition runs an UPDATE guarded by the current status. Zero affected rows
// means the record is missing or in another status.
func transition(ctx context.Context, q querier, query string, args ...interface{}) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}

// --- contributions ---

// ContributionFilter narrows contribution listings. Zero values match everything.
type ContributionFilter struct {
	UserID int64
	Status string
	Period string
	Year   int
}

const contributionColumns = `c.id, c.user_id, c.period, c.amount, c.method, c.reference, c.status, c.note,
	c.recorded_by, c.hash_id, c.paid_at, c.created_at, u.full_name, u.staff_number`

const contributionFrom = ` FROM contributions c JOIN users u ON u.id = c.user_id`

func scanContribution(row rowScanner) (models.Contribution, error) {
	var c models.Contribution
	var recordedBy sql.NullInt64
	var paidAt, createdAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.Period, &c.Amount, &c.Method, &c.Reference, &c.Status, &c.Note,
		&recordedBy, &c.HashID, &paidAt, &createdAt, &c.MemberName, &c.StaffNumber)
	if err != nil {
		return c, err
	}
	c.RecordedBy = recordedBy.Int64
	c.PaidAt = paidAt.Time
	c.CreatedAt = createdAt.Time
	return c, nil
}

func listContributions(ctx context.Context, q querier, f ContributionFilter) ([]models.Contribution, error) {
	var w whereClause
	if f.UserID != 0 {
		w.add("c.user_id = ?", f.UserID)
	}
	if f.Status != "" {
		w.add("c.status = ?", f.Status)
	}
	if f.Period != "" {
		w.add("c.period = ?", f.Period)
	}
	if f.Year != 0 {
		w.add("c.period LIKE ?", fmt.Sprintf("%04d-%%", f.Year))
	}

	rows, err := q.QueryContext(ctx, "SELECT "+contributionColumns+contributionFrom+w.String()+" ORDER BY c.period DESC, c.id DESC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying contributions: %w", err)
	}
	defer rows.Close()

	contributions := []models.Contribution{}
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

func getContribution(ctx context.Context, q querier, id int64) (*models.Contribution, error) {
	c, err := scanContribution(q.QueryRowContext(ctx, "SELECT "+contributionColumns+contributionFrom+" WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching contribution %d: %w", id, err)
	}
	return &c, nil
}

// insertContribution stores c and reports false when a row with the same hash already exists.
func insertContribution(ctx context.Context, q querier, c *models.Contribution) (bool, error) {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.PaidAt.IsZero() {
		c.PaidAt = now
	}
	res, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO contributions
		(user_id, period, amount, method, reference, status, note, recorded_by, hash_id, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Period, moneyValue(c.Amount), c.Method, c.Reference, c.Status, c.Note,
		nullInt(c.RecordedBy), c.HashID, c.PaidAt, c.CreatedAt, now)
	if err != nil {
		return false, fmt.Errorf("error inserting contribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	c.ID, err = res.LastInsertId()
	return true, err
}

// hasContributionForPeriod reports whether the member has a pending or confirmed contribution for period.
func hasContributionForPeriod(ctx context.Context, q querier, userID int64, period string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contributions WHERE user_id = ? AND period = ? AND status <> ?`,
		userID, period, models.ContributionRejected).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking contribution period: %w", err)
	}
	return n > 0, nil
}

func hashExists(ctx context.Context, q querier, userID int64, hashID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contributions WHERE user_id = ? AND hash_id = ?`, userID, hashID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking contribution hash: %w", err)
	}
	return n > 0, nil
}

// --- withdrawals ---

// WithdrawalFilter narrows withdrawal listings.
type WithdrawalFilter struct {
	UserID int64
	Status string
}

const withdrawalColumns = `w.id, w.reference, w.user_id, w.amount, w.reason, w.status, w.reviewed_by, w.review_note,
	w.requested_at, w.reviewed_at, w.completed_at, u.full_name`

const withdrawalFrom = ` FROM withdrawals w JOIN users u ON u.id = w.user_id`

func scanWithdrawal(row rowScanner) (models.Withdrawal, error) {
	var w models.Withdrawal
	var reviewedBy sql.NullInt64
	var requestedAt, reviewedAt, completedAt sql.NullTime
	err := row.Scan(&w.ID, &w.Reference, &w.UserID, &w.Amount, &w.Reason, &w.Status, &reviewedBy, &w.ReviewNote,
		&requestedAt, &reviewedAt, &completedAt, &w.MemberName)
	if err != nil {
		return w, err
	}
	w.ReviewedBy = reviewedBy.Int64
	w.RequestedAt = requestedAt.Time
	w.ReviewedAt = timePtr(reviewedAt)
	w.CompletedAt = timePtr(completedAt)
	return w, nil
}

func listWithdrawals(ctx context.Context, q querier, f WithdrawalFilter) ([]models.Withdrawal, error) {
	var w whereClause
	if f.UserID != 0 {
		w.add("w.user_id = ?", f.UserID)
	}
	if f.Status != "" {
		w.add("w.status = ?", f.Status)
	}
	rows, err := q.QueryContext(ctx, "SELECT "+withdrawalColumns+withdrawalFrom+w.String()+" ORDER BY w.requested_at DESC, w.id DESC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying withdrawals: %w", err)
	}
	defer rows.Close()

	withdrawals := []models.Withdrawal{}
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, wd)
	}
	return withdrawals, rows.Err()
}

func getWithdrawal(ctx context.Context, q querier, id int64) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(q.QueryRowContext(ctx, "SELECT "+withdrawalColumns+withdrawalFrom+" WHERE w.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching withdrawal %d: %w", id, err)
	}
	return &w, nil
}

func insertWithdrawal(ctx context.Context, q querier, w *models.Withdrawal) error {
	res, err := q.ExecContext(ctx, `INSERT INTO withdrawals (reference, user_id, amount, reason, status, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)`, w.Reference, w.UserID, moneyValue(w.Amount), w.Reason, w.Status, w.RequestedAt)
	if err != nil {
		return fmt.Errorf("error inserting withdrawal: %w", err)
	}
	w.ID, err = res.LastInsertId()
	return err
}

// --- welfare services ---

const serviceColumns = `id, code, name, description, max_amount, min_membership_months, min_consistency_percent, active`

func scanService(row rowScanner) (models.WelfareService, error) {
	var s models.WelfareService
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Description, &s.MaxAmount, &s.MinMembershipMonths, &s.MinConsistencyPercent, &s.Active)
	return s, err
}

func listServices(ctx context.Context, q querier, activeOnly bool) ([]models.WelfareService, error) {
	query := "SELECT " + serviceColumns + " FROM welfare_services"
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	rows, err := q.QueryContext(ctx, query+" ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("error querying welfare services: %w", err)
	}
	defer rows.Close()

	services := []models.WelfareService{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning welfare service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func getService(ctx context.Context, q querier, id int64) (*models.WelfareService, error) {
	s, err := scanService(q.QueryRowContext(ctx, "SELECT "+serviceColumns+" FROM welfare_services WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching welfare service %d: %w", id, err)
	}
	return &s, nil
}

func serviceCodeExists(ctx context.Context, q querier, code string, exceptID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM welfare_services WHERE code = ? AND id <> ?`, code, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking welfare service code: %w", err)
	}
	return n > 0, nil
}

func insertService(ctx context.Context, q querier, s *models.WelfareService) error {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `INSERT INTO welfare_services
		(code, name, description, max_amount, min_membership_months, min_consistency_percent, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Code, s.Name, s.Description, moneyValue(s.MaxAmount), s.MinMembershipMonths, s.MinConsistencyPercent, s.Active, now, now)
	if err != nil {
		return fmt.Errorf("error inserting welfare service: %w", err)
	}
	s.ID, err = res.LastInsertId()
	return err
}

func updateService(ctx context.Context, q querier, s *models.WelfareService) error {
	res, err := q.ExecContext(ctx, `UPDATE welfare_services SET code = ?, name = ?, description = ?, max_amount = ?,
		min_membership_months = ?, min_consistency_percent = ?, active = ?, updated_at = ? WHERE id = ?`,
		s.Code, s.Name, s.Description, moneyValue(s.MaxAmount), s.MinMembershipMonths, s.MinConsistencyPercent,
		s.Active, time.Now().UTC(), s.ID)
	if err != nil {
		return fmt.Errorf("error updating welfare service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- welfare applications ---

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	UserID    int64
	ServiceID int64
	Status    string
}

const applicationColumns = `a.id, a.reference, a.user_id, a.service_id, s.name, a.amount_requested, a.amount_approved,
	a.description, a.status, a.months_as_member, a.consistency_percent, a.reviewed_by, a.review_note,
	a.submitted_at, a.reviewed_at, a.disbursed_at, u.full_name`

const applicationFrom = ` FROM welfare_applications a
	JOIN welfare_services s ON s.id = a.service_id
	JOIN users u ON u.id = a.user_id`

func scanApplication(row rowScanner) (models.WelfareApplication, error) {
	var a models.WelfareApplication
	var reviewedBy sql.NullInt64
	var submittedAt, reviewedAt, disbursedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Reference, &a.UserID, &a.ServiceID, &a.ServiceName, &a.AmountRequested, &a.AmountApproved,
		&a.Description, &a.Status, &a.MonthsAsMember, &a.ConsistencyPercent, &reviewedBy, &a.ReviewNote,
		&submittedAt, &reviewedAt, &disbursedAt, &a.MemberName)
	if err != nil {
		return a, err
	}
	a.ReviewedBy = reviewedBy.Int64
	a.SubmittedAt = submittedAt.Time
	a.ReviewedAt = timePtr(reviewedAt)
	a.DisbursedAt = timePtr(disbursedAt)
	return a, nil
}

func listApplications(ctx context.Context, q querier, f ApplicationFilter) ([]models.WelfareApplication, error) {
	var w whereClause
	if f.UserID != 0 {
		w.add("a.user_id = ?", f.UserID)
	}
	if f.ServiceID != 0 {
		w.add("a.service_id = ?", f.ServiceID)
	}
	if f.Status != "" {
		w.add("a.status = ?", f.Status)
	}
	rows, err := q.QueryContext(ctx, "SELECT "+applicationColumns+applicationFrom+w.String()+" ORDER BY a.submitted_at DESC, a.id DESC", w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying welfare applications: %w", err)
	}
	defer rows.Close()

	applications := []models.WelfareApplication{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning welfare application: %w", err)
		}
		applications = append(applications, a)
	}
	return applications, rows.Err()
}

func getApplication(ctx context.Context, q querier, id int64) (*models.WelfareApplication, error) {
	a, err := scanApplication(q.QueryRowContext(ctx, "SELECT "+applicationColumns+applicationFrom+" WHERE a.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching welfare application %d: %w", id, err)
	}
	return &a, nil
}

func insertApplication(ctx context.Context, q querier, a *models.WelfareApplication) error {
	res, err := q.ExecContext(ctx, `INSERT INTO welfare_applications
		(reference, user_id, service_id, amount_requested, description, status, months_as_member, consistency_percent, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Reference, a.UserID, a.ServiceID, moneyValue(a.AmountRequested), a.Description, a.Status,
		a.MonthsAsMember, a.ConsistencyPercent, a.SubmittedAt)
	if err != nil {
		return fmt.Errorf("error inserting welfare application: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// --- notifications ---

func insertNotification(ctx context.Context, q querier, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `INSERT INTO notifications (user_id, channel, subject, body, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`, n.UserID, n.Channel, n.Subject, n.Body, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	return err
}

// listNotifications returns the member's in-app notifications, newest first.
func listNotifications(ctx context.Context, q querier, userID int64, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT id, user_id, channel, subject, body, is_read, created_at FROM notifications WHERE user_id = ? AND channel = ?`
	if unreadOnly {
		query += " AND is_read = FALSE"
	}
	rows, err := q.QueryContext(ctx, query+" ORDER BY created_at DESC, id DESC", userID, models.ChannelInApp)
	if err != nil {
		return nil, fmt.Errorf("error querying notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var createdAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Channel, &n.Subject, &n.Body, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		n.CreatedAt = createdAt.Time
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func countUnreadNotifications(ctx context.Context, q querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = FALSE AND channel = ?`,
		userID, models.ChannelInApp).Scan(&n)
	return n, err
}
