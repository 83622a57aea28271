package processors

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
)

// BalanceProcessor derives a member's withdrawal position from stored records.
type BalanceProcessor interface {
	Calculate(contributions []models.Contribution, withdrawals []models.Withdrawal) models.BalanceSummary
}

// EligibilityProcessor checks a member against a welfare service's thresholds.
type EligibilityProcessor interface {
	Evaluate(member *model.User, contributions []models.Contribution, service models.WelfareService, asOf time.Time) models.EligibilityResult
}

// ContributionProcessor summarises a member's payment history.
type ContributionProcessor interface {
	Summarize(contributions []models.Contribution, joinedAt, asOf time.Time) models.ContributionSummary
}

// ReportProcessor aggregates fund-wide figures.
type ReportProcessor interface {
	AdminDashboard(members []model.User, contributions []models.Contribution, withdrawals []models.Withdrawal, applications []models.WelfareApplication, asOf time.Time) models.AdminDashboard
	MonthlyReport(year int, contributions []models.Contribution, withdrawals []models.Withdrawal, applications []models.WelfareApplication) models.MonthlyReport
}

// PayrollProcessor turns parsed import rows into contributions.
type PayrollProcessor interface {
	Process(rows []models.PayrollRow, members map[string]int64, monthlyDue decimal.Decimal) ([]models.Contribution, []string)
}
