package processors

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/utils"
)

type reportProcessorImpl struct{}

func NewReportProcessor() ReportProcessor {
	return &reportProcessorImpl{}
}

func (p *reportProcessorImpl) AdminDashboard(members []model.User, contributions []models.Contribution, withdrawals []models.Withdrawal, applications []models.WelfareApplication, asOf time.Time) models.AdminDashboard {
	period := utils.Period(asOf)
	yearPrefix := strconv.Itoa(asOf.Year()) + "-"

	d := models.AdminDashboard{
		GeneratedAt:             asOf,
		Period:                  period,
		CollectedThisPeriod:     decimal.Zero,
		CollectedThisYear:       decimal.Zero,
		TotalContributions:      decimal.Zero,
		TotalWithdrawn:          decimal.Zero,
		TotalDisbursed:          decimal.Zero,
		PendingWithdrawalAmount: decimal.Zero,
	}

	for _, m := range members {
		if m.Role != model.RoleMember {
			continue
		}
		d.TotalMembers++
		if m.IsActive() {
			d.ActiveMembers++
		}
	}

	paidThisPeriod := make(map[int64]bool)
	for _, c := range contributions {
		switch c.Status {
		case models.ContributionPending:
			d.PendingContributions++
		case models.ContributionConfirmed:
			d.TotalContributions = d.TotalContributions.Add(c.Amount)
			if c.Period == period {
				d.CollectedThisPeriod = d.CollectedThisPeriod.Add(c.Amount)
				paidThisPeriod[c.UserID] = true
			}
			if len(c.Period) > 4 && c.Period[:5] == yearPrefix {
				d.CollectedThisYear = d.CollectedThisYear.Add(c.Amount)
			}
		}
	}
	d.PaidThisPeriod = len(paidThisPeriod)

	for _, w := range withdrawals {
		switch w.Status {
		case models.WithdrawalCompleted:
			d.TotalWithdrawn = d.TotalWithdrawn.Add(w.Amount)
		case models.WithdrawalPending:
			d.PendingWithdrawals++
			d.PendingWithdrawalAmount = d.PendingWithdrawalAmount.Add(w.Amount)
		}
	}

	for _, a := range applications {
		switch a.Status {
		case models.ApplicationPending:
			d.PendingApplications++
		case models.ApplicationDisbursed:
			d.TotalDisbursed = d.TotalDisbursed.Add(a.AmountApproved.Decimal)
		}
	}

	d.FundBalance = d.TotalContributions.Sub(d.TotalWithdrawn).Sub(d.TotalDisbursed)
	return d
}

// MonthlyReport places confirmed contributions by period, completed withdrawals by
// completion month and disbursed applications by disbursement month.
func (p *reportProcessorImpl) MonthlyReport(year int, contributions []models.Contribution, withdrawals []models.Withdrawal, applications []models.WelfareApplication) models.MonthlyReport {
	periods := utils.PeriodsOfYear(year)
	lines := make(map[string]*models.MonthlyLine, len(periods))
	contributors := make(map[string]map[int64]bool, len(periods))
	report := models.MonthlyReport{
		Year:               year,
		Lines:              make([]models.MonthlyLine, 0, len(periods)),
		TotalContributions: decimal.Zero,
		TotalWithdrawals:   decimal.Zero,
		TotalDisbursements: decimal.Zero,
		Net:                decimal.Zero,
	}
	for _, period := range periods {
		lines[period] = &models.MonthlyLine{
			Period:        period,
			Contributions: decimal.Zero,
			Withdrawals:   decimal.Zero,
			Disbursements: decimal.Zero,
			Net:           decimal.Zero,
		}
		contributors[period] = make(map[int64]bool)
	}

	for _, c := range contributions {
		line, ok := lines[c.Period]
		if !ok || c.Status != models.ContributionConfirmed {
			continue
		}
		line.Contributions = line.Contributions.Add(c.Amount)
		contributors[c.Period][c.UserID] = true
	}
	for _, w := range withdrawals {
		if w.Status != models.WithdrawalCompleted || w.CompletedAt == nil {
			continue
		}
		if line, ok := lines[utils.Period(*w.CompletedAt)]; ok {
			line.Withdrawals = line.Withdrawals.Add(w.Amount)
		}
	}
	for _, a := range applications {
		if a.Status != models.ApplicationDisbursed || a.DisbursedAt == nil {
			continue
		}
		if line, ok := lines[utils.Period(*a.DisbursedAt)]; ok {
			line.Disbursements = line.Disbursements.Add(a.AmountApproved.Decimal)
		}
	}

	for _, period := range periods {
		line := lines[period]
		line.Contributors = len(contributors[period])
		line.Net = line.Contributions.Sub(line.Withdrawals).Sub(line.Disbursements)
		report.TotalContributions = report.TotalContributions.Add(line.Contributions)
		report.TotalWithdrawals = report.TotalWithdrawals.Add(line.Withdrawals)
		report.TotalDisbursements = report.TotalDisbursements.Add(line.Disbursements)
		report.Lines = append(report.Lines, *line)
	}
	report.Net = report.TotalContributions.Sub(report.TotalWithdrawals).Sub(report.TotalDisbursements)
	return report
}
