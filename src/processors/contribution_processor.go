package processors

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/utils"
)

type contributionProcessorImpl struct {
	monthlyDue decimal.Decimal
}

// NewContributionProcessor creates a ContributionProcessor pricing arrears at monthlyDue per period.
func NewContributionProcessor(monthlyDue decimal.Decimal) ContributionProcessor {
	return &contributionProcessorImpl{monthlyDue: monthlyDue}
}

func (p *contributionProcessorImpl) Summarize(contributions []models.Contribution, joinedAt, asOf time.Time) models.ContributionSummary {
	summary := models.ContributionSummary{
		TotalConfirmed: decimal.Zero,
		ByYear:         []models.YearTotal{},
		Arrears:        []string{},
		ArrearsAmount:  decimal.Zero,
	}

	type yearAcc struct {
		total   decimal.Decimal
		periods map[string]bool
	}
	years := make(map[int]*yearAcc)

	for _, c := range contributions {
		switch c.Status {
		case models.ContributionPending:
			summary.PendingCount++
			continue
		case models.ContributionConfirmed:
		default:
			continue
		}

		summary.ConfirmedCount++
		summary.TotalConfirmed = summary.TotalConfirmed.Add(c.Amount)
		if c.Period > summary.LastPeriod {
			summary.LastPeriod = c.Period
		}
		if !c.PaidAt.IsZero() && (summary.LastPaidAt == nil || c.PaidAt.After(*summary.LastPaidAt)) {
			paidAt := c.PaidAt
			summary.LastPaidAt = &paidAt
		}

		if len(c.Period) < 4 {
			continue
		}
		year, err := strconv.Atoi(c.Period[:4])
		if err != nil {
			continue
		}
		acc, ok := years[year]
		if !ok {
			acc = &yearAcc{total: decimal.Zero, periods: make(map[string]bool)}
			years[year] = acc
		}
		acc.total = acc.total.Add(c.Amount)
		acc.periods[c.Period] = true
	}

	for year, acc := range years {
		summary.ByYear = append(summary.ByYear, models.YearTotal{Year: year, Total: acc.total, Months: len(acc.periods)})
	}
	sort.Slice(summary.ByYear, func(i, j int) bool { return summary.ByYear[i].Year < summary.ByYear[j].Year })

	confirmed := confirmedPeriods(contributions)
	for _, period := range utils.PeriodsFrom(joinedAt, utils.MonthsBetween(joinedAt, asOf)) {
		if !confirmed[period] {
			summary.Arrears = append(summary.Arrears, period)
		}
	}
	summary.ArrearsAmount = p.monthlyDue.Mul(decimal.NewFromInt(int64(len(summary.Arrears))))
	return summary
}
