package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/utils"
)

// DefaultWithdrawalRatio is the share of lifetime contributions a member may withdraw.
var DefaultWithdrawalRatio = decimal.RequireFromString("0.5")

type balanceProcessorImpl struct {
	ratio decimal.Decimal
}

// NewBalanceProcessor creates a BalanceProcessor. A zero or negative ratio falls back to DefaultWithdrawalRatio.
func NewBalanceProcessor(ratio decimal.Decimal) BalanceProcessor {
	if !ratio.IsPositive() {
		ratio = DefaultWithdrawalRatio
	}
	return &balanceProcessorImpl{ratio: ratio}
}

// Calculate computes ratio × confirmed contributions − completed − outstanding withdrawals.
// Only confirmed contributions count. Pending and approved withdrawals are outstanding,
// rejected and cancelled ones are ignored. The available balance never goes below zero.
func (p *balanceProcessorImpl) Calculate(contributions []models.Contribution, withdrawals []models.Withdrawal) models.BalanceSummary {
	total := decimal.Zero
	for _, c := range contributions {
		if c.Status == models.ContributionConfirmed {
			total = total.Add(c.Amount)
		}
	}

	completed := decimal.Zero
	outstanding := decimal.Zero
	for _, w := range withdrawals {
		switch {
		case w.Status == models.WithdrawalCompleted:
			completed = completed.Add(w.Amount)
		case w.IsOutstanding():
			outstanding = outstanding.Add(w.Amount)
		}
	}

	eligible := utils.RoundMoney(total.Mul(p.ratio))
	available := utils.MaxDecimal(eligible.Sub(completed).Sub(outstanding), decimal.Zero)

	return models.BalanceSummary{
		TotalContributions:   total,
		WithdrawalRatio:      p.ratio,
		EligibleAmount:       eligible,
		CompletedWithdrawals: completed,
		PendingWithdrawals:   outstanding,
		AvailableBalance:     available,
	}
}
