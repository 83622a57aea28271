package processors

import (
	"fmt"
	"time"

	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/utils"
)

type eligibilityProcessorImpl struct{}

func NewEligibilityProcessor() EligibilityProcessor {
	return &eligibilityProcessorImpl{}
}

// Evaluate counts whole months of membership up to asOf. The periods due are that many
// consecutive months starting with the join month; consistency is the share of them
// covered by a confirmed contribution.
func (p *eligibilityProcessorImpl) Evaluate(member *model.User, contributions []models.Contribution, service models.WelfareService, asOf time.Time) models.EligibilityResult {
	months := utils.MonthsBetween(member.JoinedAt, asOf)
	due := utils.PeriodsFrom(member.JoinedAt, months)
	paid := countPaid(due, contributions)
	consistency := utils.Percentage(paid, len(due))

	result := models.EligibilityResult{
		ServiceID:             service.ID,
		ServiceCode:           service.Code,
		MonthsAsMember:        months,
		DuePeriods:            len(due),
		PaidPeriods:           paid,
		ConsistencyPercent:    consistency,
		MinMembershipMonths:   service.MinMembershipMonths,
		MinConsistencyPercent: service.MinConsistencyPercent,
		MaxAmount:             service.MaxAmount,
		Reasons:               []string{},
	}

	if !member.IsActive() {
		result.Reasons = append(result.Reasons, fmt.Sprintf("membership is %s", member.Status))
	}
	if !service.Active {
		result.Reasons = append(result.Reasons, fmt.Sprintf("%s is not currently offered", service.Name))
	}
	if months < service.MinMembershipMonths {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("member for %d months, %d required", months, service.MinMembershipMonths))
	}
	if consistency < service.MinConsistencyPercent {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("payment consistency %.2f%% is below the required %.2f%%", consistency, service.MinConsistencyPercent))
	}
	result.Eligible = len(result.Reasons) == 0
	return result
}

// countPaid returns how many of the due periods have at least one confirmed contribution.
func countPaid(due []string, contributions []models.Contribution) int {
	confirmed := confirmedPeriods(contributions)
	paid := 0
	for _, period := range due {
		if confirmed[period] {
			paid++
		}
	}
	return paid
}

func confirmedPeriods(contributions []models.Contribution) map[string]bool {
	periods := make(map[string]bool, len(contributions))
	for _, c := range contributions {
		if c.Status == models.ContributionConfirmed {
			periods[c.Period] = true
		}
	}
	return periods
}
