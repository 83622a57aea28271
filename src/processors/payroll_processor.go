package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/models"
)

type payrollProcessorImpl struct{}

func NewPayrollProcessor() PayrollProcessor { return &payrollProcessorImpl{} }

// Process maps import rows to confirmed contributions for the members keyed by staff number.
// Rows for unknown staff numbers are dropped and their staff numbers returned, sorted and unique.
// Every contribution carries a hash of its source data so a re-import can be detected.
func (p *payrollProcessorImpl) Process(rows []models.PayrollRow, members map[string]int64, monthlyDue decimal.Decimal) ([]models.Contribution, []string) {
	var contributions []models.Contribution
	unmatched := make(map[string]bool)

	for _, row := range rows {
		row.HashID = GenerateHash(row)

		userID, ok := members[row.StaffNumber]
		if !ok {
			unmatched[row.StaffNumber] = true
			continue
		}

		method := models.MethodPayroll
		if row.Source == "bank" {
			method = models.MethodBank
		}
		var note string
		if monthlyDue.IsPositive() && !row.Amount.Equal(monthlyDue) {
			note = fmt.Sprintf("amount %s differs from the monthly due of %s", row.Amount.StringFixed(2), monthlyDue.StringFixed(2))
		}

		contributions = append(contributions, models.Contribution{
			UserID:      userID,
			Period:      row.Period,
			Amount:      row.Amount,
			Method:      method,
			Reference:   row.Reference,
			Status:      models.ContributionConfirmed,
			Note:        note,
			HashID:      row.HashID,
			PaidAt:      row.PaidAt,
			StaffNumber: row.StaffNumber,
			MemberName:  row.FullName,
		})
	}

	staff := make([]string, 0, len(unmatched))
	for s := range unmatched {
		staff = append(staff, s)
	}
	sort.Strings(staff)
	return contributions, staff
}

// GenerateHash creates the deduplication key of an imported row.
func GenerateHash(row models.PayrollRow) string {
	input := fmt.Sprintf("%s|%s|%s|%s", row.Period, row.StaffNumber, row.Amount.StringFixed(2), row.Reference)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
