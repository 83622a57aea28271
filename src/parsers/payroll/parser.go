// Package payroll parses the municipal payroll deduction export.
package payroll

import (
	"fmt"
	"io"
	"time"

	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/parsers/csvutil"
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/utils"
)

var requiredColumns = []string{"staff_number", "full_name", "period", "amount", "reference"}

// periodLayouts are the period spellings seen in payroll exports.
var periodLayouts = []string{utils.PeriodFormat, "01/2006", "2006/01", "Jan 2006", "January 2006"}

type PayrollParser struct{}

func NewParser() *PayrollParser {
	return &PayrollParser{}
}

// Parse reads staff_number,full_name,period,amount,reference rows.
func (p *PayrollParser) Parse(file io.Reader) ([]models.PayrollRow, []models.ImportRowError, error) {
	records, err := csvutil.ReadRecords(file, requiredColumns)
	if err != nil {
		return nil, nil, fmt.Errorf("payroll parser: %w", err)
	}

	var rows []models.PayrollRow
	var rowErrors []models.ImportRowError
	for _, rec := range records {
		row, err := parseRecord(rec)
		if err != nil {
			rowErrors = append(rowErrors, models.ImportRowError{Line: rec.Line, Message: err.Error()})
			continue
		}
		rows = append(rows, row)
	}
	return rows, rowErrors, nil
}

func parseRecord(rec csvutil.Record) (models.PayrollRow, error) {
	staff := validation.NormalizeStaffNumber(rec.Fields["staff_number"])
	if staff == "" {
		return models.PayrollRow{}, fmt.Errorf("staff_number is empty")
	}
	periodStart, err := parsePeriod(rec.Fields["period"])
	if err != nil {
		return models.PayrollRow{}, err
	}
	amount, err := csvutil.ParseAmount(rec.Fields["amount"])
	if err != nil {
		return models.PayrollRow{}, err
	}
	if err := validation.ValidateAmount(amount); err != nil {
		return models.PayrollRow{}, err
	}

	return models.PayrollRow{
		Source:      "payroll",
		Line:        rec.Line,
		StaffNumber: staff,
		FullName:    validation.NormalizeName(rec.Fields["full_name"]),
		Period:      utils.Period(periodStart),
		Amount:      amount,
		Reference:   validation.CleanText(rec.Fields["reference"]),
		// Deductions are paid out with the salary at the end of the month.
		PaidAt:  periodStart.AddDate(0, 1, -1),
		RawText: rec.Raw,
	}, nil
}

func parsePeriod(s string) (time.Time, error) {
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("period '%s' is not a recognised month", s)
}
