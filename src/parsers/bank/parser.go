// Package bank parses bank statement exports of the fund's collection account.
package bank

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/parsers/csvutil"
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/utils"
)

var requiredColumns = []string{"date", "narration", "amount", "reference"}

var (
	staffTokenRe  = regexp.MustCompile(`(?i)\bSTAFF-[A-Z0-9]+\b`)
	periodTokenRe = regexp.MustCompile(`\b(20\d{2})-(0[1-9]|1[0-2])\b`)
)

var dateLayouts = []string{utils.DefaultDateFormat, "02/01/2006", "02-01-2006"}

type BankParser struct{}

func NewParser() *BankParser {
	return &BankParser{}
}

// Parse reads date,narration,amount,reference rows. The member is identified by
// the STAFF-… token in the narration; a YYYY-MM token in the narration names the
// period, otherwise the month of the value date is used.
func (p *BankParser) Parse(file io.Reader) ([]models.PayrollRow, []models.ImportRowError, error) {
	records, err := csvutil.ReadRecords(file, requiredColumns)
	if err != nil {
		return nil, nil, fmt.Errorf("bank parser: %w", err)
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
	narration := validation.CleanText(rec.Fields["narration"])
	staff := staffTokenRe.FindString(narration)
	if staff == "" {
		return models.PayrollRow{}, fmt.Errorf("no staff number in narration '%s'", narration)
	}
	date, err := parseDate(rec.Fields["date"])
	if err != nil {
		return models.PayrollRow{}, err
	}
	amount, err := csvutil.ParseAmount(rec.Fields["amount"])
	if err != nil {
		return models.PayrollRow{}, err
	}
	if !amount.IsPositive() {
		return models.PayrollRow{}, fmt.Errorf("amount %s is not a credit", amount.String())
	}
	if err := validation.ValidateAmount(amount); err != nil {
		return models.PayrollRow{}, err
	}

	period := utils.Period(date)
	if m := periodTokenRe.FindString(narration); m != "" {
		period = m
	}

	return models.PayrollRow{
		Source:      "bank",
		Line:        rec.Line,
		StaffNumber: validation.NormalizeStaffNumber(staff),
		Period:      period,
		Amount:      amount,
		Reference:   validation.CleanText(rec.Fields["reference"]),
		PaidAt:      date,
		RawText:     rec.Raw,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("date '%s' is not valid", s)
}
