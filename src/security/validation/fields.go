package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrValidationFailed wraps every input validation error.
var ErrValidationFailed = errors.New("validation failed")

var (
	usernameRe    = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)
	staffNumberRe = regexp.MustCompile(`^STAFF-[A-Z0-9]{2,16}$`)
	phoneRe       = regexp.MustCompile(`^\+?[0-9 ]{7,20}$`)
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// ValidatePeriod checks a YYYY-MM period that is not after the month containing now.
func ValidatePeriod(period string, now time.Time) error {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return invalid("period '%s' must be formatted YYYY-MM", period)
	}
	if t.Year() < 2000 {
		return invalid("period '%s' is too far in the past", period)
	}
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if t.After(current) {
		return invalid("period '%s' is in the future", period)
	}
	return nil
}

// ValidateAmount requires a positive amount with at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return invalid("amount %s has more than two decimal places", amount.String())
	}
	return nil
}

// ParseAmount parses and validates a money amount from user input.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, invalid("amount '%s' is not a number", s)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidatePassword requires at least 8 characters including a letter and a digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return invalid("password must be at least 8 characters long")
	}
	if len(password) > 72 {
		return invalid("password must be at most 72 bytes long")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return invalid("password must contain letters and digits")
	}
	return nil
}

// ValidateEmail checks a bare address (no display name).
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("'%s' is not a valid email address", email)
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return invalid("username must be 3-32 letters, digits, '.', '_' or '-'")
	}
	return nil
}

// ValidateStaffNumber accepts an empty value (not every member is on payroll).
func ValidateStaffNumber(staffNumber string) error {
	if staffNumber == "" {
		return nil
	}
	if !staffNumberRe.MatchString(staffNumber) {
		return invalid("staff number '%s' must look like STAFF-1234", staffNumber)
	}
	return nil
}

func ValidatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	if !phoneRe.MatchString(phone) {
		return invalid("phone number '%s' is not valid", phone)
	}
	return nil
}

// RequireText fails when value is blank after cleaning.
func RequireText(field, value string, maxLen int) (string, error) {
	cleaned := CleanText(value)
	if cleaned == "" {
		return "", invalid("%s is required", field)
	}
	if maxLen > 0 && len([]rune(cleaned)) > maxLen {
		return "", invalid("%s must be at most %d characters", field, maxLen)
	}
	return cleaned, nil
}
