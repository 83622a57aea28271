package validation

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePeriod(t *testing.T) {
	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidatePeriod("2024-06", now))
	assert.NoError(t, ValidatePeriod("2023-01", now))
	for _, bad := range []string{"2024-07", "2024-13", "24-01", "2024/01", "", "1999-12"} {
		err := ValidatePeriod(bad, now)
		assert.ErrorIs(t, err, ErrValidationFailed, bad)
	}
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("50")))
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("12.50")))
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("12.500")))

	assert.ErrorIs(t, ValidateAmount(decimal.Zero), ErrValidationFailed)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("-1")), ErrValidationFailed)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("0.001")), ErrValidationFailed)
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 75.25 ")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("75.25")))

	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("abcd1234"))
	assert.Error(t, ValidatePassword("short1"))
	assert.Error(t, ValidatePassword("onlyletters"))
	assert.Error(t, ValidatePassword("12345678"))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("member@council.gov"))
	assert.Error(t, ValidateEmail("Member <member@council.gov>"))
	assert.Error(t, ValidateEmail("not-an-email"))
}

func TestValidateStaffNumber(t *testing.T) {
	assert.NoError(t, ValidateStaffNumber(""))
	assert.NoError(t, ValidateStaffNumber("STAFF-0042"))
	assert.Error(t, ValidateStaffNumber("0042"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Jane Doe", NormalizeName("  jane   DOE "))
	// decomposed "e" + combining acute becomes a single rune
	assert.Equal(t, "Ren\u00e9 Achebe", NormalizeName("rene\u0301 ACHEBE"))
}

func TestSanitizeForFormulaInjection(t *testing.T) {
	assert.Equal(t, "'=SUM(A1)", SanitizeForFormulaInjection("=SUM(A1)"))
	assert.Equal(t, "Jane", SanitizeForFormulaInjection("Jane"))
}

func TestRequireText(t *testing.T) {
	_, err := RequireText("reason", "   ", 10)
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = RequireText("reason", "this is far too long", 10)
	assert.ErrorIs(t, err, ErrValidationFailed)

	v, err := RequireText("reason", " school fees\x00 ", 100)
	require.NoError(t, err)
	assert.Equal(t, "school fees", v)
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	csv := bytes.NewReader([]byte("staff_number,full_name,period,amount,reference\nSTAFF-1,Jane,2024-01,50,R1\n"))
	detected, err := ValidateFileContentByMagicBytes(csv)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", detected)

	pos, _ := csv.Seek(0, 1)
	assert.Equal(t, int64(0), pos)

	png := bytes.NewReader([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	_, err = ValidateFileContentByMagicBytes(png)
	assert.Error(t, err)
}
