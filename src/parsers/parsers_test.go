package parsers

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetParser(t *testing.T) {
	for _, format := range []string{"payroll", "BANK", " bank "} {
		p, err := GetParser(format)
		require.NoError(t, err, format)
		assert.NotNil(t, p)
	}
	_, err := GetParser("degiro")
	assert.Error(t, err)
}

func TestPayrollParser(t *testing.T) {
	input := "\ufeffStaff_Number,Full_Name,Period,Amount,Reference\n" +
		"staff-0001,  jane   DOE ,2024-01,50.00,PAY-JAN-1\n" +
		"STAFF-0002,John Roe,02/2024,\"1,050.00\",PAY-FEB-2\n" +
		"\n" +
		"STAFF-0003,Bad Period,2024-13,50,PAY-X\n" +
		"STAFF-0004,Bad Amount,2024-01,abc,PAY-Y\n" +
		",No Staff,2024-01,50,PAY-Z\n" +
		"STAFF-0005,Negative,2024-01,-5,PAY-N\n"

	p, err := GetParser(FormatPayroll)
	require.NoError(t, err)
	rows, rowErrors, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "STAFF-0001", rows[0].StaffNumber)
	assert.Equal(t, "Jane Doe", rows[0].FullName)
	assert.Equal(t, "2024-01", rows[0].Period)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), rows[0].PaidAt)
	assert.Equal(t, 2, rows[0].Line)

	assert.Equal(t, "2024-02", rows[1].Period)
	assert.True(t, rows[1].Amount.Equal(decimal.RequireFromString("1050")))

	require.Len(t, rowErrors, 4)
	assert.Equal(t, 5, rowErrors[0].Line)
	assert.Contains(t, rowErrors[0].Message, "2024-13")
}

func TestPayrollParserMissingColumns(t *testing.T) {
	p, _ := GetParser(FormatPayroll)
	_, _, err := p.Parse(strings.NewReader("staff_number,amount\nSTAFF-1,50\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full_name")

	_, _, err = p.Parse(strings.NewReader(""))
	assert.Error(t, err)
}

func TestBankParser(t *testing.T) {
	input := "date,narration,amount,reference\n" +
		"2024-03-05,Dues staff-0042 for 2024-02,50.00,TRX-1\n" +
		"06/03/2024,Welfare STAFF-0043,75.5,TRX-2\n" +
		"2024-03-07,Transfer without member,50,TRX-3\n" +
		"2024-03-08,STAFF-0044 reversal,-50,TRX-4\n"

	p, err := GetParser(FormatBank)
	require.NoError(t, err)
	rows, rowErrors, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "STAFF-0042", rows[0].StaffNumber)
	assert.Equal(t, "2024-02", rows[0].Period, "period token in narration wins over value date")
	assert.Equal(t, "bank", rows[0].Source)

	assert.Equal(t, "STAFF-0043", rows[1].StaffNumber)
	assert.Equal(t, "2024-03", rows[1].Period)
	assert.Equal(t, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC), rows[1].PaidAt)

	require.Len(t, rowErrors, 2)
	assert.Equal(t, 4, rowErrors[0].Line)
	assert.Contains(t, rowErrors[1].Message, "not a credit")
}
