package parsers

import (
	"fmt"
	"strings"

	"github.com/username/welfarefund/src/parsers/bank"
	"github.com/username/welfarefund/src/parsers/payroll"
)

// Supported import formats.
const (
	FormatPayroll = "payroll"
	FormatBank    = "bank"
)

func GetParser(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatPayroll:
		return payroll.NewParser(), nil
	case FormatBank:
		return bank.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for format: %s", format)
	}
}
