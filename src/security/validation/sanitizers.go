package validation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var titleCaser = cases.Title(language.Und)

// SanitizeForFormulaInjection prepends a single quote if the string starts with a formula character,
// so spreadsheet exports treat it as text.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '=', '+', '-', '@', '\t', '\r':
			return "'" + s
		}
	}
	return s
}

// StripUnprintable removes non-printable characters, keeping space, tab, newline and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// CleanText trims and strips unprintable characters from free-text input.
func CleanText(s string) string {
	return strings.TrimSpace(StripUnprintable(norm.NFC.String(s)))
}

// NormalizeName returns a member name in NFC form, single-spaced and title cased,
// so "  ÅSA   o'neil" and "åsa O'NEIL" compare equal.
func NormalizeName(name string) string {
	fields := strings.Fields(StripUnprintable(norm.NFC.String(name)))
	return titleCaser.String(strings.ToLower(strings.Join(fields, " ")))
}

// NormalizeStaffNumber upper-cases and trims a staff number.
func NormalizeStaffNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
