package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayrollRow is the unified, intermediate representation of one imported payment line.
// Each parser populates it from its own file layout.
type PayrollRow struct {
	// --- Fields populated by the Parser ---
	Source      string          `json:"source"` // payroll, bank
	Line        int             `json:"line"`
	StaffNumber string          `json:"staff_number"`
	FullName    string          `json:"full_name"`
	Period      string          `json:"period"` // YYYY-MM
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	PaidAt      time.Time       `json:"paid_at"`
	RawText     string          `json:"raw_text"`

	// --- Filled by the processor ---
	HashID string `json:"hash_id"`
}
