package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Welfare application statuses.
const (
	ApplicationPending   = "pending"
	ApplicationApproved  = "approved"
	ApplicationRejected  = "rejected"
	ApplicationDisbursed = "disbursed"
	ApplicationWithdrawn = "withdrawn"
)

// WelfareService is a named payout the fund offers (medical, education, ...).
type WelfareService struct {
	ID                    int64           `json:"id"`
	Code                  string          `json:"code"`
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	MaxAmount             decimal.Decimal `json:"max_amount"`
	MinMembershipMonths   int             `json:"min_membership_months"`
	MinConsistencyPercent float64         `json:"min_consistency_percent"`
	Active                bool            `json:"active"`
}

// WelfareApplication is a member's request for a payout from a welfare service.
type WelfareApplication struct {
	ID                 int64               `json:"id"`
	Reference          string              `json:"reference"`
	UserID             int64               `json:"user_id"`
	ServiceID          int64               `json:"service_id"`
	ServiceName        string              `json:"service_name,omitempty"`
	AmountRequested    decimal.Decimal     `json:"amount_requested"`
	AmountApproved     decimal.NullDecimal `json:"amount_approved"`
	Description        string              `json:"description"`
	Status             string              `json:"status"`
	MonthsAsMember     int                 `json:"months_as_member"`
	ConsistencyPercent float64             `json:"consistency_percent"`
	ReviewedBy         int64               `json:"reviewed_by,omitempty"`
	ReviewNote         string              `json:"review_note,omitempty"`
	SubmittedAt        time.Time           `json:"submitted_at"`
	ReviewedAt         *time.Time          `json:"reviewed_at,omitempty"`
	DisbursedAt        *time.Time          `json:"disbursed_at,omitempty"`

	MemberName string `json:"member_name,omitempty"`
}

// IsOpen reports whether the application still awaits a final outcome.
func (a WelfareApplication) IsOpen() bool {
	return a.Status == ApplicationPending || a.Status == ApplicationApproved
}

// EligibilityResult is the outcome of checking a member against a service's thresholds.
type EligibilityResult struct {
	ServiceID             int64           `json:"service_id"`
	ServiceCode           string          `json:"service_code"`
	MonthsAsMember        int             `json:"months_as_member"`
	DuePeriods            int             `json:"due_periods"`
	PaidPeriods           int             `json:"paid_periods"`
	ConsistencyPercent    float64         `json:"consistency_percent"`
	MinMembershipMonths   int             `json:"min_membership_months"`
	MinConsistencyPercent float64         `json:"min_consistency_percent"`
	MaxAmount             decimal.Decimal `json:"max_amount"`
	Eligible              bool            `json:"eligible"`
	Reasons               []string        `json:"reasons"`
}
