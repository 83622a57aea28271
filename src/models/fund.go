package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contribution statuses.
const (
	ContributionPending   = "pending"
	ContributionConfirmed = "confirmed"
	ContributionRejected  = "rejected"
)

// Payment methods.
const (
	MethodPayroll     = "payroll"
	MethodMobileMoney = "mobile_money"
	MethodBank        = "bank"
	MethodCash        = "cash"
)

// Withdrawal statuses.
const (
	WithdrawalPending   = "pending"
	WithdrawalApproved  = "approved"
	WithdrawalCompleted = "completed"
	WithdrawalRejected  = "rejected"
	WithdrawalCancelled = "cancelled"
)

// Contribution is one recorded monthly payment by a member.
type Contribution struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Period     string          `json:"period"` // YYYY-MM
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	Status     string          `json:"status"`
	Note       string          `json:"note,omitempty"`
	RecordedBy int64           `json:"recorded_by,omitempty"`
	HashID     string          `json:"-"`
	PaidAt     time.Time       `json:"paid_at"`
	CreatedAt  time.Time       `json:"created_at"`

	MemberName  string `json:"member_name,omitempty"`
	StaffNumber string `json:"staff_number,omitempty"`
}

// Withdrawal is a debit request against a member's available balance.
type Withdrawal struct {
	ID          int64           `json:"id"`
	Reference   string          `json:"reference"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	Status      string          `json:"status"`
	ReviewedBy  int64           `json:"reviewed_by,omitempty"`
	ReviewNote  string          `json:"review_note,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	ReviewedAt  *time.Time      `json:"reviewed_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`

	MemberName string `json:"member_name,omitempty"`
}

// IsOutstanding reports whether the withdrawal still reserves part of the balance.
func (w Withdrawal) IsOutstanding() bool {
	return w.Status == WithdrawalPending || w.Status == WithdrawalApproved
}

// BalanceSummary is the derived withdrawal position of one member.
type BalanceSummary struct {
	TotalContributions   decimal.Decimal `json:"total_contributions"`
	WithdrawalRatio      decimal.Decimal `json:"withdrawal_ratio"`
	EligibleAmount       decimal.Decimal `json:"eligible_amount"`
	CompletedWithdrawals decimal.Decimal `json:"completed_withdrawals"`
	PendingWithdrawals   decimal.Decimal `json:"pending_withdrawals"`
	AvailableBalance     decimal.Decimal `json:"available_balance"`
}

// YearTotal is the sum of confirmed contributions in one calendar year.
type YearTotal struct {
	Year   int             `json:"year"`
	Total  decimal.Decimal `json:"total"`
	Months int             `json:"months"`
}

// ContributionSummary describes a member's payment history.
type ContributionSummary struct {
	TotalConfirmed decimal.Decimal `json:"total_confirmed"`
	ConfirmedCount int             `json:"confirmed_count"`
	PendingCount   int             `json:"pending_count"`
	ByYear         []YearTotal     `json:"by_year"`
	LastPeriod     string          `json:"last_period,omitempty"`
	LastPaidAt     *time.Time      `json:"last_paid_at,omitempty"`
	Arrears        []string        `json:"arrears"`
	ArrearsAmount  decimal.Decimal `json:"arrears_amount"`
}

// ImportRowError explains why one input row of a bulk import was skipped.
type ImportRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportResult summarises a bulk contribution import.
type ImportResult struct {
	Format     string           `json:"format"`
	RowsRead   int              `json:"rows_read"`
	Inserted   int              `json:"inserted"`
	Duplicates int              `json:"duplicates"`
	Unmatched  []string         `json:"unmatched_staff_numbers"`
	Errors     []ImportRowError `json:"errors"`
	Total      decimal.Decimal  `json:"total_inserted_amount"`
}

// Notification channels.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification is a message addressed to one member.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Channel   string    `json:"channel"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
