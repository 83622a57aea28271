package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MemberDashboard is everything the member landing page shows.
type MemberDashboard struct {
	Balance             BalanceSummary       `json:"balance"`
	Contributions       ContributionSummary  `json:"contributions"`
	RecentContributions []Contribution       `json:"recent_contributions"`
	OpenWithdrawals     []Withdrawal         `json:"open_withdrawals"`
	OpenApplications    []WelfareApplication `json:"open_applications"`
	UnreadNotifications int                  `json:"unread_notifications"`
	MonthsAsMember      int                  `json:"months_as_member"`
}

// AdminDashboard aggregates the whole fund.
type AdminDashboard struct {
	GeneratedAt             time.Time       `json:"generated_at"`
	Period                  string          `json:"period"`
	TotalMembers            int             `json:"total_members"`
	ActiveMembers           int             `json:"active_members"`
	PaidThisPeriod          int             `json:"paid_this_period"`
	CollectedThisPeriod     decimal.Decimal `json:"collected_this_period"`
	CollectedThisYear       decimal.Decimal `json:"collected_this_year"`
	TotalContributions      decimal.Decimal `json:"total_contributions"`
	TotalWithdrawn          decimal.Decimal `json:"total_withdrawn"`
	TotalDisbursed          decimal.Decimal `json:"total_disbursed"`
	FundBalance             decimal.Decimal `json:"fund_balance"`
	PendingContributions    int             `json:"pending_contributions"`
	PendingWithdrawals      int             `json:"pending_withdrawals"`
	PendingWithdrawalAmount decimal.Decimal `json:"pending_withdrawal_amount"`
	PendingApplications     int             `json:"pending_applications"`
}

// MonthlyLine is one month of the yearly fund report.
type MonthlyLine struct {
	Period        string          `json:"period"`
	Contributors  int             `json:"contributors"`
	Contributions decimal.Decimal `json:"contributions"`
	Withdrawals   decimal.Decimal `json:"withdrawals"`
	Disbursements decimal.Decimal `json:"disbursements"`
	Net           decimal.Decimal `json:"net"`
}

// MonthlyReport is the per-month fund movement for one year.
type MonthlyReport struct {
	Year               int             `json:"year"`
	Lines              []MonthlyLine   `json:"lines"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	TotalWithdrawals   decimal.Decimal `json:"total_withdrawals"`
	TotalDisbursements decimal.Decimal `json:"total_disbursements"`
	Net                decimal.Decimal `json:"net"`
}

// MemberStatement is an admin view of one member's full position.
type MemberStatement struct {
	MemberID      int64                `json:"member_id"`
	FullName      string               `json:"full_name"`
	StaffNumber   string               `json:"staff_number"`
	Status        string               `json:"status"`
	JoinedAt      time.Time            `json:"joined_at"`
	Balance       BalanceSummary       `json:"balance"`
	Summary       ContributionSummary  `json:"summary"`
	Contributions []Contribution       `json:"contributions"`
	Withdrawals   []Withdrawal         `json:"withdrawals"`
	Applications  []WelfareApplication `json:"applications"`
}
