package services

import (
	"context"
	"io"

	"github.com/shopspring/decimal"
	"github.com/username/welfarefund/src/config"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
)

// CreateMemberInput is what an admin supplies to enrol a member.
type CreateMemberInput struct {
	Username    string
	Email       string
	Password    string
	FullName    string
	StaffNumber string
	Department  string
	Phone       string
	Role        string
	JoinedAt    string // YYYY-MM-DD, defaults to today
}

// ProfileInput holds the fields a member may change on their own profile.
type ProfileInput struct {
	FullName   string
	Phone      string
	Department string
}

// MemberService manages member records.
type MemberService interface {
	CreateMember(ctx context.Context, input CreateMemberInput) (*model.User, error)
	GetMember(ctx context.Context, id int64) (*model.User, error)
	ListMembers(ctx context.Context, filter model.UserFilter) ([]model.User, error)
	UpdateStatus(ctx context.Context, adminID, memberID int64, status string) (*model.User, error)
	UpdateProfile(ctx context.Context, memberID int64, input ProfileInput) (*model.User, error)
}

// ContributionInput describes one payment, submitted by a member or recorded by an admin.
type ContributionInput struct {
	UserID    int64
	Period    string
	Amount    decimal.Decimal
	Method    string
	Reference string
	Note      string
}

// ContributionService records monthly dues.
type ContributionService interface {
	Submit(ctx context.Context, userID int64, input ContributionInput) (*models.Contribution, error)
	Record(ctx context.Context, adminID int64, input ContributionInput) (*models.Contribution, error)
	Confirm(ctx context.Context, adminID, id int64) (*models.Contribution, error)
	Reject(ctx context.Context, adminID, id int64, note string) (*models.Contribution, error)
	List(ctx context.Context, filter ContributionFilter) ([]models.Contribution, error)
	Summary(ctx context.Context, userID int64) (models.ContributionSummary, error)
	Import(ctx context.Context, adminID int64, format string, file io.Reader) (*models.ImportResult, error)
}

// WithdrawalService handles balance-backed withdrawal requests.
type WithdrawalService interface {
	Balance(ctx context.Context, userID int64) (models.BalanceSummary, error)
	Request(ctx context.Context, userID int64, amount decimal.Decimal, reason string) (*models.Withdrawal, error)
	Cancel(ctx context.Context, userID, id int64) (*models.Withdrawal, error)
	Approve(ctx context.Context, adminID, id int64, note string) (*models.Withdrawal, error)
	Reject(ctx context.Context, adminID, id int64, note string) (*models.Withdrawal, error)
	Complete(ctx context.Context, adminID, id int64) (*models.Withdrawal, error)
	List(ctx context.Context, filter WithdrawalFilter) ([]models.Withdrawal, error)
}

// ServiceInput creates or replaces a welfare service definition.
type ServiceInput struct {
	Code                  string
	Name                  string
	Description           string
	MaxAmount             decimal.Decimal
	MinMembershipMonths   int
	MinConsistencyPercent float64
	Active                bool
}

// ApplyInput is a member's welfare application.
type ApplyInput struct {
	ServiceID   int64
	Amount      decimal.Decimal
	Description string
}

// ReviewInput is an admin decision on an application. A zero Amount approves the requested amount.
type ReviewInput struct {
	Approve bool
	Amount  decimal.Decimal
	Note    string
}

// WelfareService manages the service catalog and applications against it.
type WelfareService interface {
	ListServices(ctx context.Context, activeOnly bool) ([]models.WelfareService, error)
	GetService(ctx context.Context, id int64) (*models.WelfareService, error)
	CreateService(ctx context.Context, input ServiceInput) (*models.WelfareService, error)
	UpdateService(ctx context.Context, id int64, input ServiceInput) (*models.WelfareService, error)
	SeedCatalog(ctx context.Context, seeds []config.WelfareServiceSeed) (int, error)
	CheckEligibility(ctx context.Context, userID, serviceID int64) (models.EligibilityResult, error)
	Apply(ctx context.Context, userID int64, input ApplyInput) (*models.WelfareApplication, error)
	Withdraw(ctx context.Context, userID, id int64) (*models.WelfareApplication, error)
	Review(ctx context.Context, adminID, id int64, input ReviewInput) (*models.WelfareApplication, error)
	Disburse(ctx context.Context, adminID, id int64) (*models.WelfareApplication, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]models.WelfareApplication, error)
}

// Notifier delivers a message to a member.
type Notifier interface {
	Notify(ctx context.Context, user *model.User, subject, body string) error
}

// NotificationService stores member notifications and fans them out to delivery channels.
type NotificationService interface {
	Notifier
	List(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int, error)
	SendArrearsReminders(ctx context.Context, period string) (int, error)
}

// ReportService builds dashboards and reports over the stored collections.
type ReportService interface {
	AdminDashboard(ctx context.Context) (*models.AdminDashboard, error)
	MonthlyReport(ctx context.Context, year int) (*models.MonthlyReport, error)
	MemberDashboard(ctx context.Context, userID int64) (*models.MemberDashboard, error)
	MemberStatement(ctx context.Context, userID int64) (*models.MemberStatement, error)
	ExportContributions(ctx context.Context, year int, w io.Writer) error
}
