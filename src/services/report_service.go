package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/models"
	"github.com/username/welfarefund/src/processors"
	"github.com/username/welfarefund/src/security/validation"
	"github.com/username/welfarefund/src/utils"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

const recentContributionsLimit = 6

type reportServiceImpl struct {
	db                    *sql.DB
	reportProcessor       processors.ReportProcessor
	balanceProcessor      processors.BalanceProcessor
	contributionProcessor processors.ContributionProcessor
	reportCache           *cache.Cache
	now                   func() time.Time
}

func NewReportService(
	db *sql.DB,
	reportProcessor processors.ReportProcessor,
	balanceProcessor processors.BalanceProcessor,
	contributionProcessor processors.ContributionProcessor,
	reportCache *cache.Cache,
) ReportService {
	return &reportServiceImpl{
		db:                    db,
		reportProcessor:       reportProcessor,
		balanceProcessor:      balanceProcessor,
		contributionProcessor: contributionProcessor,
		reportCache:           reportCache,
		now:                   time.Now,
	}
}

// fundData is every collection a fund-wide report needs.
type fundData struct {
	members       []model.User
	contributions []models.Contribution
	withdrawals   []models.Withdrawal
	applications  []models.WelfareApplication
}

// loadFund fetches the four collections concurrently.
func (s *reportServiceImpl) loadFund(ctx context.Context, year int) (*fundData, error) {
	var data fundData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		members, err := model.ListUsers(s.db, model.UserFilter{})
		if err != nil {
			return fmt.Errorf("error loading members: %w", err)
		}
		data.members = members
		return nil
	})
	g.Go(func() error {
		contributions, err := listContributions(gctx, s.db, ContributionFilter{Year: year})
		data.contributions = contributions
		return err
	})
	g.Go(func() error {
		withdrawals, err := listWithdrawals(gctx, s.db, WithdrawalFilter{})
		data.withdrawals = withdrawals
		return err
	})
	g.Go(func() error {
		applications, err := listApplications(gctx, s.db, ApplicationFilter{})
		data.applications = applications
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *reportServiceImpl) AdminDashboard(ctx context.Context) (*models.AdminDashboard, error) {
	if cached, found := s.reportCache.Get(ckAdminDashboard); found {
		if d, ok := cached.(*models.AdminDashboard); ok {
			logger.FromContext(ctx).Debug("Admin dashboard served from cache")
			return d, nil
		}
	}

	data, err := s.loadFund(ctx, 0)
	if err != nil {
		return nil, err
	}
	d := s.reportProcessor.AdminDashboard(data.members, data.contributions, data.withdrawals, data.applications, s.now().UTC())
	s.reportCache.Set(ckAdminDashboard, &d, cache.DefaultExpiration)
	return &d, nil
}

func (s *reportServiceImpl) MonthlyReport(ctx context.Context, year int) (*models.MonthlyReport, error) {
	if year < 2000 || year > s.now().Year() {
		return nil, fmt.Errorf("%w: year %d is out of range", validation.ErrValidationFailed, year)
	}
	key := fmt.Sprintf(ckMonthlyReport, year)
	if cached, found := s.reportCache.Get(key); found {
		if r, ok := cached.(*models.MonthlyReport); ok {
			return r, nil
		}
	}

	data, err := s.loadFund(ctx, year)
	if err != nil {
		return nil, err
	}
	r := s.reportProcessor.MonthlyReport(year, data.contributions, data.withdrawals, data.applications)
	s.reportCache.Set(key, &r, cache.DefaultExpiration)
	return &r, nil
}

// memberData is one member's collections.
type memberData struct {
	contributions []models.Contribution
	withdrawals   []models.Withdrawal
	applications  []models.WelfareApplication
}

func (s *reportServiceImpl) loadMember(ctx context.Context, userID int64) (*memberData, error) {
	var data memberData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data.contributions, err = listContributions(gctx, s.db, ContributionFilter{UserID: userID})
		return err
	})
	g.Go(func() error {
		var err error
		data.withdrawals, err = listWithdrawals(gctx, s.db, WithdrawalFilter{UserID: userID})
		return err
	})
	g.Go(func() error {
		var err error
		data.applications, err = listApplications(gctx, s.db, ApplicationFilter{UserID: userID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *reportServiceImpl) MemberDashboard(ctx context.Context, userID int64) (*models.MemberDashboard, error) {
	key := fmt.Sprintf(ckMemberDashboard, userID)
	if cached, found := s.reportCache.Get(key); found {
		if d, ok := cached.(*models.MemberDashboard); ok {
			unread, err := countUnreadNotifications(ctx, s.db, userID)
			if err != nil {
				return nil, err
			}
			copied := *d
			copied.UnreadNotifications = unread
			return &copied, nil
		}
	}

	member, err := getMember(s.db, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.loadMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := countUnreadNotifications(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	d := &models.MemberDashboard{
		Balance:             s.balanceProcessor.Calculate(data.contributions, data.withdrawals),
		Contributions:       s.contributionProcessor.Summarize(data.contributions, member.JoinedAt, now),
		RecentContributions: data.contributions,
		OpenWithdrawals:     []models.Withdrawal{},
		OpenApplications:    []models.WelfareApplication{},
		UnreadNotifications: unread,
		MonthsAsMember:      utils.MonthsBetween(member.JoinedAt, now),
	}
	if len(d.RecentContributions) > recentContributionsLimit {
		d.RecentContributions = d.RecentContributions[:recentContributionsLimit]
	}
	for _, w := range data.withdrawals {
		if w.IsOutstanding() {
			d.OpenWithdrawals = append(d.OpenWithdrawals, w)
		}
	}
	for _, a := range data.applications {
		if a.IsOpen() {
			d.OpenApplications = append(d.OpenApplications, a)
		}
	}
	s.reportCache.Set(key, d, cache.DefaultExpiration)
	return d, nil
}

func (s *reportServiceImpl) MemberStatement(ctx context.Context, userID int64) (*models.MemberStatement, error) {
	member, err := getMember(s.db, userID)
	if err != nil {
		return nil, err
	}
	data, err := s.loadMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.MemberStatement{
		MemberID:      member.ID,
		FullName:      member.FullName,
		StaffNumber:   member.StaffNumber,
		Status:        member.Status,
		JoinedAt:      member.JoinedAt,
		Balance:       s.balanceProcessor.Calculate(data.contributions, data.withdrawals),
		Summary:       s.contributionProcessor.Summarize(data.contributions, member.JoinedAt, s.now().UTC()),
		Contributions: data.contributions,
		Withdrawals:   data.withdrawals,
		Applications:  data.applications,
	}, nil
}

var exportHeader = []interface{}{"Period", "Staff Number", "Member", "Amount", "Method", "Reference", "Status", "Paid At"}

const (
	contributionsSheet = "Contributions"
	summarySheet       = "Monthly Summary"
)

// ExportContributions writes the year's contributions as an XLSX workbook with a raw
// rows sheet and a per-month summary sheet.
func (s *reportServiceImpl) ExportContributions(ctx context.Context, year int, w io.Writer) error {
	report, err := s.MonthlyReport(ctx, year)
	if err != nil {
		return err
	}
	contributions, err := listContributions(ctx, s.db, ContributionFilter{Year: year})
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", contributionsSheet); err != nil {
		return fmt.Errorf("error preparing workbook: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}

	if err := writeRow(f, contributionsSheet, 1, exportHeader); err != nil {
		return err
	}
	for i, c := range contributions {
		row := []interface{}{
			c.Period,
			validation.SanitizeForFormulaInjection(c.StaffNumber),
			validation.SanitizeForFormulaInjection(c.MemberName),
			c.Amount.InexactFloat64(),
			c.Method,
			validation.SanitizeForFormulaInjection(c.Reference),
			c.Status,
			c.PaidAt.Format(utils.DefaultDateFormat),
		}
		if err := writeRow(f, contributionsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(contributionsSheet, "A1", "H1", headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(contributionsSheet, "A", "H", 16); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error adding summary sheet: %w", err)
	}
	if err := writeRow(f, summarySheet, 1, []interface{}{"Period", "Contributors", "Contributions", "Withdrawals", "Disbursements", "Net"}); err != nil {
		return err
	}
	for i, line := range report.Lines {
		row := []interface{}{
			line.Period,
			line.Contributors,
			line.Contributions.InexactFloat64(),
			line.Withdrawals.InexactFloat64(),
			line.Disbursements.InexactFloat64(),
			line.Net.InexactFloat64(),
		}
		if err := writeRow(f, summarySheet, i+2, row); err != nil {
			return err
		}
	}
	totalRow := []interface{}{
		"Total", "",
		report.TotalContributions.InexactFloat64(),
		report.TotalWithdrawals.InexactFloat64(),
		report.TotalDisbursements.InexactFloat64(),
		report.Net.InexactFloat64(),
	}
	if err := writeRow(f, summarySheet, len(report.Lines)+2, totalRow); err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "F1", headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	logger.FromContext(ctx).Info("Contributions exported", "year", year, "rows", len(contributions))
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("error writing row %d of %s: %w", row, sheet, err)
	}
	return nil
}
