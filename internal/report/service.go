package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

// Dashboard is the home-screen summary for one organization.
type Dashboard struct {
	MonthTotal    decimal.Decimal           `json:"month_total"`
	MonthCount    int64                     `json:"month_count"`
	PendingReview int64                     `json:"pending_review"`
	ByCategory    []repository.CategorySpend `json:"by_category"`
	TopVendors    []repository.VendorSpend   `json:"top_vendors"`
	MonthlyTrend  []repository.MonthlySpend  `json:"monthly_trend"`
	Recent        []*models.Expense          `json:"recent"`
}

// TaxSummary totals tax paid per category over a date range.
type TaxSummary struct {
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
	TotalSpend decimal.Decimal    `json:"total_spend"`
	TotalTax   decimal.Decimal    `json:"total_tax"`
	Categories []TaxCategoryTotal `json:"categories"`
}

type TaxCategoryTotal struct {
	CategoryName string          `json:"category_name"`
	Spend        decimal.Decimal `json:"spend"`
	Tax          decimal.Decimal `json:"tax"`
}

// Service computes reporting aggregates over approved expenses.
type Service struct {
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	logger     *zap.Logger
}

func NewService(expenses *repository.ExpenseRepository, categories *repository.CategoryRepository, logger *zap.Logger) *Service {
	return &Service{expenses: expenses, categories: categories, logger: logger}
}

// Dashboard assembles the summary for the month containing now plus a
// six-month trend.
func (s *Service) Dashboard(ctx context.Context, orgID uuid.UUID, now time.Time) (*Dashboard, error) {
	from := models.MonthStart(now)
	to := models.MonthEnd(now)

	monthTotal, err := s.expenses.SumApproved(ctx, orgID, from, to)
	if err != nil {
		return nil, err
	}
	pending, err := s.expenses.CountPendingReview(ctx, orgID)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.expenses.SpendByCategory(ctx, orgID, from, to)
	if err != nil {
		return nil, err
	}
	topVendors, err := s.expenses.TopVendors(ctx, orgID, from, to, 5)
	if err != nil {
		return nil, err
	}
	trend, err := s.expenses.MonthlyTrend(ctx, orgID, 6, now)
	if err != nil {
		return nil, err
	}
	recent, err := s.expenses.Recent(ctx, orgID, 10)
	if err != nil {
		return nil, err
	}

	var monthCount int64
	for _, c := range byCategory {
		monthCount += c.Count
	}

	return &Dashboard{
		MonthTotal:    monthTotal,
		MonthCount:    monthCount,
		PendingReview: pending,
		ByCategory:    byCategory,
		TopVendors:    topVendors,
		MonthlyTrend:  trend,
		Recent:        recent,
	}, nil
}

// TaxSummary totals approved spend and tax per category over the range.
func (s *Service) TaxSummary(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*TaxSummary, error) {
	expenses, _, err := s.expenses.List(ctx, orgID, repository.ExpenseFilter{
		Status:   models.ExpenseStatusApproved,
		DateFrom: &from,
		DateTo:   &to,
	}, 0, 0)
	if err != nil {
		return nil, err
	}

	categoryNames := map[uuid.UUID]string{}
	if cats, err := s.categories.List(ctx, orgID); err == nil {
		for _, c := range cats {
			categoryNames[c.ID] = c.Name
		}
	}

	summary := &TaxSummary{From: from, To: to}
	totals := map[string]*TaxCategoryTotal{}
	var order []string
	for _, e := range expenses {
		name := models.DefaultCategoryName
		if e.CategoryID != nil {
			if n, ok := categoryNames[*e.CategoryID]; ok {
				name = n
			}
		}
		t, ok := totals[name]
		if !ok {
			t = &TaxCategoryTotal{CategoryName: name}
			totals[name] = t
			order = append(order, name)
		}
		t.Spend = t.Spend.Add(e.Amount)
		t.Tax = t.Tax.Add(e.TaxAmount)
		summary.TotalSpend = summary.TotalSpend.Add(e.Amount)
		summary.TotalTax = summary.TotalTax.Add(e.TaxAmount)
	}
	for _, name := range order {
		summary.Categories = append(summary.Categories, *totals[name])
	}
	return summary, nil
}

func rangeLabel(from, to time.Time) string {
	return fmt.Sprintf("%s_to_%s", from.Format(models.DateLayout), to.Format(models.DateLayout))
}
