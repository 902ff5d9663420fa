package budget

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/notification"
	"github.com/invoiceai/invoiceai-server/internal/repository"
)

type mockDispatcher struct {
	budgetAlerts chan *notification.BudgetAlertNotice
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{budgetAlerts: make(chan *notification.BudgetAlertNotice, 8)}
}

func (m *mockDispatcher) BudgetAlert(ctx context.Context, n *notification.BudgetAlertNotice) error {
	m.budgetAlerts <- n
	return nil
}

func (m *mockDispatcher) PolicyViolation(ctx context.Context, n *notification.PolicyViolationNotice) error {
	return nil
}

func (m *mockDispatcher) ProcessingFailed(ctx context.Context, n *notification.ProcessingFailedNotice) error {
	return nil
}

func (m *mockDispatcher) Export(ctx context.Context, n *notification.ExportNotice) error {
	return nil
}

func (m *mockDispatcher) waitForAlert(t *testing.T) *notification.BudgetAlertNotice {
	t.Helper()
	select {
	case n := <-m.budgetAlerts:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no budget alert notification sent")
		return nil
	}
}

type monitorFixture struct {
	monitor    *Monitor
	budgets    *repository.BudgetRepository
	expenses   *repository.ExpenseRepository
	dispatcher *mockDispatcher
	db         *sql.DB
	orgID      uuid.UUID
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_initial_schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	logger := zap.NewNop()
	budgets := repository.NewBudgetRepository(db, logger)
	expenses := repository.NewExpenseRepository(db, logger)
	categories := repository.NewCategoryRepository(db, logger)
	orgs := repository.NewOrganizationRepository(db, logger)
	dispatcher := newMockDispatcher()

	orgID := uuid.New()
	_, err = db.Exec(`INSERT INTO organizations (id, name, slug) VALUES (?, ?, ?)`,
		orgID.String(), "Test Org", "test-org-"+orgID.String()[:8])
	require.NoError(t, err)

	return &monitorFixture{
		monitor:    NewMonitor(budgets, expenses, categories, orgs, dispatcher, logger),
		budgets:    budgets,
		expenses:   expenses,
		dispatcher: dispatcher,
		db:         db,
		orgID:      orgID,
	}
}

func (f *monitorFixture) seedBudget(t *testing.T, categoryID *uuid.UUID, limit string) *models.Budget {
	t.Helper()
	b := &models.Budget{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		CategoryID:     categoryID,
		MonthlyLimit:   decimal.RequireFromString(limit),
		AlertAt80:      true,
		AlertAt100:     true,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.budgets.Create(context.Background(), b))
	return b
}

func (f *monitorFixture) seedApproved(t *testing.T, amount, day string, categoryID *uuid.UUID) *models.Expense {
	t.Helper()
	d, err := time.Parse(models.DateLayout, day)
	require.NoError(t, err)
	e := &models.Expense{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		CategoryID:     categoryID,
		VendorName:     "Acme Corp",
		Amount:         decimal.RequireFromString(amount),
		Currency:       "USD",
		Date:           d,
		Status:         models.ExpenseStatusApproved,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.expenses.Create(context.Background(), nil, e))
	return e
}

func TestMonitor_FiresAt80Percent(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedBudget(t, nil, "1000.00")

	expense := f.seedApproved(t, "850.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(context.Background(), expense)
	require.NoError(t, err)

	require.Len(t, result.Fired, 1)
	alert := result.Fired[0]
	assert.Equal(t, models.AlertThreshold80, alert.AlertType)
	assert.True(t, alert.ActualAmount.Equal(decimal.RequireFromString("850.00")))
	assert.True(t, alert.Percentage.Equal(decimal.RequireFromString("85.00")), alert.Percentage.String())

	notice := f.dispatcher.waitForAlert(t)
	assert.Equal(t, alert.ID, notice.Alert.ID)
}

func TestMonitor_HundredSuppressesEighty(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedBudget(t, nil, "1000.00")

	expense := f.seedApproved(t, "1200.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(context.Background(), expense)
	require.NoError(t, err)

	require.Len(t, result.Fired, 1)
	assert.Equal(t, models.AlertThreshold100, result.Fired[0].AlertType)
	f.dispatcher.waitForAlert(t)
}

func TestMonitor_ExactBoundaryFires(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedBudget(t, nil, "1000.00")

	expense := f.seedApproved(t, "800.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(context.Background(), expense)
	require.NoError(t, err)

	require.Len(t, result.Fired, 1)
	assert.Equal(t, models.AlertThreshold80, result.Fired[0].AlertType)
	f.dispatcher.waitForAlert(t)
}

func TestMonitor_BelowThresholdIsQuiet(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedBudget(t, nil, "1000.00")

	expense := f.seedApproved(t, "500.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(context.Background(), expense)
	require.NoError(t, err)
	assert.Empty(t, result.Fired)
}

func TestMonitor_AlertFiresOncePerMonth(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedBudget(t, nil, "1000.00")
	ctx := context.Background()

	first := f.seedApproved(t, "850.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(ctx, first)
	require.NoError(t, err)
	require.Len(t, result.Fired, 1)
	f.dispatcher.waitForAlert(t)

	// Still between 80% and 100%: the 80% alert already exists for the month.
	second := f.seedApproved(t, "50.00", "2026-03-15", nil)
	result, err = f.monitor.CheckAfterApproval(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, result.Fired)

	alerts, err := f.budgets.ListAlerts(ctx, f.orgID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestMonitor_EscalatesToHundredAfterEighty(t *testing.T) {
	f := newMonitorFixture(t)
	f.seedBudget(t, nil, "1000.00")
	ctx := context.Background()

	first := f.seedApproved(t, "850.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(ctx, first)
	require.NoError(t, err)
	require.Len(t, result.Fired, 1)
	require.Equal(t, models.AlertThreshold80, result.Fired[0].AlertType)
	f.dispatcher.waitForAlert(t)

	second := f.seedApproved(t, "300.00", "2026-03-20", nil)
	result, err = f.monitor.CheckAfterApproval(ctx, second)
	require.NoError(t, err)
	require.Len(t, result.Fired, 1)
	assert.Equal(t, models.AlertThreshold100, result.Fired[0].AlertType)
	f.dispatcher.waitForAlert(t)

	alerts, err := f.budgets.ListAlerts(ctx, f.orgID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestMonitor_CategoryBudgetOnlyCountsItsCategory(t *testing.T) {
	f := newMonitorFixture(t)
	travelID := uuid.New()
	_, err := f.db.Exec(`INSERT INTO categories (id, organization_id, name) VALUES (?, ?, ?)`,
		travelID.String(), f.orgID.String(), "Travel")
	require.NoError(t, err)
	f.seedBudget(t, &travelID, "500.00")

	// Spend outside the category does not count against the category budget.
	f.seedApproved(t, "900.00", "2026-03-05", nil)

	travel := f.seedApproved(t, "450.00", "2026-03-10", &travelID)
	result, err := f.monitor.CheckAfterApproval(context.Background(), travel)
	require.NoError(t, err)

	require.Len(t, result.Fired, 1)
	alert := result.Fired[0]
	assert.Equal(t, models.AlertThreshold80, alert.AlertType)
	assert.True(t, alert.ActualAmount.Equal(decimal.RequireFromString("450.00")))
	f.dispatcher.waitForAlert(t)
}

func TestMonitor_CategoryBudgetSkippedForOtherCategories(t *testing.T) {
	f := newMonitorFixture(t)
	travelID := uuid.New()
	_, err := f.db.Exec(`INSERT INTO categories (id, organization_id, name) VALUES (?, ?, ?)`,
		travelID.String(), f.orgID.String(), "Travel")
	require.NoError(t, err)
	f.seedBudget(t, &travelID, "500.00")

	// An uncategorized expense never triggers a category-scoped budget.
	uncategorized := f.seedApproved(t, "9999.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(context.Background(), uncategorized)
	require.NoError(t, err)
	assert.Empty(t, result.Fired)
}

func TestMonitor_InactiveBudgetIgnored(t *testing.T) {
	f := newMonitorFixture(t)
	b := f.seedBudget(t, nil, "1000.00")
	b.IsActive = false
	require.NoError(t, f.budgets.Update(context.Background(), b))

	expense := f.seedApproved(t, "5000.00", "2026-03-10", nil)
	result, err := f.monitor.CheckAfterApproval(context.Background(), expense)
	require.NoError(t, err)
	assert.Empty(t, result.Fired)
}
