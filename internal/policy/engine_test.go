package policy

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

type engineFixture struct {
	engine   *Engine
	policies *repository.PolicyRepository
	expenses *repository.ExpenseRepository
	db       *sql.DB
	orgID    uuid.UUID
}

func newEngineFixture(t *testing.T) *engineFixture {
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
	policies := repository.NewPolicyRepository(db, logger)
	expenses := repository.NewExpenseRepository(db, logger)
	categories := repository.NewCategoryRepository(db, logger)
	orgs := repository.NewOrganizationRepository(db, logger)

	orgID := uuid.New()
	_, err = db.Exec(`INSERT INTO organizations (id, name, slug) VALUES (?, ?, ?)`,
		orgID.String(), "Test Org", "test-org-"+orgID.String()[:8])
	require.NoError(t, err)

	return &engineFixture{
		engine:   NewEngine(policies, expenses, categories, orgs, notification.NewNopDispatcher(logger), logger),
		policies: policies,
		expenses: expenses,
		db:       db,
		orgID:    orgID,
	}
}

func (f *engineFixture) seedCategory(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := f.db.Exec(`INSERT INTO categories (id, organization_id, name) VALUES (?, ?, ?)`,
		id.String(), f.orgID.String(), name)
	require.NoError(t, err)
	return id
}

func (f *engineFixture) seedPolicy(t *testing.T, p *models.ExpensePolicy) *models.ExpensePolicy {
	t.Helper()
	p.ID = uuid.New()
	p.OrganizationID = f.orgID
	p.IsActive = true
	p.CreatedAt = time.Now().UTC()
	require.NoError(t, f.policies.Create(context.Background(), p))
	return p
}

func (f *engineFixture) expense(t *testing.T, amount, day string, categoryID *uuid.UUID, description string) *models.Expense {
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
		Description:    description,
		Status:         models.ExpenseStatusNeedsReview,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.expenses.Create(context.Background(), nil, e))
	return e
}

func (f *engineFixture) seedApproved(t *testing.T, amount, day string, categoryID *uuid.UUID) {
	t.Helper()
	d, err := time.Parse(models.DateLayout, day)
	require.NoError(t, err)
	e := &models.Expense{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		CategoryID:     categoryID,
		VendorName:     "Seed Vendor",
		Amount:         decimal.RequireFromString(amount),
		Currency:       "USD",
		Date:           d,
		Status:         models.ExpenseStatusApproved,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.expenses.Create(context.Background(), nil, e))
}

func threshold(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestEngine_MaxAmountPerExpense(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPolicy(t, &models.ExpensePolicy{
		Name:            "Expense cap",
		RuleType:        models.RuleMaxAmountPerExpense,
		ThresholdAmount: threshold("500.00"),
	})
	ctx := context.Background()

	t.Run("over the cap violates", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "500.01", "2026-03-10", nil, "client dinner"))
		require.NoError(t, err)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "exceeds the per-expense limit")
	})

	t.Run("exactly the cap passes", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "500.00", "2026-03-11", nil, "client dinner"))
		require.NoError(t, err)
		assert.Empty(t, violations)
	})
}

func TestEngine_MaxAmountScopedToCategory(t *testing.T) {
	f := newEngineFixture(t)
	travelID := f.seedCategory(t, "Travel")
	mealsID := f.seedCategory(t, "Meals")
	f.seedPolicy(t, &models.ExpensePolicy{
		Name:            "Travel cap",
		RuleType:        models.RuleMaxAmountPerExpense,
		CategoryID:      &travelID,
		ThresholdAmount: threshold("300.00"),
	})
	ctx := context.Background()

	violations, err := f.engine.Evaluate(ctx, f.expense(t, "999.00", "2026-03-10", &mealsID, "team lunch"))
	require.NoError(t, err)
	assert.Empty(t, violations)

	violations, err = f.engine.Evaluate(ctx, f.expense(t, "999.00", "2026-03-10", &travelID, "flight"))
	require.NoError(t, err)
	assert.Len(t, violations, 1)
}

func TestEngine_CategoryMonthlyProjection(t *testing.T) {
	f := newEngineFixture(t)
	travelID := f.seedCategory(t, "Travel")
	f.seedPolicy(t, &models.ExpensePolicy{
		Name:            "Monthly travel budget",
		RuleType:        models.RuleMaxAmountPerCategoryMonthly,
		CategoryID:      &travelID,
		ThresholdAmount: threshold("500.00"),
	})
	f.seedApproved(t, "400.00", "2026-03-02", &travelID)
	ctx := context.Background()

	t.Run("projection over the limit violates", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "150.00", "2026-03-15", &travelID, "hotel"))
		require.NoError(t, err)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0].Message, "exceeds the monthly limit")
		assert.Contains(t, violations[0].Message, "550.00")
	})

	t.Run("projection at the limit passes", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "50.00", "2026-03-16", &travelID, "taxi"))
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("other months do not count", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "450.00", "2026-04-01", &travelID, "flight"))
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("uncategorized expense skipped", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "9999.00", "2026-03-20", nil, "misc"))
		require.NoError(t, err)
		assert.Empty(t, violations)
	})
}

func TestEngine_RequiredField(t *testing.T) {
	f := newEngineFixture(t)
	travelID := f.seedCategory(t, "Travel")
	f.seedPolicy(t, &models.ExpensePolicy{
		Name:          "Description required",
		RuleType:      models.RuleRequiredField,
		RequiredField: models.RequiredFieldDescription,
	})
	f.seedPolicy(t, &models.ExpensePolicy{
		Name:          "Category required",
		RuleType:      models.RuleRequiredField,
		RequiredField: models.RequiredFieldCategory,
	})
	ctx := context.Background()

	t.Run("both fields present", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "20.00", "2026-03-10", &travelID, "taxi"))
		require.NoError(t, err)
		assert.Empty(t, violations)
	})

	t.Run("blank description and no category", func(t *testing.T) {
		violations, err := f.engine.Evaluate(ctx, f.expense(t, "20.00", "2026-03-11", nil, "   "))
		require.NoError(t, err)
		require.Len(t, violations, 2)

		messages := []string{violations[0].Message, violations[1].Message}
		assert.Contains(t, messages[0]+messages[1], "description is required")
		assert.Contains(t, messages[0]+messages[1], "category is required")
	})
}

func TestEngine_InactivePolicyIgnored(t *testing.T) {
	f := newEngineFixture(t)
	p := f.seedPolicy(t, &models.ExpensePolicy{
		Name:            "Retired cap",
		RuleType:        models.RuleMaxAmountPerExpense,
		ThresholdAmount: threshold("10.00"),
	})
	p.IsActive = false
	require.NoError(t, f.policies.Update(context.Background(), p))

	violations, err := f.engine.Evaluate(context.Background(), f.expense(t, "9999.00", "2026-03-10", nil, "anything"))
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestEngine_ViolationsArePersisted(t *testing.T) {
	f := newEngineFixture(t)
	f.seedPolicy(t, &models.ExpensePolicy{
		Name:            "Expense cap",
		RuleType:        models.RuleMaxAmountPerExpense,
		ThresholdAmount: threshold("100.00"),
	})
	ctx := context.Background()

	expense := f.expense(t, "250.00", "2026-03-10", nil, "conference")
	violations, err := f.engine.Evaluate(ctx, expense)
	require.NoError(t, err)
	require.Len(t, violations, 1)

	stored, err := f.policies.ListViolationsForExpense(ctx, f.orgID, expense.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, violations[0].ID, stored[0].ID)
	assert.Equal(t, violations[0].Message, stored[0].Message)
}
