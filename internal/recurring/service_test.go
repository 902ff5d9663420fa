package recurring

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/internal/vendor"
	"github.com/invoiceai/invoiceai-server/pkg/database"
)

type recurringFixture struct {
	service  *Service
	expenses *repository.ExpenseRepository
	db       *database.DB
	orgID    uuid.UUID
}

func newRecurringFixture(t *testing.T) *recurringFixture {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_initial_schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	templates := repository.NewRecurringRepository(db.DB, logger)
	expenses := repository.NewExpenseRepository(db.DB, logger)
	categories := repository.NewCategoryRepository(db.DB, logger)
	vendors := repository.NewVendorRepository(db.DB, logger)
	aggregator := vendor.NewAggregator(vendors, logger)

	orgID := uuid.New()
	_, err = db.Exec(`INSERT INTO organizations (id, name, slug) VALUES (?, ?, ?)`,
		orgID.String(), "Test Org", "test-org-"+orgID.String()[:8])
	require.NoError(t, err)

	return &recurringFixture{
		service:  NewService(db, templates, expenses, categories, aggregator, logger),
		expenses: expenses,
		db:       db,
		orgID:    orgID,
	}
}

func templateInput(t *testing.T, vendorName, amount, frequency, due string) CreateTemplateInput {
	t.Helper()
	d, err := time.Parse(models.DateLayout, due)
	require.NoError(t, err)
	return CreateTemplateInput{
		VendorName:  vendorName,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Frequency:   frequency,
		NextDueDate: d,
		IsActive:    true,
	}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestService_CreateTemplateValidation(t *testing.T) {
	f := newRecurringFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateTemplateInput)
	}{
		{name: "blank vendor", mutate: func(in *CreateTemplateInput) { in.VendorName = " " }},
		{name: "zero amount", mutate: func(in *CreateTemplateInput) { in.Amount = decimal.Zero }},
		{name: "unknown frequency", mutate: func(in *CreateTemplateInput) { in.Frequency = "FORTNIGHTLY" }},
		{name: "zero due date", mutate: func(in *CreateTemplateInput) { in.NextDueDate = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := templateInput(t, "CloudHost", "29.99", models.FrequencyMonthly, "2026-04-01")
			tt.mutate(&in)
			_, err := f.service.Create(ctx, f.orgID, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestService_CreateFromExpense(t *testing.T) {
	f := newRecurringFixture(t)
	ctx := context.Background()

	e := &models.Expense{
		ID:             uuid.New(),
		OrganizationID: f.orgID,
		VendorName:     "CloudHost",
		Amount:         decimal.RequireFromString("29.99"),
		Currency:       "USD",
		Date:           day(t, "2026-03-15"),
		Description:    "hosting",
		Status:         models.ExpenseStatusApproved,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.expenses.Create(ctx, nil, e))

	re, err := f.service.CreateFromExpense(ctx, f.orgID, e.ID, models.FrequencyMonthly)
	require.NoError(t, err)
	assert.Equal(t, "CloudHost", re.VendorName)
	assert.Equal(t, day(t, "2026-04-15"), re.NextDueDate)
	require.NotNil(t, re.SourceExpenseID)
	assert.Equal(t, e.ID, *re.SourceExpenseID)
	assert.True(t, re.IsActive)

	_, err = f.service.CreateFromExpense(ctx, f.orgID, e.ID, "DAILY")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.service.CreateFromExpense(ctx, f.orgID, uuid.New(), models.FrequencyMonthly)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestService_ProcessDueMaterializesApprovedExpense(t *testing.T) {
	f := newRecurringFixture(t)
	ctx := context.Background()

	re, err := f.service.Create(ctx, f.orgID, templateInput(t, "CloudHost", "29.99", models.FrequencyMonthly, "2026-03-01"))
	require.NoError(t, err)

	today := day(t, "2026-03-01")
	created, err := f.service.ProcessDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	expenses, total, err := f.expenses.List(ctx, f.orgID, repository.ExpenseFilter{}, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	e := expenses[0]
	assert.Equal(t, models.ExpenseStatusApproved, e.Status)
	assert.Equal(t, "CloudHost", e.VendorName)
	assert.Equal(t, day(t, "2026-03-01"), e.Date)
	assert.True(t, e.Amount.Equal(decimal.RequireFromString("29.99")))

	// The schedule moved one period forward and the run is recorded.
	advanced, err := f.service.Get(ctx, f.orgID, re.ID)
	require.NoError(t, err)
	assert.Equal(t, day(t, "2026-04-01"), advanced.NextDueDate)
	assert.NotNil(t, advanced.LastCreatedAt)
}

func TestService_ProcessDueIsIdempotentPerPeriod(t *testing.T) {
	f := newRecurringFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.orgID, templateInput(t, "CloudHost", "29.99", models.FrequencyMonthly, "2026-03-01"))
	require.NoError(t, err)

	today := day(t, "2026-03-01")
	created, err := f.service.ProcessDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	created, err = f.service.ProcessDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	_, total, err := f.expenses.List(ctx, f.orgID, repository.ExpenseFilter{}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestService_ProcessDueSkipsFutureAndInactive(t *testing.T) {
	f := newRecurringFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.orgID, templateInput(t, "Future Vendor", "10.00", models.FrequencyMonthly, "2026-05-01"))
	require.NoError(t, err)

	inactive := templateInput(t, "Paused Vendor", "10.00", models.FrequencyMonthly, "2026-03-01")
	inactive.IsActive = false
	_, err = f.service.Create(ctx, f.orgID, inactive)
	require.NoError(t, err)

	created, err := f.service.ProcessDue(ctx, day(t, "2026-03-15"))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestService_ProcessDueCatchesUpOverdueTemplate(t *testing.T) {
	f := newRecurringFixture(t)
	ctx := context.Background()

	// Due in January, processed in March: one expense per run, dated with
	// the period it covers.
	_, err := f.service.Create(ctx, f.orgID, templateInput(t, "CloudHost", "29.99", models.FrequencyMonthly, "2026-01-10"))
	require.NoError(t, err)

	today := day(t, "2026-03-15")
	for _, want := range []string{"2026-01-10", "2026-02-10", "2026-03-10"} {
		created, err := f.service.ProcessDue(ctx, today)
		require.NoError(t, err)
		require.Equal(t, 1, created, "period %s", want)
	}

	created, err := f.service.ProcessDue(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	expenses, _, err := f.expenses.List(ctx, f.orgID, repository.ExpenseFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, expenses, 3)
}

func TestService_UpdateAndDeactivate(t *testing.T) {
	f := newRecurringFixture(t)
	ctx := context.Background()

	re, err := f.service.Create(ctx, f.orgID, templateInput(t, "CloudHost", "29.99", models.FrequencyMonthly, "2026-03-01"))
	require.NoError(t, err)

	in := templateInput(t, "CloudHost", "39.99", models.FrequencyMonthly, "2026-03-01")
	in.IsActive = false
	updated, err := f.service.Update(ctx, f.orgID, re.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("39.99")))
	assert.False(t, updated.IsActive)

	created, err := f.service.ProcessDue(ctx, day(t, "2026-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}
