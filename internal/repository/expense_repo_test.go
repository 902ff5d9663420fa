package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

func TestExpenseRepository_FindDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewExpenseRepository(db, testLogger())
	orgID := seedOrg(t, db)
	otherOrg := seedOrg(t, db)
	ctx := context.Background()

	day := date(t, "2026-03-10")
	first := seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Acme Corp",
		Amount:         dec("120.50"),
		Date:           day,
		CreatedAt:      time.Now().UTC().Add(-2 * time.Hour),
	})
	second := seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Acme Corp",
		Amount:         dec("120.50"),
		Date:           day,
		CreatedAt:      time.Now().UTC().Add(-1 * time.Hour),
	})
	// Same key in a different org must never match.
	seedExpense(t, repo, &models.Expense{
		OrganizationID: otherOrg,
		VendorName:     "Acme Corp",
		Amount:         dec("120.50"),
		Date:           day,
	})

	t.Run("returns earliest match", func(t *testing.T) {
		got, err := repo.FindDuplicate(ctx, orgID, "Acme Corp", dec("120.50"), day, nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("excludes the expense being checked", func(t *testing.T) {
		got, err := repo.FindDuplicate(ctx, orgID, "Acme Corp", dec("120.50"), day, &first.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("amount compares at two decimal places", func(t *testing.T) {
		got, err := repo.FindDuplicate(ctx, orgID, "Acme Corp", dec("120.5"), day, nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("no match on different amount", func(t *testing.T) {
		_, err := repo.FindDuplicate(ctx, orgID, "Acme Corp", dec("120.51"), day, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no match on different date", func(t *testing.T) {
		_, err := repo.FindDuplicate(ctx, orgID, "Acme Corp", dec("120.50"), date(t, "2026-03-11"), nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestExpenseRepository_SetReviewed(t *testing.T) {
	db := newTestDB(t)
	repo := NewExpenseRepository(db, testLogger())
	orgID := seedOrg(t, db)
	reviewer := seedUser(t, db)
	ctx := context.Background()

	e := seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Acme Corp",
		Amount:         dec("50.00"),
		Date:           date(t, "2026-03-01"),
	})

	claimed, err := repo.SetReviewed(ctx, orgID, e.ID, models.ExpenseStatusApproved, reviewer, "")
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second transition loses the claim.
	claimed, err = repo.SetReviewed(ctx, orgID, e.ID, models.ExpenseStatusRejected, reviewer, "late")
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.GetForOrg(ctx, orgID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExpenseStatusApproved, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, reviewer, *got.ReviewedBy)
	assert.NotNil(t, got.ReviewedAt)
}

func TestExpenseRepository_SumApproved(t *testing.T) {
	db := newTestDB(t)
	repo := NewExpenseRepository(db, testLogger())
	orgID := seedOrg(t, db)
	ctx := context.Background()

	for _, amt := range []string{"0.10", "0.20", "0.30"} {
		seedExpense(t, repo, &models.Expense{
			OrganizationID: orgID,
			VendorName:     "Acme Corp",
			Amount:         dec(amt),
			Date:           date(t, "2026-03-05"),
			Status:         models.ExpenseStatusApproved,
		})
	}
	// Pending and out-of-range rows are excluded.
	seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Acme Corp",
		Amount:         dec("99.00"),
		Date:           date(t, "2026-03-05"),
	})
	seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Acme Corp",
		Amount:         dec("99.00"),
		Date:           date(t, "2026-04-01"),
		Status:         models.ExpenseStatusApproved,
	})

	total, err := repo.SumApproved(ctx, orgID, date(t, "2026-03-01"), date(t, "2026-03-31"))
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("0.60")), "got %s", total)
}

func TestExpenseRepository_SpendByCategory(t *testing.T) {
	db := newTestDB(t)
	repo := NewExpenseRepository(db, testLogger())
	orgID := seedOrg(t, db)
	travel := seedCategory(t, db, orgID, "Travel")
	ctx := context.Background()

	seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		CategoryID:     &travel,
		VendorName:     "Delta",
		Amount:         dec("400.00"),
		Date:           date(t, "2026-03-02"),
		Status:         models.ExpenseStatusApproved,
	})
	seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		CategoryID:     &travel,
		VendorName:     "United",
		Amount:         dec("100.00"),
		Date:           date(t, "2026-03-03"),
		Status:         models.ExpenseStatusApproved,
	})
	// Uncategorized spend lands under the default name.
	seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Corner Store",
		Amount:         dec("25.00"),
		Date:           date(t, "2026-03-04"),
		Status:         models.ExpenseStatusApproved,
	})

	spend, err := repo.SpendByCategory(ctx, orgID, date(t, "2026-03-01"), date(t, "2026-03-31"))
	require.NoError(t, err)
	require.Len(t, spend, 2)

	assert.Equal(t, "Travel", spend[0].CategoryName)
	assert.True(t, spend[0].Total.Equal(dec("500.00")), "got %s", spend[0].Total)
	assert.Equal(t, int64(2), spend[0].Count)

	assert.Equal(t, models.DefaultCategoryName, spend[1].CategoryName)
	assert.True(t, spend[1].Total.Equal(dec("25.00")))
}

func TestExpenseRepository_ListFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewExpenseRepository(db, testLogger())
	orgID := seedOrg(t, db)
	ctx := context.Background()

	seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Acme Corp",
		Amount:         dec("10.00"),
		Date:           date(t, "2026-01-05"),
		Status:         models.ExpenseStatusApproved,
		Description:    "printer paper",
	})
	seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Globex",
		Amount:         dec("250.00"),
		Date:           date(t, "2026-02-10"),
	})

	tests := []struct {
		name   string
		filter ExpenseFilter
		want   int
	}{
		{"by status", ExpenseFilter{Status: models.ExpenseStatusApproved}, 1},
		{"by vendor", ExpenseFilter{VendorName: "Globex"}, 1},
		{"by date range", ExpenseFilter{DateFrom: timePtrOf(date(t, "2026-02-01"))}, 1},
		{"by min amount", ExpenseFilter{MinAmount: decPtrOf(dec("100"))}, 1},
		{"by search", ExpenseFilter{Search: "paper"}, 1},
		{"no filter", ExpenseFilter{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, total, err := repo.List(ctx, orgID, tt.filter, 0, 0)
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
			assert.Equal(t, int64(tt.want), total)
		})
	}
}

func timePtrOf(t time.Time) *time.Time { return &t }

func decPtrOf(d decimal.Decimal) *decimal.Decimal { return &d }

func TestExpenseRepository_GetForOrgScoping(t *testing.T) {
	db := newTestDB(t)
	repo := NewExpenseRepository(db, testLogger())
	orgID := seedOrg(t, db)
	otherOrg := seedOrg(t, db)
	ctx := context.Background()

	e := seedExpense(t, repo, &models.Expense{
		OrganizationID: orgID,
		VendorName:     "Acme Corp",
		Amount:         dec("10.00"),
		Date:           date(t, "2026-01-05"),
	})

	_, err := repo.GetForOrg(ctx, otherOrg, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetForOrg(ctx, orgID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
