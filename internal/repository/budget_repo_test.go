package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

func seedBudget(t *testing.T, repo *BudgetRepository, orgID uuid.UUID, categoryID *uuid.UUID) *models.Budget {
	t.Helper()
	b := &models.Budget{
		ID:             uuid.New(),
		OrganizationID: orgID,
		CategoryID:     categoryID,
		MonthlyLimit:   dec("1000.00"),
		AlertAt80:      true,
		AlertAt100:     true,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}

func TestBudgetRepository_InsertAlertIdempotency(t *testing.T) {
	db := newTestDB(t)
	repo := NewBudgetRepository(db, testLogger())
	orgID := seedOrg(t, db)
	b := seedBudget(t, repo, orgID, nil)
	ctx := context.Background()

	month := date(t, "2026-03-01")
	alert := &models.BudgetAlert{
		ID:             uuid.New(),
		OrganizationID: orgID,
		BudgetID:       b.ID,
		AlertType:      models.AlertThreshold80,
		Month:          month,
		ActualAmount:   dec("850.00"),
		BudgetAmount:   dec("1000.00"),
		Percentage:     dec("85.00"),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.InsertAlert(ctx, alert))

	// Same budget, type and month: the unique key rejects the second insert.
	dup := *alert
	dup.ID = uuid.New()
	err := repo.InsertAlert(ctx, &dup)
	assert.ErrorIs(t, err, ErrAlertExists)

	// A different threshold in the same month is a new alert.
	hundred := *alert
	hundred.ID = uuid.New()
	hundred.AlertType = models.AlertThreshold100
	require.NoError(t, repo.InsertAlert(ctx, &hundred))

	// Same threshold next month fires again.
	april := *alert
	april.ID = uuid.New()
	april.Month = date(t, "2026-04-01")
	require.NoError(t, repo.InsertAlert(ctx, &april))

	alerts, err := repo.ListAlerts(ctx, orgID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 3)
}

func TestBudgetRepository_ListActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewBudgetRepository(db, testLogger())
	orgID := seedOrg(t, db)
	ctx := context.Background()

	active := seedBudget(t, repo, orgID, nil)
	inactive := seedBudget(t, repo, orgID, nil)
	inactive.IsActive = false
	require.NoError(t, repo.Update(ctx, inactive))

	budgets, err := repo.ListActive(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, active.ID, budgets[0].ID)
}
