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

func seedRecurring(t *testing.T, repo *RecurringRepository, orgID uuid.UUID, due time.Time) *models.RecurringExpense {
	t.Helper()
	re := &models.RecurringExpense{
		ID:             uuid.New(),
		OrganizationID: orgID,
		VendorName:     "Adobe",
		Amount:         dec("52.99"),
		Currency:       "USD",
		TaxAmount:      dec("0.00"),
		Frequency:      models.FrequencyMonthly,
		NextDueDate:    due,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), re))
	return re
}

func TestRecurringRepository_AdvanceClaimsOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecurringRepository(db, testLogger())
	orgID := seedOrg(t, db)
	ctx := context.Background()

	due := date(t, "2026-03-01")
	next := date(t, "2026-04-01")
	re := seedRecurring(t, repo, orgID, due)

	claimed, err := repo.Advance(ctx, nil, re.ID, due, next)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The due date moved, so a second claim against the old one fails.
	claimed, err = repo.Advance(ctx, nil, re.ID, due, next)
	require.NoError(t, err)
	assert.False(t, claimed)

	got, err := repo.GetForOrg(ctx, orgID, re.ID)
	require.NoError(t, err)
	assert.Equal(t, next, got.NextDueDate)
	assert.NotNil(t, got.LastCreatedAt)
}

func TestRecurringRepository_ListDue(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecurringRepository(db, testLogger())
	orgA := seedOrg(t, db)
	orgB := seedOrg(t, db)
	ctx := context.Background()

	dueToday := seedRecurring(t, repo, orgA, date(t, "2026-03-15"))
	overdue := seedRecurring(t, repo, orgB, date(t, "2026-03-01"))
	seedRecurring(t, repo, orgA, date(t, "2026-03-16"))

	paused := seedRecurring(t, repo, orgA, date(t, "2026-03-01"))
	paused.IsActive = false
	require.NoError(t, repo.Update(ctx, paused))

	// Templates from every organization are picked up in one sweep.
	due, err := repo.ListDue(ctx, date(t, "2026-03-15"))
	require.NoError(t, err)
	require.Len(t, due, 2)

	ids := map[uuid.UUID]bool{due[0].ID: true, due[1].ID: true}
	assert.True(t, ids[dueToday.ID])
	assert.True(t, ids[overdue.ID])
}
