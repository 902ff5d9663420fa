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

func TestVendorRepository_Accumulate(t *testing.T) {
	db := newTestDB(t)
	repo := NewVendorRepository(db, testLogger())
	orgID := seedOrg(t, db)
	ctx := context.Background()

	v := &models.Vendor{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Acme Corp",
		NormalizedName: "acme corp",
		TotalAmount:    dec("0.00"),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, nil, v))

	require.NoError(t, repo.Accumulate(ctx, nil, v, dec("100.00"), date(t, "2026-03-10")))
	require.NoError(t, repo.Accumulate(ctx, nil, v, dec("50.25"), date(t, "2026-03-12")))
	// Last-write-wins: a backdated expense still moves the last-seen date.
	require.NoError(t, repo.Accumulate(ctx, nil, v, dec("10.00"), date(t, "2026-02-01")))

	got, err := repo.GetByNormalizedName(ctx, nil, orgID, "acme corp")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ExpenseCount)
	assert.True(t, got.TotalAmount.Equal(dec("160.25")), "got %s", got.TotalAmount)
	require.NotNil(t, got.LastExpenseDate)
	assert.Equal(t, date(t, "2026-02-01"), *got.LastExpenseDate)
}

func TestVendorRepository_UniqueNormalizedName(t *testing.T) {
	db := newTestDB(t)
	repo := NewVendorRepository(db, testLogger())
	orgID := seedOrg(t, db)
	ctx := context.Background()

	v := &models.Vendor{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Acme Corp",
		NormalizedName: "acme corp",
		TotalAmount:    dec("0.00"),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, nil, v))

	clash := &models.Vendor{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "ACME CORP",
		NormalizedName: "acme corp",
		TotalAmount:    dec("0.00"),
		CreatedAt:      time.Now().UTC(),
	}
	err := repo.Create(ctx, nil, clash)
	assert.ErrorIs(t, err, ErrDuplicate)

	// The same normalized name is free in another organization.
	otherOrg := seedOrg(t, db)
	elsewhere := &models.Vendor{
		ID:             uuid.New(),
		OrganizationID: otherOrg,
		Name:           "Acme Corp",
		NormalizedName: "acme corp",
		TotalAmount:    dec("0.00"),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, nil, elsewhere))
}

func TestVendorRepository_SetDefaultCategoryIfUnset(t *testing.T) {
	db := newTestDB(t)
	repo := NewVendorRepository(db, testLogger())
	orgID := seedOrg(t, db)
	travel := seedCategory(t, db, orgID, "Travel")
	meals := seedCategory(t, db, orgID, "Meals")
	ctx := context.Background()

	v := &models.Vendor{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           "Delta",
		NormalizedName: "delta",
		TotalAmount:    dec("0.00"),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, nil, v))

	require.NoError(t, repo.SetDefaultCategoryIfUnset(ctx, nil, v.ID, travel))
	// The first category sticks.
	require.NoError(t, repo.SetDefaultCategoryIfUnset(ctx, nil, v.ID, meals))

	got, err := repo.GetForOrg(ctx, orgID, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DefaultCategoryID)
	assert.Equal(t, travel, *got.DefaultCategoryID)
}
