package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

// defaultCategories are seeded for every new organization.
var defaultCategories = []struct {
	Name  string
	Color string
}{
	{"Travel", "#3B82F6"},
	{"Meals", "#F59E0B"},
	{"Office Supplies", "#10B981"},
	{"Software", "#8B5CF6"},
	{"Utilities", "#06B6D4"},
	{"Marketing", "#EC4899"},
	{"Professional Services", "#6366F1"},
	{models.DefaultCategoryName, "#6B7280"},
}

type CategoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCategoryRepository(db *sql.DB, logger *zap.Logger) *CategoryRepository {
	return &CategoryRepository{db: db, logger: logger}
}

func (r *CategoryRepository) Create(ctx context.Context, tx *sql.Tx, c *models.Category) error {
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`INSERT INTO categories (id, organization_id, name, color, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), c.OrganizationID.String(), c.Name, c.Color, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", c.Name, ErrDuplicate)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// SeedDefaults creates the standard category set for a new organization.
func (r *CategoryRepository) SeedDefaults(ctx context.Context, tx *sql.Tx, orgID uuid.UUID) error {
	now := time.Now().UTC()
	for _, dc := range defaultCategories {
		c := &models.Category{
			ID:             uuid.New(),
			OrganizationID: orgID,
			Name:           dc.Name,
			Color:          dc.Color,
			CreatedAt:      now,
		}
		if err := r.Create(ctx, tx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Category, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, color, created_at
		 FROM categories WHERE id = ? AND organization_id = ?`,
		id.String(), orgID.String()))
}

// GetByName matches exactly on the stored name.
func (r *CategoryRepository) GetByName(ctx context.Context, orgID uuid.UUID, name string) (*models.Category, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, color, created_at
		 FROM categories WHERE organization_id = ? AND name = ?`,
		orgID.String(), name))
}

func (r *CategoryRepository) List(ctx context.Context, orgID uuid.UUID) ([]*models.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, organization_id, name, color, created_at
		 FROM categories WHERE organization_id = ? ORDER BY name`,
		orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []*models.Category
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *CategoryRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND organization_id = ?`,
		id.String(), orgID.String())
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CategoryRepository) scanOne(row *sql.Row) (*models.Category, error) {
	var c models.Category
	var id, orgID string
	if err := row.Scan(&id, &orgID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	c.ID = uuid.MustParse(id)
	c.OrganizationID = uuid.MustParse(orgID)
	return &c, nil
}

func (r *CategoryRepository) scanRow(rows *sql.Rows) (*models.Category, error) {
	var c models.Category
	var id, orgID string
	if err := rows.Scan(&id, &orgID, &c.Name, &c.Color, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan category: %w", err)
	}
	c.ID = uuid.MustParse(id)
	c.OrganizationID = uuid.MustParse(orgID)
	return &c, nil
}
