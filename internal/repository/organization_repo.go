package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/models"
)

// OrganizationRepository persists organizations, users and memberships.
type OrganizationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrganizationRepository(db *sql.DB, logger *zap.Logger) *OrganizationRepository {
	return &OrganizationRepository{db: db, logger: logger}
}

func (r *OrganizationRepository) CreateOrganization(ctx context.Context, tx *sql.Tx, org *models.Organization) error {
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`INSERT INTO organizations (id, name, slug, created_at)
		 VALUES (?, ?, ?, ?)`,
		org.ID.String(), org.Name, org.Slug, org.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("organization slug %q: %w", org.Slug, ErrDuplicate)
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM organizations WHERE id = ?`,
		orgID.String())

	var org models.Organization
	var id string
	if err := row.Scan(&id, &org.Name, &org.Slug, &org.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	org.ID = uuid.MustParse(id)
	return &org, nil
}

func (r *OrganizationRepository) CreateUser(ctx context.Context, tx *sql.Tx, u *models.User) error {
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID.String(), strings.ToLower(u.Email), u.PasswordHash, u.FullName, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user email %q: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, full_name, created_at
		 FROM users WHERE email = ?`, strings.ToLower(email)))
}

func (r *OrganizationRepository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, full_name, created_at
		 FROM users WHERE id = ?`, userID.String()))
}

func (r *OrganizationRepository) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var id string
	if err := row.Scan(&id, &u.Email, &u.PasswordHash, &u.FullName, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.ID = uuid.MustParse(id)
	return &u, nil
}

func (r *OrganizationRepository) AddMember(ctx context.Context, tx *sql.Tx, m *models.OrganizationMember) error {
	_, err := dbtx(r.db, tx).ExecContext(ctx,
		`INSERT INTO organization_members (id, user_id, organization_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID.String(), m.UserID.String(), m.OrganizationID.String(), m.Role, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("membership: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// MemberRole returns the caller's role in the organization, or ErrNotFound
// when the user is not a member.
func (r *OrganizationRepository) MemberRole(ctx context.Context, userID, orgID uuid.UUID) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM organization_members WHERE user_id = ? AND organization_id = ?`,
		userID.String(), orgID.String()).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("member role: %w", err)
	}
	return role, nil
}

// ListOrganizationsForUser returns every organization the user belongs to.
func (r *OrganizationRepository) ListOrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT o.id, o.name, o.slug, o.created_at
		 FROM organizations o
		 JOIN organization_members m ON m.organization_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.created_at`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		var org models.Organization
		var id string
		if err := rows.Scan(&id, &org.Name, &org.Slug, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		org.ID = uuid.MustParse(id)
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

// AdminEmails returns the email addresses of OWNER and ADMIN members, used
// as the recipient list for alert notifications.
func (r *OrganizationRepository) AdminEmails(ctx context.Context, orgID uuid.UUID) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.email
		 FROM users u
		 JOIN organization_members m ON m.user_id = u.id
		 WHERE m.organization_id = ? AND m.role IN (?, ?)`,
		orgID.String(), models.RoleOwner, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("admin emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
