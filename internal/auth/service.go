package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/invoiceai/invoiceai-server/internal/models"
	"github.com/invoiceai/invoiceai-server/internal/repository"
	"github.com/invoiceai/invoiceai-server/pkg/database"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotMember          = errors.New("user is not a member of this organization")
)

const minPasswordLength = 8

type RegisterInput struct {
	OrganizationName string `json:"organization_name" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8"`
	FullName         string `json:"full_name" binding:"required"`
}

type LoginInput struct {
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required"`
	OrganizationID string `json:"organization_id"`
}

// Session is the result of a successful register or login.
type Session struct {
	Token        string               `json:"token"`
	User         *models.User         `json:"user"`
	Organization *models.Organization `json:"organization"`
	Role         string               `json:"role"`
}

// Service handles account creation and token issuance.
type Service struct {
	db     *database.DB
	orgs   *repository.OrganizationRepository
	cats   *repository.CategoryRepository
	tokens *TokenProvider
	logger *zap.Logger
}

func NewService(
	db *database.DB,
	orgs *repository.OrganizationRepository,
	cats *repository.CategoryRepository,
	tokens *TokenProvider,
	logger *zap.Logger,
) *Service {
	return &Service{db: db, orgs: orgs, cats: cats, tokens: tokens, logger: logger}
}

// Register creates an organization with its first user as OWNER and seeds
// the default expense categories, all in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	if _, err := s.orgs.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	org := &models.Organization{
		ID:   uuid.New(),
		Name: strings.TrimSpace(in.OrganizationName),
		Slug: slugify(in.OrganizationName),
	}
	user := &models.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: string(hash),
	}
	member := &models.OrganizationMember{
		ID:             uuid.New(),
		UserID:         user.ID,
		OrganizationID: org.ID,
		Role:           models.RoleOwner,
	}

	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.orgs.CreateOrganization(ctx, tx, org); err != nil {
			return err
		}
		if err := s.orgs.CreateUser(ctx, tx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrEmailTaken
			}
			return err
		}
		if err := s.orgs.AddMember(ctx, tx, member); err != nil {
			return err
		}
		return s.cats.SeedDefaults(ctx, tx, org.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("organization registered",
		zap.String("organization_id", org.ID.String()),
		zap.String("user_id", user.ID.String()))

	return s.session(user, org, models.RoleOwner)
}

// Login verifies credentials and issues a token scoped to one organization.
// When the user belongs to several organizations and none is specified, the
// first by name is used.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	user, err := s.orgs.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Still burn a hash comparison so timing does not reveal
			// whether the email exists.
			bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(in.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	org, err := s.resolveOrganization(ctx, user.ID, in.OrganizationID)
	if err != nil {
		return nil, err
	}

	role, err := s.orgs.MemberRole(ctx, user.ID, org.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, err
	}

	return s.session(user, org, role)
}

// User fetches a user by ID.
func (s *Service) User(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.orgs.GetUserByID(ctx, userID)
}

// Organizations lists the organizations a user belongs to, for the org
// picker at login.
func (s *Service) Organizations(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error) {
	return s.orgs.ListOrganizationsForUser(ctx, userID)
}

func (s *Service) resolveOrganization(ctx context.Context, userID uuid.UUID, orgIDStr string) (*models.Organization, error) {
	orgs, err := s.orgs.ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, ErrNotMember
	}
	if orgIDStr == "" {
		return orgs[0], nil
	}
	orgID, err := uuid.Parse(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid organization id: %w", err)
	}
	for _, o := range orgs {
		if o.ID == orgID {
			return o, nil
		}
	}
	return nil, ErrNotMember
}

func (s *Service) session(user *models.User, org *models.Organization, role string) (*Session, error) {
	token, err := s.tokens.Issue(Claims{
		UserID:         user.ID,
		OrganizationID: org.ID,
		Role:           role,
	})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user, Organization: org, Role: role}, nil
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "org"
	}
	// Suffix keeps slugs unique without a lookup.
	return fmt.Sprintf("%s-%s", slug, uuid.New().String()[:8])
}
