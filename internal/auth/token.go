package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried in access tokens. The organization ID in the token is the
// tenant every request is scoped to.
type Claims struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
}

// TokenProvider signs and verifies HS256 access tokens.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenProvider(secret string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenProvider{secret: []byte(secret), ttl: ttl}
}

func (p *TokenProvider) Issue(c Claims) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    c.UserID.String(),
		"org_id": c.OrganizationID.String(),
		"role":   c.Role,
		"iat":    now.Unix(),
		"exp":    now.Add(p.ttl).Unix(),
		"iss":    "invoiceai",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (p *TokenProvider) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, err := uuidClaim(mapClaims, "sub")
	if err != nil {
		return nil, ErrInvalidToken
	}
	orgID, err := uuidClaim(mapClaims, "org_id")
	if err != nil {
		return nil, ErrInvalidToken
	}
	role, _ := mapClaims["role"].(string)

	return &Claims{UserID: userID, OrganizationID: orgID, Role: role}, nil
}

func uuidClaim(claims jwt.MapClaims, key string) (uuid.UUID, error) {
	s, ok := claims[key].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing %s claim", key)
	}
	return uuid.Parse(s)
}
