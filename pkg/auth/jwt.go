package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token fails signature or claim validation
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSecret is returned when the token manager has no signing secret
	ErrMissingSecret = errors.New("jwt secret is required")
)

// Principal is the verified actor identity carried by a request
type Principal struct {
	ActorID        string `json:"actor_id"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

// Claims represents JWT claims
type Claims struct {
	Role           string `json:"role"`
	OrganizationID string `json:"org"`
	jwt.RegisteredClaims
}

// Principal returns the identity encoded in the claims
func (c *Claims) Principal() Principal {
	return Principal{
		ActorID:        c.Subject,
		Role:           c.Role,
		OrganizationID: c.OrganizationID,
	}
}

// TokenManager issues and verifies HS256 access tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue creates a signed token for a principal
func (m *TokenManager) Issue(p Principal) (string, error) {
	if p.ActorID == "" {
		return "", fmt.Errorf("actor id is required")
	}

	now := m.now()
	claims := &Claims{
		Role:           p.Role,
		OrganizationID: p.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ActorID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify validates a token and returns the principal it carries
func (m *TokenManager) Verify(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}

	return claims.Principal(), nil
}
