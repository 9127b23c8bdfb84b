// Package token issues and verifies HS256 session credentials.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

// ErrInvalidToken covers every malformed, expired or forged credential.
var ErrInvalidToken = shared.NewError(shared.KindUnauthenticated, "invalid or expired token")

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = 8 * time.Hour

// Subject identifies the holder of a credential.
type Subject struct {
	UserID   uuid.UUID
	Email    string
	TenantID int64
	Role     tenancy.Role
	Plan     string
}

// Manager signs and verifies credentials with one shared secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a manager. The secret must not be empty.
func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a credential for s and returns it with its expiry.
func (m *Manager) Issue(s Subject) (string, time.Time, error) {
	now := m.now().UTC()
	expires := now.Add(m.ttl)

	claims := jwt.MapClaims{
		"sub":   s.UserID.String(),
		"email": s.Email,
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
		"jti":   uuid.NewString(),
	}
	if m.issuer != "" {
		claims["iss"] = m.issuer
	}
	if s.TenantID > 0 {
		claims["tenant_id"] = strconv.FormatInt(s.TenantID, 10)
		claims["tenant_role"] = s.Role.String()
	}
	if s.Plan != "" {
		claims["plan"] = s.Plan
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the signature, algorithm, issuer and expiry of raw and
// returns its claims.
func (m *Manager) Verify(raw string) (map[string]any, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
