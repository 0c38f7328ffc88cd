// Package usertoken issues and validates user access tokens.
package usertoken

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"casegen/internal/util"
)

const (
	defaultIssuer = "casegen"
	defaultTTL    = 24 * time.Hour
	defaultLeeway = 30 * time.Second
)

// ErrInvalidToken is returned for tokens that fail validation or were
// revoked.
var ErrInvalidToken = errors.New("invalid token")

// Config configures token issuance and validation.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Leeway time.Duration
}

// Claims carries the registered claims plus the account email.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens and tracks revocations until
// token expiry.
type Manager struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	leeway  time.Duration
	revoker Revoker
}

// NewManager builds a token manager. The revoker may be nil, in which case
// logout is a client-side-only operation.
func NewManager(cfg Config, revoker Revoker) (*Manager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("token manager requires a secret")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Manager{
		secret:  []byte(cfg.Secret),
		issuer:  issuer,
		ttl:     ttl,
		leeway:  leeway,
		revoker: revoker,
	}, nil
}

// Issue creates a signed token for the user.
func (m *Manager) Issue(userID, email string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        util.NewID(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify validates a token and returns the subject user ID.
func (m *Manager) Verify(token string) (string, error) {
	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}
	if m.revoker != nil {
		revoked, err := m.revoker.IsRevoked(claims.ID)
		if err != nil {
			return "", err
		}
		if revoked {
			return "", ErrInvalidToken
		}
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

// Revoke marks a token invalid until its natural expiry. Invalid tokens are
// ignored; logout never fails for the client.
func (m *Manager) Revoke(token string) error {
	if m.revoker == nil {
		return nil
	}
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return m.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

func (m *Manager) parse(token string) (Claims, error) {
	claims := Claims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
	)
	if err != nil || !parsed.Valid {
		return claims, ErrInvalidToken
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, ErrInvalidToken
	}
	return claims, nil
}
