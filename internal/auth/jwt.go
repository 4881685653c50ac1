package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the fixed session lifetime. Tokens are not revocable
// server side, so this is the only bound on a leaked token.
const DefaultTokenTTL = 2 * time.Hour

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type SignedToken struct {
	Token     string    `json:"token"`
	JTI       string    `json:"-"`
	IssuedAt  time.Time `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

type Option func(*Manager)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(secret string, ttl time.Duration, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	m := &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)

	return m, nil
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a fresh token for id.
func (m *Manager) Issue(id Identity) (SignedToken, error) {
	if id.UserID == "" {
		return SignedToken{}, errors.New("identity has no user id")
	}
	if _, err := ParseRole(string(id.Role)); err != nil {
		return SignedToken{}, err
	}

	now := m.now().UTC()
	jti := uuid.NewString()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return SignedToken{}, err
	}

	return SignedToken{
		Token:     raw,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature then expiry and rebuilds the caller identity.
// The jti is not looked up anywhere; there is no revocation list.
func (m *Manager) Verify(tokenStr string) (Identity, error) {
	var claims Claims

	token, err := m.parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return Identity{}, classifyTokenError(err)
	}
	if !token.Valid {
		return Identity{}, ErrMalformedToken
	}

	if claims.Subject == "" {
		return Identity{}, ErrMalformedToken
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, ErrMalformedToken
	}

	return Identity{UserID: claims.Subject, Role: role}, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformedToken
	}
}
