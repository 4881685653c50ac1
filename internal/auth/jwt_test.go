package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager("test-secret-key", DefaultTokenTTL, opts...)
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour)
	require.Error(t, err)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	for _, role := range []Role{RoleCommon, RoleDeveloper} {
		signed, err := m.Issue(Identity{UserID: "user-1", Role: role})
		require.NoError(t, err)
		assert.NotEmpty(t, signed.JTI)
		assert.Equal(t, DefaultTokenTTL, signed.ExpiresAt.Sub(signed.IssuedAt))

		id, err := m.Verify(signed.Token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", id.UserID)
		assert.Equal(t, role, id.Role)
	}
}

func TestIssue_FreshJTIPerToken(t *testing.T) {
	m := newTestManager(t)

	a, err := m.Issue(Identity{UserID: "u", Role: RoleCommon})
	require.NoError(t, err)
	b, err := m.Issue(Identity{UserID: "u", Role: RoleCommon})
	require.NoError(t, err)

	assert.NotEqual(t, a.JTI, b.JTI)
}

func TestIssue_RejectsUnknownRole(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Issue(Identity{UserID: "u", Role: Role("admin")})
	require.Error(t, err)
}

func TestVerify_TamperedSignature(t *testing.T) {
	m := newTestManager(t)

	signed, err := m.Issue(Identity{UserID: "user-1", Role: RoleCommon})
	require.NoError(t, err)

	parts := strings.Split(signed.Token, ".")
	require.Len(t, parts, 3)

	// flip the first signature character; trailing characters can carry only padding bits
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = m.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_WrongSecret(t *testing.T) {
	other, err := NewManager("another-secret", DefaultTokenTTL)
	require.NoError(t, err)

	signed, err := other.Issue(Identity{UserID: "user-1", Role: RoleCommon})
	require.NoError(t, err)

	_, err = newTestManager(t).Verify(signed.Token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Expired(t *testing.T) {
	past := time.Now().Add(-3 * time.Hour)
	issuer := newTestManager(t, WithClock(func() time.Time { return past }))

	signed, err := issuer.Issue(Identity{UserID: "user-1", Role: RoleCommon})
	require.NoError(t, err)

	_, err = newTestManager(t).Verify(signed.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_Malformed(t *testing.T) {
	m := newTestManager(t)

	for _, raw := range []string{"", "abc", "a.b", "not.a.token"} {
		_, err := m.Verify(raw)
		assert.ErrorIs(t, err, ErrMalformedToken, "input %q", raw)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	m := newTestManager(t)

	claims := Claims{
		Role: string(RoleDeveloper),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_UnknownRoleClaim(t *testing.T) {
	m := newTestManager(t)

	claims := Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = m.Verify(raw)
	assert.ErrorIs(t, err, ErrMalformedToken)
}
