package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ann = Identity{ID: "u-1", Email: "ann@x.com", Name: "Ann", Role: "user"}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()

	m, err := NewManager("test-secret", WithClock(clock.Now))
	require.NoError(t, err)

	return m
}

func TestNewManager_RejectsEmptySecret(t *testing.T) {
	for _, secret := range []string{"", "   "} {
		m, err := NewManager(secret)
		assert.Nil(t, m)
		assert.ErrorIs(t, err, ErrMissingSecret)
	}
}

func TestIssueAndVerify(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestManager(t, clock)

	token, err := m.Issue(ann)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, ann, claims.Identity())
	assert.Equal(t, "u-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, clock.t.Add(TokenTTL).Equal(claims.ExpiresAt.Time))
}

func TestIssue_DistinctTokensForSameClaims(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := newTestManager(t, clock)

	first, err := m.Issue(ann)
	require.NoError(t, err)
	second, err := m.Issue(ann)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: issuedAt}
	m := newTestManager(t, clock)

	token, err := m.Issue(ann)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{name: "at issuance", at: issuedAt},
		{name: "one hour later", at: issuedAt.Add(time.Hour)},
		{name: "one second before expiry", at: issuedAt.Add(TokenTTL - time.Second)},
		{name: "exactly at expiry", at: issuedAt.Add(TokenTTL), wantErr: true},
		{name: "a week later", at: issuedAt.Add(7 * 24 * time.Hour), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.t = tt.at

			claims, err := m.Verify(token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				assert.ErrorIs(t, err, jwt.ErrTokenExpired)
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, ann, claims.Identity())
		})
	}
}

func TestIssue_SubSecondIssuanceTruncates(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 900_000_000, time.UTC)
	whole := issuedAt.Truncate(time.Second)
	clock := &fakeClock{t: issuedAt}
	m := newTestManager(t, clock)

	token, err := m.Issue(ann)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Time.Equal(whole))
	assert.True(t, claims.ExpiresAt.Time.Equal(whole.Add(TokenTTL)))

	clock.t = whole.Add(TokenTTL - time.Millisecond)
	_, err = m.Verify(token)
	assert.NoError(t, err)

	clock.t = whole.Add(TokenTTL)
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	issuer := newTestManager(t, clock)
	other, err := NewManager("another-secret", WithClock(clock.Now))
	require.NoError(t, err)

	token, err := issuer.Issue(ann)
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestVerify_Tampered(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestManager(t, clock)

	token, err := m.Issue(ann)
	require.NoError(t, err)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           ann.ID,
		Email:            ann.Email,
		Name:             ann.Name,
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour))},
	})
	forgedStr, err := forged.SignedString([]byte("guessed-secret"))
	require.NoError(t, err)

	_, err = m.Verify(forgedStr)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// swap the signature segment for one from a different token
	other, err := m.Issue(Identity{ID: "u-2", Email: "bob@x.com", Name: "Bob", Role: "user"})
	require.NoError(t, err)
	spliced := token[:strings.LastIndex(token, ".")] + other[strings.LastIndex(other, "."):]

	_, err = m.Verify(spliced)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	m := newTestManager(t, &fakeClock{t: time.Now()})

	for _, raw := range []string{"", "garbage", "invalid.token.string", "a.b"} {
		_, err := m.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestManager(t, clock)

	claims := Claims{
		UserID:           ann.ID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour))},
	}

	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = m.Verify(hs384)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresExpiry(t *testing.T) {
	m := newTestManager(t, &fakeClock{t: time.Now()})

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: ann.ID}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Verify(noExp)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
