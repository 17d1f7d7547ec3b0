package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrincipal() *Principal {
	return &Principal{UserID: 42, Username: "alice"}
}

func TestNewJWTSigner_RequiresSecret(t *testing.T) {
	_, err := NewJWTSigner("", "accessd")
	assert.Error(t, err)
}

func TestJWTSigner_RoundTrip(t *testing.T) {
	signer, err := NewJWTSigner("test-secret", "accessd")
	require.NoError(t, err)

	now := time.Now()
	claims := NewClaims(testPrincipal(), []string{"ROLE_MANAGER", "SCOPE_TASK:READ"}, 3, "accessd", now, time.Hour)
	token, err := signer.Mint(claims)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	parsed, err := signer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "42", parsed.Subject)
	assert.Equal(t, "alice", parsed.Username)
	assert.Equal(t, []string{"ROLE_MANAGER", "SCOPE_TASK:READ"}, parsed.Authorities)
	assert.Equal(t, int64(3), parsed.PermissionVersion)
	assert.NotEmpty(t, parsed.ID)

	principal, err := parsed.Principal()
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)
	assert.Equal(t, int64(3), principal.PermissionVersion)
	assert.Equal(t, parsed.ID, principal.TokenID)
	assert.WithinDuration(t, now.Add(time.Hour), principal.ExpiresAt, time.Second)
	assert.True(t, principal.HasAuthority("role_manager"))
}

func TestNewClaims_UniqueTokenIDs(t *testing.T) {
	now := time.Now()
	a := NewClaims(testPrincipal(), nil, 0, "", now, time.Hour)
	b := NewClaims(testPrincipal(), nil, 0, "", now, time.Hour)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestJWTSigner_Validate_Rejects(t *testing.T) {
	signer, err := NewJWTSigner("test-secret", "accessd")
	require.NoError(t, err)
	other, err := NewJWTSigner("other-secret", "accessd")
	require.NoError(t, err)
	foreign, err := NewJWTSigner("test-secret", "someone-else")
	require.NoError(t, err)

	valid := func(s *JWTSigner, issuer string, issuedAt time.Time, ttl time.Duration) string {
		token, err := s.Mint(NewClaims(testPrincipal(), nil, 0, issuer, issuedAt, ttl))
		require.NoError(t, err)
		return token
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, NewClaims(testPrincipal(), nil, 0, "accessd", time.Now(), time.Hour)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", valid(other, "accessd", time.Now(), time.Hour)},
		{"wrong issuer", valid(foreign, "someone-else", time.Now(), time.Hour)},
		{"expired", valid(signer, "accessd", time.Now().Add(-2*time.Hour), time.Hour)},
		{"alg none", noneToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.Validate(tt.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestClaims_Principal_BadSubject(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}
	_, err := claims.Principal()
	assert.ErrorIs(t, err, ErrInvalidToken)
}
