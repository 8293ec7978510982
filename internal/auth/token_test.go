package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nis-portal/portal-api/internal/models"
)

func testUser() *models.User {
	return &models.User{ID: 7, RoleID: 2, RoleName: models.RoleSupervisor}
}

func TestTokenManager_IssueAndVerify(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, "nis-portal")

	token, expiresAt, err := m.Issue(testUser())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, int64(2), claims.RoleID)
	assert.Equal(t, models.RoleSupervisor, claims.RoleName)
	assert.Equal(t, models.Caller{UserID: 7, RoleID: 2, RoleName: models.RoleSupervisor}, claims.Caller())
}

func TestTokenManager_DefaultTTL(t *testing.T) {
	m := NewTokenManager("secret", 0, "")
	issuedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issuedAt }

	_, expiresAt, err := m.Issue(testUser())
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(time.Hour), expiresAt)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, "nis-portal")
	token, _, err := m.Issue(testUser())
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other", time.Hour, "nis-portal")
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokenManager("secret", time.Hour, "nis-portal")
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenManager("secret", time.Hour, "someone-else")
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing user id", func(t *testing.T) {
		raw, _, err := m.Issue(&models.User{RoleID: 1})
		require.NoError(t, err)
		_, err = m.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			token, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}
