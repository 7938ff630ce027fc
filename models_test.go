package identity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "github.com/sleeved/go-identity"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "Person@Example.COM", want: "person@example.com"},
		{raw: "  padded@example.com  ", want: "padded@example.com"},
		{raw: "already@example.com", want: "already@example.com"},
		{raw: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, identity.NormalizeEmail(tt.raw))
	}
}

func TestUserHasPendingVerification(t *testing.T) {
	code := "123456"
	expires := time.Now().Add(identity.VerificationCodeTTL)

	user := &identity.User{}
	assert.False(t, user.HasPendingVerification())

	user.VerificationCode = &code
	assert.False(t, user.HasPendingVerification())

	user.VerificationExpiresAt = &expires
	assert.True(t, user.HasPendingVerification())
}

func TestUserPayloadOmitsSecrets(t *testing.T) {
	code := "123456"
	expires := time.Now()

	user := &identity.User{
		ID:                    uuid.New(),
		Email:                 "person@example.com",
		FullName:              "Test Person",
		PasswordHash:          "$2a$14$secret",
		VerificationCode:      &code,
		VerificationExpiresAt: &expires,
		IsVerified:            false,
	}

	raw, err := json.Marshal(user.Payload())
	require.NoError(t, err)

	body := string(raw)
	assert.Contains(t, body, "person@example.com")
	assert.NotContains(t, body, "secret")
	assert.NotContains(t, body, "123456")
}

func TestAccessTokenExpired(t *testing.T) {
	now := time.Now()
	token := &identity.AccessToken{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, token.Expired(now))
	assert.False(t, token.Expired(now.Add(59*time.Minute)))
	assert.True(t, token.Expired(now.Add(2*time.Hour)))
}
