package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record, the unit of authentication.
//
// PasswordHash is empty for social-only accounts. VerificationCode and
// VerificationExpiresAt are either both set or both NULL; they exist only
// while a verification is pending. Provider and ProviderUserID are either
// both set or both NULL.
type User struct {
	bun.BaseModel         `bun:"table:users,alias:usr"`
	ID                    uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email                 string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName              string     `bun:"full_name" json:"full_name,omitempty"`
	Phone                 string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash          string     `bun:"password_hash" json:"-"`
	IsVerified            bool       `bun:"is_verified" json:"is_verified"`
	VerificationCode      *string    `bun:"verification_code,nullzero" json:"-"`
	VerificationExpiresAt *time.Time `bun:"verification_expires_at,nullzero" json:"-"`
	Provider              string     `bun:"provider,nullzero" json:"provider,omitempty"`
	ProviderUserID        string     `bun:"provider_id,nullzero" json:"provider_id,omitempty"`
	AvatarURL             string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt             *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt             *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPendingVerification reports whether a verification code is attached.
func (u *User) HasPendingVerification() bool {
	return u.VerificationCode != nil && u.VerificationExpiresAt != nil
}

// Payload returns the public projection of the user. Hashes and pending
// verification codes are never serialized outward.
func (u *User) Payload() UserPayload {
	return UserPayload{
		ID:         u.ID.String(),
		Email:      u.Email,
		FullName:   u.FullName,
		IsVerified: u.IsVerified,
		AvatarURL:  u.AvatarURL,
	}
}

// UserPayload is the outward-facing shape of a user record.
type UserPayload struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name,omitempty"`
	IsVerified bool   `json:"is_verified"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

// AccessToken is a server-side record of an issued bearer token. Only the
// SHA-256 hash is stored; the plaintext is released exactly once at mint
// time. Multiple live tokens per user may coexist.
type AccessToken struct {
	bun.BaseModel `bun:"table:access_tokens,alias:tok"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Abilities     string     `bun:"abilities,notnull" json:"abilities,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	LastUsedAt    *time.Time `bun:"last_used_at,nullzero" json:"last_used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// NormalizeEmail lower-cases and trims an email address. The uniqueness
// constraint on users.email operates on this form, so every lookup and
// insert must pass through here first.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
