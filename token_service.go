package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// TokenTTL is the fixed lifetime of an issued bearer token.
	TokenTTL = 7 * 24 * time.Hour
	// TokenName labels tokens minted by this service.
	TokenName = "api_token"
	// TokenAbilities is the unrestricted capability scope.
	TokenAbilities = "*"

	tokenByteLength = 32
)

// TokenResponse pairs a freshly minted token with the public projection of
// its owner.
type TokenResponse struct {
	User  UserPayload `json:"user"`
	Token string      `json:"token"`
	Type  string      `json:"type"`
}

// TokenService mints and authenticates opaque bearer tokens. Tokens are
// stored as SHA-256 hashes; the plaintext is returned exactly once at mint
// time and is not recoverable afterwards. There is no revocation or refresh
// in scope; each mint is independent and multiple live tokens per identity
// may coexist.
type TokenService struct {
	repo   RepositoryManager
	ttl    time.Duration
	logger Logger
	nowFn  func() time.Time
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenLogger sets the logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithTokenNowFunc overrides the clock, for tests.
func WithTokenNowFunc(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.nowFn = now
		}
	}
}

// NewTokenService creates a TokenService bound to the given repositories.
func NewTokenService(repo RepositoryManager, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		repo:   repo,
		ttl:    TokenTTL,
		logger: defLogger{},
		nowFn:  time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// Issue mints a token for the user outside any caller transaction.
func (ts *TokenService) Issue(ctx context.Context, user *User) (string, error) {
	return ts.IssueTx(ctx, ts.repo.DB(), user)
}

// IssueTx mints a token inside the caller's transaction. The returned
// string is the only plaintext copy that will ever exist.
func (ts *TokenService) IssueTx(ctx context.Context, tx bun.IDB, user *User) (string, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", errors.New("cannot mint token without an identity", errors.CategoryBadInput)
	}

	plaintext, hash, err := generateTokenPair()
	if err != nil {
		return "", err
	}

	record := &AccessToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hash,
		Name:      TokenName,
		Abilities: TokenAbilities,
		ExpiresAt: ts.nowFn().Add(ts.ttl),
	}

	if _, err := ts.repo.AccessTokens().CreateTx(ctx, tx, record); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to persist access token")
	}

	ts.logger.Debug("minted access token for user %s", user.ID)

	return plaintext, nil
}

// Authenticate resolves a raw bearer token to its owner. Unknown hashes and
// expired tokens are both reported as ErrInvalidToken.
func (ts *TokenService) Authenticate(ctx context.Context, raw string) (*User, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	token, err := ts.repo.AccessTokens().GetByHash(ctx, HashToken(raw))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up access token")
	}

	if token.Expired(ts.nowFn()) {
		return nil, ErrInvalidToken
	}

	user, err := ts.repo.Users().GetByID(ctx, token.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load token owner")
	}

	if err := ts.repo.AccessTokens().Touch(ctx, token.ID, ts.nowFn()); err != nil {
		ts.logger.Warn("failed to record token usage: %v", err)
	}

	return user, nil
}

// HashToken returns the hex SHA-256 digest under which a token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateTokenPair() (plaintext, hash string, err error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, errors.CategoryInternal, "failed to read random source")
	}

	plaintext = base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, HashToken(plaintext), nil
}
