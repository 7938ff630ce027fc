package social

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	identity "github.com/sleeved/go-identity"

	_ "github.com/mattn/go-sqlite3"
)

const (
	testCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    full_name TEXT,
    phone_number TEXT,
    password_hash TEXT,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    verification_code TEXT,
    verification_expires_at TIMESTAMP NULL,
    provider TEXT,
    provider_id TEXT,
    avatar_url TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

	testCreateAccessTokens = `CREATE TABLE access_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    token_hash TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    abilities TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    last_used_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
)

func setupIdentity(t *testing.T) (identity.RepositoryManager, *identity.TokenService) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(testCreateUsers)
	require.NoError(t, err)
	_, err = bunDB.Exec(testCreateAccessTokens)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	repo := identity.NewRepositoryManager(bunDB)
	return repo, identity.NewTokenService(repo)
}

func testAuthenticator(t *testing.T, opts ...Option) (*Authenticator, identity.RepositoryManager, *identity.TokenService) {
	t.Helper()

	repo, tokens := setupIdentity(t)
	sa := NewAuthenticator(repo, tokens, Config{
		StateEncryptionKey: []byte("0123456789abcdef0123456789abcdef"),
		StateHMACKey:       []byte("fedcba9876543210fedcba9876543210"),
	}, opts...)

	return sa, repo, tokens
}

func googleProfile(sub, email string) *Profile {
	return &Profile{
		ProviderUserID: sub,
		Provider:       "google",
		Email:          email,
		EmailVerified:  email != "",
		Name:           "Test Person",
		AvatarURL:      "https://img.example.com/p.png",
	}
}

func TestResolveCreatesNewUser(t *testing.T) {
	sa, repo, tokens := testAuthenticator(t)
	ctx := context.Background()

	result, err := sa.Resolve(ctx, googleProfile("sub-1", "person@example.com"))
	require.NoError(t, err)

	assert.True(t, result.IsNewUser)
	assert.Equal(t, "bearer", result.Type)
	assert.NotEmpty(t, result.Token)

	user := result.User
	assert.Equal(t, "person@example.com", user.Email)
	assert.Equal(t, "google", user.Provider)
	assert.Equal(t, "sub-1", user.ProviderUserID)
	assert.True(t, user.IsVerified)
	assert.Empty(t, user.PasswordHash)

	owner, err := tokens.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)

	found, err := repo.Users().GetByProviderTx(ctx, repo.DB(), "google", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestResolveFindsExistingProviderIdentity(t *testing.T) {
	sa, _, _ := testAuthenticator(t)
	ctx := context.Background()

	first, err := sa.Resolve(ctx, googleProfile("sub-1", "person@example.com"))
	require.NoError(t, err)
	require.True(t, first.IsNewUser)

	second, err := sa.Resolve(ctx, googleProfile("sub-1", "person@example.com"))
	require.NoError(t, err)

	assert.False(t, second.IsNewUser)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestResolveLinksByEmail(t *testing.T) {
	sa, repo, _ := testAuthenticator(t)
	ctx := context.Background()

	hash, err := identity.HashPassword("super-secret-pass")
	require.NoError(t, err)

	existing, err := repo.Users().Create(ctx, &identity.User{
		Email:        "person@example.com",
		PasswordHash: hash,
		IsVerified:   false,
	})
	require.NoError(t, err)

	result, err := sa.Resolve(ctx, googleProfile("sub-9", "Person@Example.com"))
	require.NoError(t, err)

	assert.False(t, result.IsNewUser)
	assert.Equal(t, existing.ID, result.User.ID)
	assert.Equal(t, "google", result.User.Provider)
	assert.Equal(t, "sub-9", result.User.ProviderUserID)
	// the provider vouched for the address
	assert.True(t, result.User.IsVerified)
	// password login keeps working after the link
	assert.Equal(t, hash, result.User.PasswordHash)
}

func TestResolveUsesPlaceholderEmail(t *testing.T) {
	sa, _, _ := testAuthenticator(t)
	ctx := context.Background()

	profile := googleProfile("sub-77", "")
	result, err := sa.Resolve(ctx, profile)
	require.NoError(t, err)

	assert.True(t, result.IsNewUser)
	assert.Equal(t, "google_sub-77@example.com", result.User.Email)
}

func TestResolveRejectsUnverifiedProviderEmail(t *testing.T) {
	sa, _, _ := testAuthenticator(t)

	profile := googleProfile("sub-2", "person@example.com")
	profile.EmailVerified = false

	_, err := sa.Resolve(context.Background(), profile)
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, TextCodeEmailUnverified))
}

func TestResolveRejectsEmptyProfile(t *testing.T) {
	sa, _, _ := testAuthenticator(t)

	_, err := sa.Resolve(context.Background(), nil)
	assert.Error(t, err)

	_, err = sa.Resolve(context.Background(), &Profile{Provider: "google"})
	assert.Error(t, err)
}

func TestBeginAuthRoundTrip(t *testing.T) {
	fake := &fakeProvider{name: "google"}
	sa, _, _ := testAuthenticator(t, WithProvider(fake))

	redirect, err := sa.BeginAuth(context.Background(), "google", WithRedirectURL("/after"))
	require.NoError(t, err)

	assert.Equal(t, "google", redirect.Provider)
	assert.Contains(t, redirect.URL, "state=")

	state, err := sa.state.Decode(redirect.State)
	require.NoError(t, err)
	assert.Equal(t, "google", state.Provider)
	assert.Equal(t, "/after", state.RedirectURL)
	assert.NotEmpty(t, state.CodeVerifier)
}

func TestBeginAuthUnknownProvider(t *testing.T) {
	sa, _, _ := testAuthenticator(t)

	_, err := sa.BeginAuth(context.Background(), "myspace")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, TextCodeProviderNotFound))
}

func TestCompleteAuth(t *testing.T) {
	fake := &fakeProvider{
		name:    "google",
		token:   &Token{AccessToken: "provider-access-token"},
		profile: googleProfile("sub-55", "flow@example.com"),
	}
	sa, _, _ := testAuthenticator(t, WithProvider(fake))

	redirect, err := sa.BeginAuth(context.Background(), "google", WithRedirectURL("/after"))
	require.NoError(t, err)

	result, err := sa.CompleteAuth(context.Background(), "google", "auth-code", redirect.State)
	require.NoError(t, err)

	assert.True(t, result.IsNewUser)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "/after", result.RedirectURL)
	assert.Equal(t, "flow@example.com", result.User.Email)

	// the PKCE verifier from the state made it into the exchange
	assert.NotEmpty(t, fake.gotVerifier)
}

func TestCompleteAuthRejectsForeignState(t *testing.T) {
	fake := &fakeProvider{name: "google"}
	other := &fakeProvider{name: "gitlab"}
	sa, _, _ := testAuthenticator(t, WithProvider(fake), WithProvider(other))

	redirect, err := sa.BeginAuth(context.Background(), "gitlab")
	require.NoError(t, err)

	_, err = sa.CompleteAuth(context.Background(), "google", "auth-code", redirect.State)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExchangeIDToken(t *testing.T) {
	fake := &fakeProvider{
		name:    "google",
		profile: googleProfile("sub-88", "mobile@example.com"),
	}
	sa, _, _ := testAuthenticator(t, WithProvider(fake))

	result, err := sa.ExchangeIDToken(context.Background(), "google", "raw-id-token")
	require.NoError(t, err)

	assert.True(t, result.IsNewUser)
	assert.Equal(t, "mobile@example.com", result.User.Email)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "raw-id-token", fake.gotIDToken)
}

func TestExchangeIDTokenUnsupportedProvider(t *testing.T) {
	sa, _, _ := testAuthenticator(t, WithProvider(&plainProvider{name: "legacy"}))

	_, err := sa.ExchangeIDToken(context.Background(), "legacy", "raw-id-token")
	require.Error(t, err)
	assert.True(t, identity.HasTextCode(err, TextCodeInvalidIDToken))
}

// fakeProvider implements Provider and IDTokenVerifier for flow tests.
type fakeProvider struct {
	name        string
	token       *Token
	profile     *Profile
	gotVerifier string
	gotIDToken  string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	return "https://provider.example.com/auth?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	cfg := ApplyExchangeOptions(opts...)
	f.gotVerifier = cfg.CodeVerifier
	return f.token, nil
}

func (f *fakeProvider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	return f.profile, nil
}

func (f *fakeProvider) VerifyIDToken(ctx context.Context, rawToken string) (*Profile, error) {
	f.gotIDToken = rawToken
	return f.profile, nil
}

// plainProvider has no ID token support.
type plainProvider struct {
	name string
}

func (p *plainProvider) Name() string { return p.name }

func (p *plainProvider) AuthCodeURL(state string, opts ...AuthCodeOption) string { return "" }

func (p *plainProvider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	return nil, nil
}

func (p *plainProvider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	return nil, nil
}
