package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	identity "github.com/sleeved/go-identity"
	"github.com/uptrace/bun"
)

// Authenticator orchestrates social login flows. A provider identity is
// resolved to a local user in three steps, first match wins: by provider
// subject, by verified email, else a fresh account is created. The whole
// resolution runs in one transaction together with the token mint.
type Authenticator struct {
	providers map[string]Provider
	state     StateManager
	repo      identity.RepositoryManager
	tokens    *identity.TokenService
	logger    identity.Logger
	config    Config
}

// Config configures the social authenticator.
type Config struct {
	BaseURL            string
	DefaultRedirectURL string
	StateEncryptionKey []byte
	StateHMACKey       []byte
	StateTTL           time.Duration
}

// Option configures the social authenticator.
type Option func(*Authenticator)

// WithProvider registers a social provider.
func WithProvider(provider Provider) Option {
	return func(sa *Authenticator) {
		if provider == nil {
			return
		}
		sa.providers[provider.Name()] = provider
	}
}

// WithStateManager sets a custom state manager.
func WithStateManager(sm StateManager) Option {
	return func(sa *Authenticator) {
		sa.state = sm
	}
}

// WithLogger sets the logger.
func WithLogger(logger identity.Logger) Option {
	return func(sa *Authenticator) {
		if logger != nil {
			sa.logger = logger
		}
	}
}

// NewAuthenticator creates a new social authenticator.
func NewAuthenticator(
	repo identity.RepositoryManager,
	tokens *identity.TokenService,
	config Config,
	opts ...Option,
) *Authenticator {
	cfg := config
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.DefaultRedirectURL == "" {
		cfg.DefaultRedirectURL = "/"
	}

	sa := &Authenticator{
		providers: make(map[string]Provider),
		repo:      repo,
		tokens:    tokens,
		config:    cfg,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	if sa.logger == nil {
		sa.logger = identity.DefaultLogger()
	}

	if sa.state == nil {
		sa.state = NewEncryptedStateManager(
			cfg.StateEncryptionKey,
			cfg.StateHMACKey,
			cfg.StateTTL,
		)
	}

	return sa
}

// AuthRedirect contains the authorization URL for redirecting users.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// AuthResult contains the result of a successful authentication.
type AuthResult struct {
	User        *identity.User
	Token       string
	Type        string
	IsNewUser   bool
	Provider    string
	RedirectURL string
}

// BeginAuthOption configures the auth initiation.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	redirectURL string
}

// WithRedirectURL sets the post-auth redirect URL.
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		c.redirectURL = url
	}
}

// BeginAuth starts the OAuth flow for a provider.
func (sa *Authenticator) BeginAuth(
	ctx context.Context,
	providerName string,
	opts ...BeginAuthOption,
) (*AuthRedirect, error) {
	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, providerNotFound(providerName)
	}

	cfg := &beginAuthConfig{
		redirectURL: sa.config.DefaultRedirectURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	state := &OAuthState{
		Nonce:        generateNonce(),
		Provider:     providerName,
		CodeVerifier: codeVerifier,
		RedirectURL:  cfg.redirectURL,
		IssuedAt:     time.Now().Unix(),
		ExpiresAt:    time.Now().Add(sa.config.StateTTL).Unix(),
	}

	stateToken, err := sa.state.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	authURL := provider.AuthCodeURL(stateToken, WithPKCE(computeCodeChallenge(codeVerifier), "S256"))

	return &AuthRedirect{
		URL:      authURL,
		State:    stateToken,
		Provider: providerName,
	}, nil
}

// CompleteAuth finishes the OAuth flow after callback.
func (sa *Authenticator) CompleteAuth(
	ctx context.Context,
	providerName string,
	code string,
	stateToken string,
) (*AuthResult, error) {
	state, err := sa.state.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrInvalidState
	}

	if state.Provider != providerName {
		return nil, ErrInvalidState
	}

	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, providerNotFound(providerName)
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}

	result, err := sa.Resolve(ctx, profile)
	if err != nil {
		return nil, err
	}

	result.RedirectURL = state.RedirectURL
	return result, nil
}

// ExchangeIDToken authenticates a native client that obtained an ID token
// through the platform SDK. The provider must support ID token validation.
func (sa *Authenticator) ExchangeIDToken(
	ctx context.Context,
	providerName string,
	rawToken string,
) (*AuthResult, error) {
	provider, ok := sa.providers[providerName]
	if !ok {
		return nil, providerNotFound(providerName)
	}

	verifier, ok := provider.(IDTokenVerifier)
	if !ok {
		return nil, wrapProviderError(ErrInvalidIDToken, providerName, "id_token",
			fmt.Errorf("provider does not support id token validation"))
	}

	profile, err := verifier.VerifyIDToken(ctx, rawToken)
	if err != nil {
		return nil, wrapProviderError(ErrInvalidIDToken, providerName, "id_token", err)
	}

	return sa.Resolve(ctx, profile)
}

// Resolve maps a provider profile to a local account and mints a bearer
// token for it. Accounts created here are passwordless and born verified;
// the provider already proved control of the email.
func (sa *Authenticator) Resolve(ctx context.Context, profile *Profile) (*AuthResult, error) {
	if profile == nil || profile.ProviderUserID == "" {
		return nil, ErrUserInfoFailed
	}

	if profile.Email != "" && !profile.EmailVerified {
		return nil, ErrProviderEmailUnverified
	}

	result := &AuthResult{
		Provider: profile.Provider,
		Type:     "bearer",
	}

	err := sa.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := sa.resolveUserTx(ctx, tx, profile, result)
		if err != nil {
			return err
		}

		token, err := sa.tokens.IssueTx(ctx, tx, user)
		if err != nil {
			return err
		}

		result.User = user
		result.Token = token
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (sa *Authenticator) resolveUserTx(
	ctx context.Context,
	tx bun.Tx,
	profile *Profile,
	result *AuthResult,
) (*identity.User, error) {
	users := sa.repo.Users()
	now := time.Now()

	user, err := users.GetByProviderTx(ctx, tx, profile.Provider, profile.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up provider identity")
	}

	email := identity.NormalizeEmail(profile.Email)
	if email == "" {
		email = placeholderEmail(profile.Provider, profile.ProviderUserID)
	}

	user, err = users.GetByEmailTx(ctx, tx, email)
	if err == nil {
		sa.logger.Info("linking %s identity to existing user %s", profile.Provider, user.ID)
		return users.LinkProviderTx(ctx, tx, user.ID, profile.Provider, profile.ProviderUserID, profile.AvatarURL, now)
	}
	if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user by email")
	}

	user, err = users.CreateTx(ctx, tx, &identity.User{
		Email:          email,
		FullName:       profile.Name,
		IsVerified:     true,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		AvatarURL:      profile.AvatarURL,
	})
	if err != nil {
		return nil, err
	}

	sa.logger.Info("created user %s from %s identity", user.ID, profile.Provider)
	result.IsNewUser = true
	return user, nil
}

// ListProviders returns all registered providers.
func (sa *Authenticator) ListProviders() []ProviderInfo {
	var providers []ProviderInfo
	for name := range sa.providers {
		providers = append(providers, ProviderInfo{Name: name})
	}
	return providers
}

// ProviderInfo describes an available provider.
type ProviderInfo struct {
	Name string `json:"name"`
}

func placeholderEmail(provider, providerUserID string) string {
	return fmt.Sprintf("%s_%s@example.com", provider, providerUserID)
}

func providerNotFound(name string) error {
	clone := ErrProviderNotFound.Clone()
	if clone == nil {
		return ErrProviderNotFound
	}
	return clone.WithMetadata(map[string]any{"provider": name})
}
