package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// dummyHash keeps the password comparison on the unknown-email path so the
// two InvalidCredentials cases stay indistinguishable by timing.
var dummyHash, _ = HashPassword("identity.dummy.compare")

// Auther runs the password login workflow.
type Auther struct {
	repo   RepositoryManager
	tokens *TokenService
	logger Logger
}

// AutherOption configures an Auther.
type AutherOption func(*Auther)

// WithLogger sets the logger.
func WithLogger(logger Logger) AutherOption {
	return func(a *Auther) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuthenticator returns a new Auther.
func NewAuthenticator(repo RepositoryManager, tokens *TokenService, opts ...AutherOption) *Auther {
	a := &Auther{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// Login validates credentials and mints a bearer token. Unknown email and
// wrong password produce the same ErrInvalidCredentials; the verified gate
// runs only after the password check so verification state cannot be used
// as an enumeration oracle without knowing the password.
func (s *Auther) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			_ = ComparePasswordAndHash(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("login lookup failed: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.logger.Info("failed login attempt for user %s", user.ID)
		return nil, ErrInvalidCredentials
	}

	if !user.IsVerified {
		s.logger.Info("login rejected for unverified user %s", user.ID)
		return nil, ErrEmailNotVerified
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		s.logger.Error("login token mint failed for user %s: %v", user.ID, err)
		return nil, err
	}

	return &TokenResponse{
		User:  user.Payload(),
		Token: token,
		Type:  "bearer",
	}, nil
}
