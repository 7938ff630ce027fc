package identity_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	identity "github.com/sleeved/go-identity"
)

func issueTestToken(t *testing.T, repo identity.RepositoryManager, tokens *identity.TokenService) (*identity.User, string) {
	t.Helper()

	user := seedUser(t, repo, &identity.User{Email: "member@example.com", IsVerified: true})

	token, err := tokens.Issue(context.Background(), user)
	require.NoError(t, err)
	return user, token
}

func TestTokenProtectedMiddlewareValidToken(t *testing.T) {
	repo := setupRepo(t)
	tokens := identity.NewTokenService(repo)
	_, token := issueTestToken(t, repo, tokens)

	middleware := identity.NewTokenProtectedMiddleware(identity.MiddlewareConfig{
		Tokens: tokens,
	})

	handler := middleware(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer " + token)
	ctx.On("Context").Return(context.Background())
	ctx.On("Locals", identity.UserContextKey, mock.AnythingOfType("*identity.User")).Return(nil)

	err := handler(ctx)
	require.NoError(t, err)
	assert.True(t, ctx.NextCalled)

	user, ok := identity.AuthenticatedUser(ctx)
	require.True(t, ok)
	assert.Equal(t, "member@example.com", user.Email)
}

func TestTokenProtectedMiddlewareCustomContextKey(t *testing.T) {
	repo := setupRepo(t)
	tokens := identity.NewTokenService(repo)
	_, token := issueTestToken(t, repo, tokens)

	middleware := identity.NewTokenProtectedMiddleware(identity.MiddlewareConfig{
		Tokens:     tokens,
		ContextKey: "session_user",
	})

	handler := middleware(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer " + token)
	ctx.On("Context").Return(context.Background())
	ctx.On("Locals", "session_user", mock.AnythingOfType("*identity.User")).Return(nil)

	err := handler(ctx)
	require.NoError(t, err)

	user, ok := identity.AuthenticatedUser(ctx, "session_user")
	require.True(t, ok)
	assert.Equal(t, "member@example.com", user.Email)
}

func TestTokenProtectedMiddlewareMalformedHeader(t *testing.T) {
	repo := setupRepo(t)
	tokens := identity.NewTokenService(repo)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Token abc123"},
		{name: "scheme only", header: "Bearer"},
		{name: "blank token", header: "Bearer   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured error
			middleware := identity.NewTokenProtectedMiddleware(identity.MiddlewareConfig{
				Tokens: tokens,
				ErrorHandler: func(ctx router.Context, err error) error {
					captured = err
					return nil
				},
			})

			handler := middleware(func(ctx router.Context) error { return nil })

			ctx := router.NewMockContext()
			ctx.On("GetString", "Authorization", "").Return(tt.header)

			err := handler(ctx)
			require.NoError(t, err)
			assert.ErrorIs(t, captured, identity.ErrTokenMissingOrMalformed)
			assert.False(t, ctx.NextCalled)
		})
	}
}

func TestTokenProtectedMiddlewareUnknownToken(t *testing.T) {
	repo := setupRepo(t)
	tokens := identity.NewTokenService(repo)

	var captured error
	middleware := identity.NewTokenProtectedMiddleware(identity.MiddlewareConfig{
		Tokens: tokens,
		ErrorHandler: func(ctx router.Context, err error) error {
			captured = err
			return nil
		},
	})

	handler := middleware(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("Bearer not-a-real-token")
	ctx.On("Context").Return(context.Background())

	err := handler(ctx)
	require.NoError(t, err)
	assert.True(t, identity.HasTextCode(captured, identity.TextCodeInvalidToken))
	assert.False(t, ctx.NextCalled)
}

func TestTokenProtectedMiddlewareFilterSkips(t *testing.T) {
	repo := setupRepo(t)
	tokens := identity.NewTokenService(repo)

	middleware := identity.NewTokenProtectedMiddleware(identity.MiddlewareConfig{
		Tokens: tokens,
		Filter: func(ctx router.Context) bool { return true },
	})

	handler := middleware(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()

	err := handler(ctx)
	require.NoError(t, err)
	assert.True(t, ctx.NextCalled)
}

func TestTokenProtectedMiddlewareRequiresTokenService(t *testing.T) {
	assert.Panics(t, func() {
		middleware := identity.NewTokenProtectedMiddleware()
		handler := middleware(func(ctx router.Context) error { return nil })
		_ = handler(router.NewMockContext())
	})
}
