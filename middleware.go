package identity

import (
	"errors"
	"strings"

	"github.com/goliatone/go-router"
)

var ErrTokenMissingOrMalformed = errors.New("missing or malformed bearer token")

// UserContextKey is where the middleware stores the authenticated user.
const UserContextKey = "identity:user"

// MiddlewareConfig configures the bearer token middleware.
type MiddlewareConfig struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	ContextKey     string
	HeaderName     string
	AuthScheme     string
	Tokens         *TokenService
}

// NewTokenProtectedMiddleware returns a middleware that requires a valid
// bearer token and stores the resolved user in the router context.
func NewTokenProtectedMiddleware(config ...MiddlewareConfig) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := getDefaultMiddlewareConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := extractBearerToken(ctx, cfg.HeaderName, cfg.AuthScheme)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			user, err := cfg.Tokens.Authenticate(ctx.Context(), raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, user)

			return cfg.SuccessHandler(ctx)
		}
	}
}

func getDefaultMiddlewareConfig(config ...MiddlewareConfig) (cfg MiddlewareConfig) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Tokens == nil {
		panic("IDENTITY: token middleware configuration: Tokens is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if errors.Is(err, ErrTokenMissingOrMalformed) {
				return c.Status(router.StatusBadRequest).SendString(ErrTokenMissingOrMalformed.Error())
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = UserContextKey
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = router.HeaderAuthorization
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func extractBearerToken(c router.Context, header, authScheme string) (string, error) {
	a := c.GetString(header, "")
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	if l == 0 {
		return "", ErrTokenMissingOrMalformed
	}
	if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
		token := strings.TrimSpace(a[l:])
		if token != "" {
			return token, nil
		}
	}
	return "", ErrTokenMissingOrMalformed
}

// AuthenticatedUser returns the user stored by the middleware, if any.
func AuthenticatedUser(ctx router.Context, keys ...string) (*User, bool) {
	key := UserContextKey
	if len(keys) > 0 && keys[0] != "" {
		key = keys[0]
	}
	user, ok := ctx.Locals(key).(*User)
	return user, ok
}
