package social

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	identity "github.com/sleeved/go-identity"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController handles social auth HTTP routes.
type HTTPController struct {
	authenticator *Authenticator
	config        HTTPConfig
	logger        identity.Logger
}

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// Logger for request errors
	Logger identity.Logger

	// ErrorHandler handles errors (optional)
	ErrorHandler router.ErrorHandler
}

// NewHTTPController creates a new social auth HTTP controller.
func NewHTTPController(auth *Authenticator, cfg HTTPConfig) *HTTPController {
	logger := cfg.Logger
	if logger == nil {
		logger = identity.DefaultLogger()
	}

	return &HTTPController{
		authenticator: auth,
		config:        cfg,
		logger:        logger,
	}
}

// RegisterRoutes registers social auth routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/providers", c.ListProviders)
	group.Get("/:provider/callback", c.Callback)
	group.Post("/:provider/token", c.ExchangeToken)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns available social providers.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"providers": c.authenticator.ListProviders(),
	})
}

// BeginAuth starts the OAuth flow.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	providerName := ctx.Param("provider")

	opts := []BeginAuthOption{}
	if redirectURL := ctx.Query("redirect_url"); redirectURL != "" {
		opts = append(opts, WithRedirectURL(redirectURL))
	}

	redirect, err := c.authenticator.BeginAuth(ctx.Context(), providerName, opts...)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback and returns a bearer token.
func (c *HTTPController) Callback(ctx router.Context) error {
	providerName := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if errCode := ctx.Query("error"); errCode != "" {
		return c.handleError(ctx, wrapProviderError(ErrTokenExchangeFailed, providerName, "callback",
			&ProviderError{
				Provider:    providerName,
				Operation:   "callback",
				Code:        errCode,
				Description: ctx.Query("error_description"),
			}))
	}

	if code == "" || state == "" {
		return c.handleError(ctx, ErrInvalidState)
	}

	result, err := c.authenticator.CompleteAuth(ctx.Context(), providerName, code, state)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, authResultBody(result))
}

// ExchangeTokenRequest payload
type ExchangeTokenRequest struct {
	IDToken string `form:"id_token" json:"id_token"`
}

// Validate will run validation rules
func (r ExchangeTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required),
	)
}

// ExchangeToken authenticates a native client that already holds a
// provider ID token.
func (c *HTTPController) ExchangeToken(ctx router.Context) error {
	providerName := ctx.Param("provider")

	payload := new(ExchangeTokenRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid token exchange payload").
			WithCode(goerrors.CodeBadRequest))
	}

	result, err := c.authenticator.ExchangeIDToken(ctx.Context(), providerName, payload.IDToken)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, authResultBody(result))
}

func authResultBody(result *AuthResult) map[string]any {
	return map[string]any{
		"user":        result.User.Payload(),
		"token":       result.Token,
		"type":        result.Type,
		"is_new_user": result.IsNewUser,
	}
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = goerrors.CodeInternal
	}

	c.logger.Info(
		"social auth request failed: %s (category=%s text_code=%s)",
		richErr.Message, richErr.Category, richErr.TextCode,
	)

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}
