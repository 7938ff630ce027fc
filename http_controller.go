package identity

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPControllerRoutes holds the route paths.
type HTTPControllerRoutes struct {
	Register string
	Login    string
	Verify   string
	Resend   string
	Me       string
}

// HTTPController exposes the identity workflows over JSON.
type HTTPController struct {
	Debug    bool
	Logger   Logger
	Routes   *HTTPControllerRoutes
	Register *RegisterUserHandler
	Verify   *VerifyEmailHandler
	Resend   *ResendVerificationHandler
	Auther   *Auther
	Tokens   *TokenService
}

type HTTPControllerOption func(*HTTPController) *HTTPController

// WithControllerLogger sets the logger.
func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug enables request payload dumps.
func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// NewHTTPController creates the identity HTTP controller.
func NewHTTPController(
	register *RegisterUserHandler,
	verify *VerifyEmailHandler,
	resend *ResendVerificationHandler,
	auther *Auther,
	tokens *TokenService,
	opts ...HTTPControllerOption,
) *HTTPController {
	c := &HTTPController{
		Logger:   defLogger{},
		Register: register,
		Verify:   verify,
		Resend:   resend,
		Auther:   auther,
		Tokens:   tokens,
		Routes: &HTTPControllerRoutes{
			Register: "/register",
			Login:    "/login",
			Verify:   "/verify-email",
			Resend:   "/resend-verification-email",
			Me:       "/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Register == nil || c.Verify == nil || c.Resend == nil {
		panic("Missing workflow handlers in identity controller...")
	}

	if c.Auther == nil || c.Tokens == nil {
		panic("Missing authenticator or token service in identity controller...")
	}

	return c
}

// RegisterRoutes registers the identity routes. The /me route is guarded by
// the bearer token middleware.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post(c.Routes.Register, c.RegisterPost)
	group.Post(c.Routes.Login, c.LoginPost)
	group.Post(c.Routes.Verify, c.VerifyPost)
	group.Post(c.Routes.Resend, c.ResendPost)
	group.Get(c.Routes.Me, c.MeGet, NewTokenProtectedMiddleware(MiddlewareConfig{
		Tokens: c.Tokens,
		ErrorHandler: func(ctx router.Context, err error) error {
			if errors.Is(err, ErrTokenMissingOrMalformed) {
				err = ErrInvalidToken
			}
			return c.handleError(ctx, err)
		},
	}))
}

// RegisterPost creates an unverified account and sends the first code.
func (c *HTTPController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterUserMessage)

	if err := ctx.Bind(payload); err != nil {
		return c.bindError(ctx, err)
	}

	if c.Debug {
		fmt.Println("======= IDENTITY REGISTER =======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=================================")
	}

	var resp *RegisterUserResponse
	payload.OnResponse = func(r *RegisterUserResponse) {
		resp = r
	}

	if err := c.Register.Execute(ctx.Context(), *payload); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, resp)
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginPost exchanges credentials for a bearer token.
func (c *HTTPController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.bindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	resp, err := c.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

// VerifyPost consumes a verification code and returns a bearer token.
func (c *HTTPController) VerifyPost(ctx router.Context) error {
	payload := new(VerifyEmailMessage)

	if err := ctx.Bind(payload); err != nil {
		return c.bindError(ctx, err)
	}

	var resp *VerifyEmailResponse
	payload.OnResponse = func(r *VerifyEmailResponse) {
		resp = r
	}

	if err := c.Verify.Execute(ctx.Context(), *payload); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

// ResendPost issues a fresh verification code.
func (c *HTTPController) ResendPost(ctx router.Context) error {
	payload := new(ResendVerificationMessage)

	if err := ctx.Bind(payload); err != nil {
		return c.bindError(ctx, err)
	}

	var resp *ResendVerificationResponse
	payload.OnResponse = func(r *ResendVerificationResponse) {
		resp = r
	}

	if err := c.Resend.Execute(ctx.Context(), *payload); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, resp)
}

// MeGet returns the profile of the token holder.
func (c *HTTPController) MeGet(ctx router.Context) error {
	user, ok := AuthenticatedUser(ctx)
	if !ok {
		return c.handleError(ctx, ErrInvalidToken)
	}
	return ctx.JSON(router.StatusOK, map[string]any{
		"user": user.Payload(),
	})
}

func (c *HTTPController) bindError(ctx router.Context, err error) error {
	c.Logger.Error("identity payload bind failed: %v", err)
	return c.handleError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
		WithCode(goerrors.CodeBadRequest))
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = goerrors.CodeInternal
	}

	c.Logger.Info(
		"identity request failed: %s (category=%s text_code=%s)",
		richErr.Message, richErr.Category, richErr.TextCode,
	)

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}
