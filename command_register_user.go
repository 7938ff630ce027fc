package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegistrationMessage carries the text returned on successful registration.
const RegistrationMessage = "Registration successful. Please check your email to verify your account."

// RegisterUserMessage is the registration request.
type RegisterUserMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone_number"`
	// UseHashid derives the user id deterministically from the email
	// instead of generating a random one.
	UseHashid  bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "identity.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.FullName, validation.Length(0, 200)),
	)
}

// RegisterUserResponse is the registration result. No token is issued at
// this step; an unverified identity never receives one.
type RegisterUserResponse struct {
	User                 UserPayload `json:"user"`
	RequiresVerification bool        `json:"requires_verification"`
	Message              string      `json:"message"`
}

// RegisterUserHandler creates an unverified identity and attaches a
// verification code, atomically. The verification email goes out only
// after the transaction commits.
type RegisterUserHandler struct {
	repo   RepositoryManager
	mailer *VerificationMailer
	logger Logger
	nowFn  func() time.Time
}

// RegisterUserOption configures the handler.
type RegisterUserOption func(*RegisterUserHandler)

// WithRegisterLogger sets the handler logger.
func WithRegisterLogger(logger Logger) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRegisterNowFunc overrides the clock, for tests.
func WithRegisterNowFunc(now func() time.Time) RegisterUserOption {
	return func(h *RegisterUserHandler) {
		if now != nil {
			h.nowFn = now
		}
	}
}

// NewRegisterUserHandler wires the registration workflow.
func NewRegisterUserHandler(repo RepositoryManager, mailer *VerificationMailer, opts ...RegisterUserOption) *RegisterUserHandler {
	h := &RegisterUserHandler{
		repo:   repo,
		mailer: mailer,
		logger: defLogger{},
		nowFn:  time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	user := &User{}
	var code string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		phone, err := NormalizePhone(event.Phone, DefaultPhoneRegion)
		if err != nil {
			return err
		}

		user.Email = event.Email
		user.FullName = event.FullName
		user.Phone = phone
		user.PasswordHash = hash
		user.IsVerified = false
		if event.UseHashid {
			if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
				user.ID = id
			}
		}

		code, err = GenerateVerificationCode()
		if err != nil {
			return err
		}

		expiresAt := h.nowFn().Add(VerificationCodeTTL)
		user.VerificationCode = &code
		user.VerificationExpiresAt = &expiresAt

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.logger.Info("registered unverified user %s", user.ID)

	resp := &RegisterUserResponse{
		User:                 user.Payload(),
		RequiresVerification: true,
		Message:              RegistrationMessage,
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	// Dispatch strictly after commit: a mail failure is reported but the
	// created identity and its pending code stay put. The user can resend.
	if err := h.mailer.SendVerificationCode(ctx, user, code); err != nil {
		return err
	}

	return nil
}
