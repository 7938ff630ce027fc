package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ResendSentMessage is returned when a fresh code has been dispatched.
const ResendSentMessage = "Verification code sent successfully"

// ResendVerificationMessage is the resend request.
type ResendVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *ResendVerificationResponse)
}

func (e ResendVerificationMessage) Type() string { return "identity.resend_verification" }

// Validate will run validation rules
func (e ResendVerificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

// ResendVerificationResponse reports boolean success only. Whether the
// account exists is never disclosed.
type ResendVerificationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ResendVerificationHandler replaces any pending code with a fresh one.
// The old code becomes void the instant the transaction commits. Unknown
// emails and already-verified accounts get the same ineligible outcome
// and state is left untouched.
type ResendVerificationHandler struct {
	repo   RepositoryManager
	mailer *VerificationMailer
	logger Logger
	nowFn  func() time.Time
}

// ResendVerificationOption configures the handler.
type ResendVerificationOption func(*ResendVerificationHandler)

// WithResendLogger sets the handler logger.
func WithResendLogger(logger Logger) ResendVerificationOption {
	return func(h *ResendVerificationHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithResendNowFunc overrides the clock, for tests.
func WithResendNowFunc(now func() time.Time) ResendVerificationOption {
	return func(h *ResendVerificationHandler) {
		if now != nil {
			h.nowFn = now
		}
	}
}

// NewResendVerificationHandler wires the resend workflow.
func NewResendVerificationHandler(repo RepositoryManager, mailer *VerificationMailer, opts ...ResendVerificationOption) *ResendVerificationHandler {
	h := &ResendVerificationHandler{
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

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid resend payload")
	}

	user := &User{}
	var code string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				h.logger.Info("resend requested for unknown email")
				return ErrResendNotEligible
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user for resend")
		}

		if user.IsVerified {
			h.logger.Info("resend skipped: user %s is already verified", user.ID)
			return ErrResendNotEligible
		}

		code, err = GenerateVerificationCode()
		if err != nil {
			return err
		}

		expiresAt := h.nowFn().Add(VerificationCodeTTL)
		user, err = h.repo.Users().SetVerificationCodeTx(ctx, tx, user.ID, code, expiresAt, h.nowFn())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store fresh verification code")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification resend transaction failed")
	}

	h.logger.Info("verification email resent to user %s", user.ID)

	if event.OnResponse != nil {
		event.OnResponse(&ResendVerificationResponse{
			Success: true,
			Message: ResendSentMessage,
		})
	}

	// Post-commit dispatch: the fresh code stays valid even if the email
	// bounces here.
	if err := h.mailer.SendVerificationCode(ctx, user, code); err != nil {
		return err
	}

	return nil
}
