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

// VerifiedMessage is returned to the caller on successful verification.
const VerifiedMessage = "Email verified successfully"

// VerifyEmailMessage is the code-consumption request.
type VerifyEmailMessage struct {
	Email      string `json:"email"`
	Code       string `json:"code"`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "identity.verify_email" }

// Validate will run validation rules
func (e VerifyEmailMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

// VerifyEmailResponse carries the now-verified user and a fresh token.
type VerifyEmailResponse struct {
	User    UserPayload `json:"user"`
	Token   string      `json:"token"`
	Type    string      `json:"type"`
	Message string      `json:"message"`
}

// VerifyEmailHandler consumes a verification code. Lookup, state
// transition, and token mint happen in one transaction so two concurrent
// attempts against the same code cannot both win: the loser no longer
// finds the code and observes the uniform invalid-code error.
type VerifyEmailHandler struct {
	repo   RepositoryManager
	tokens *TokenService
	logger Logger
	nowFn  func() time.Time
}

// VerifyEmailOption configures the handler.
type VerifyEmailOption func(*VerifyEmailHandler)

// WithVerifyLogger sets the handler logger.
func WithVerifyLogger(logger Logger) VerifyEmailOption {
	return func(h *VerifyEmailHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithVerifyNowFunc overrides the clock, for tests.
func WithVerifyNowFunc(now func() time.Time) VerifyEmailOption {
	return func(h *VerifyEmailHandler) {
		if now != nil {
			h.nowFn = now
		}
	}
}

// NewVerifyEmailHandler wires the verification workflow.
func NewVerifyEmailHandler(repo RepositoryManager, tokens *TokenService, opts ...VerifyEmailOption) *VerifyEmailHandler {
	h := &VerifyEmailHandler{
		repo:   repo,
		tokens: tokens,
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

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	if err := event.Validate(); err != nil {
		// Malformed input gets the same uniform answer as a wrong guess.
		return ErrInvalidVerificationCode
	}

	resp := &VerifyEmailResponse{Type: "bearer"}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByEmailAndCodeTx(ctx, tx, event.Email, event.Code, h.nowFn())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidVerificationCode
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up verification code")
		}

		user, err = h.repo.Users().MarkVerifiedTx(ctx, tx, user.ID, h.nowFn())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark user verified")
		}

		token, err := h.tokens.IssueTx(ctx, tx, user)
		if err != nil {
			return err
		}

		resp.User = user.Payload()
		resp.Token = token
		resp.Message = VerifiedMessage
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	h.logger.Info("verified email for user %s", resp.User.ID)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
