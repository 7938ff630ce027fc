package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeDuplicateEmail     = "identity_duplicate_email"
	TextCodeInvalidCredentials = "identity_invalid_credentials"
	TextCodeEmailNotVerified   = "identity_email_not_verified"
	TextCodeInvalidCode        = "identity_invalid_verification_code"
	TextCodeResendNotEligible  = "identity_resend_not_eligible"
	TextCodeMailDispatchFailed = "identity_mail_dispatch_failed"
	TextCodeInvalidToken       = "identity_invalid_token"
)

// ErrDuplicateEmail is returned when a registration collides with an
// existing account. Callers attach the offending email as metadata.
var ErrDuplicateEmail = errors.New("email address is already registered", errors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeConflict)

// ErrInvalidCredentials covers both unknown email and wrong password.
// The two cases are deliberately indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified rejects logins on accounts that passed the password
// check but have not completed email verification.
var ErrEmailNotVerified = errors.New("email not verified. Please verify your email before accessing this resource", errors.CategoryAuth).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrInvalidVerificationCode covers wrong code, expired code, and unknown
// email uniformly so a caller cannot probe which part of a guess was wrong.
var ErrInvalidVerificationCode = errors.New("invalid or expired verification code", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidCode).
	WithCode(errors.CodeBadRequest)

// ErrResendNotEligible is the uniform outcome for resend requests that
// cannot proceed: no such account, or already verified.
var ErrResendNotEligible = errors.New("unable to send verification email. User may not exist or is already verified", errors.CategoryBadInput).
	WithTextCode(TextCodeResendNotEligible).
	WithCode(errors.CodeBadRequest)

// ErrMailDispatchFailed reports a post-commit email failure. The state
// transition that preceded it is kept; the caller can retry via resend.
var ErrMailDispatchFailed = errors.New("failed to send email. Please try again later", errors.CategoryOperation).
	WithTextCode(TextCodeMailDispatchFailed).
	WithCode(errors.CodeInternal)

// ErrInvalidToken rejects unknown or expired bearer tokens.
var ErrInvalidToken = errors.New("invalid or expired token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeUnauthorized)

// ErrNoEmptyString guards hashing empty passwords.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword wraps the hasher's mismatch result.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// NewDuplicateEmailError builds a fresh ErrDuplicateEmail-shaped error so
// the colliding address can ride along without touching the sentinel.
func NewDuplicateEmailError(email string) *errors.Error {
	return errors.New("email address is already registered", errors.CategoryConflict).
		WithTextCode(TextCodeDuplicateEmail).
		WithCode(errors.CodeConflict).
		WithMetadata(map[string]any{"email": email})
}

// HasTextCode reports whether err carries the given go-errors text code.
func HasTextCode(err error, textCode string) bool {
	var rich *errors.Error
	if !errors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

// IsUniqueViolation checks for a unique-constraint failure across the
// drivers we run against (sqlite, postgres).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
