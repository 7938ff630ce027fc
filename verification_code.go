package identity

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/goliatone/go-errors"
)

// VerificationCodeTTL is how long an issued code stays valid. Policy
// constant, not negotiable per call.
const VerificationCodeTTL = 15 * time.Minute

const (
	verificationCodeMin  = 100000
	verificationCodeSpan = 900000
)

// GenerateVerificationCode produces a uniformly distributed six-digit
// numeric code in 100000..999999. Fixed width, a leading zero is impossible
// by construction. Codes are single use and only meaningful per identity;
// uniqueness across identities is not guaranteed.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationCodeSpan))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read random source")
	}
	return big.NewInt(verificationCodeMin + n.Int64()).String(), nil
}
