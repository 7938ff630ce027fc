package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is assumed for numbers submitted without a country
// prefix.
const DefaultPhoneRegion = "US"

// NormalizePhone parses an optional phone number and returns it in E.164
// form. Empty input is passed through unchanged.
func NormalizePhone(raw, region string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	if region == "" {
		region = DefaultPhoneRegion
	}

	num, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryValidation, "invalid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number", errors.CategoryValidation)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
