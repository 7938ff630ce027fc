package google

import "github.com/sleeved/go-identity/social"

// googleUserInfo is the OpenID Connect userinfo document.
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

func (u *googleUserInfo) profile() *social.Profile {
	if u == nil {
		return nil
	}

	return &social.Profile{
		ProviderUserID: u.Sub,
		Provider:       "google",
		Email:          u.Email,
		EmailVerified:  u.EmailVerified,
		Name:           u.Name,
		AvatarURL:      u.Picture,
		Raw: map[string]any{
			"sub":            u.Sub,
			"email":          u.Email,
			"email_verified": u.EmailVerified,
			"name":           u.Name,
			"given_name":     u.GivenName,
			"family_name":    u.FamilyName,
			"picture":        u.Picture,
			"locale":         u.Locale,
		},
	}
}
