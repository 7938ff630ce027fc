package google

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sleeved/go-identity/social"
)

// idTokenVerifier validates Google ID tokens against the published JWKS.
// The key set is fetched lazily on first use and refreshed in the
// background for the lifetime of the provider.
type idTokenVerifier struct {
	clientID string
	jwksURL  string

	mu   sync.Mutex
	jwks *keyfunc.JWKS
}

func newIDTokenVerifier(clientID, jwksURL string) *idTokenVerifier {
	return &idTokenVerifier{
		clientID: clientID,
		jwksURL:  jwksURL,
	}
}

// VerifyIDToken implements social.IDTokenVerifier for the provider.
func (p *Provider) VerifyIDToken(ctx context.Context, rawToken string) (*social.Profile, error) {
	return p.idTokens.verify(ctx, rawToken)
}

func (v *idTokenVerifier) verify(ctx context.Context, rawToken string) (*social.Profile, error) {
	jwks, err := v.keySet(ctx)
	if err != nil {
		return nil, providerError("id_token", 0, "jwks_unavailable", "failed to fetch signing keys", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(rawToken, claims, jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, providerError("id_token", 0, "invalid_token", "id token validation failed", err)
	}

	issuer, _ := claims.GetIssuer()
	if issuer != "https://accounts.google.com" && issuer != "accounts.google.com" {
		return nil, providerError("id_token", 0, "invalid_issuer",
			fmt.Sprintf("unexpected issuer: %s", issuer), nil)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, providerError("id_token", 0, "missing_subject", "id token has no subject", nil)
	}

	return &social.Profile{
		ProviderUserID: sub,
		Provider:       "google",
		Email:          stringClaim(claims, "email"),
		EmailVerified:  boolClaim(claims, "email_verified"),
		Name:           stringClaim(claims, "name"),
		AvatarURL:      stringClaim(claims, "picture"),
		Raw:            map[string]any(claims),
	}, nil
}

func (v *idTokenVerifier) keySet(ctx context.Context) (*keyfunc.JWKS, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.jwks != nil {
		return v.jwks, nil
	}

	jwks, err := keyfunc.Get(v.jwksURL, keyfunc.Options{
		Ctx:               context.WithoutCancel(ctx),
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, err
	}

	v.jwks = jwks
	return jwks, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

// boolClaim tolerates the string form Google uses in some token variants.
func boolClaim(claims jwt.MapClaims, key string) bool {
	switch val := claims[key].(type) {
	case bool:
		return val
	case string:
		return val == "true"
	default:
		return false
	}
}
