package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MrEthical07/lmsauth"
)

const googleTokenInfoURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"

type GoogleConfig struct {
	// ClientID is compared with the token audience when set.
	ClientID     string
	TokenInfoURL string
	HTTPClient   *http.Client
}

// Google verifies Google ID tokens with the tokeninfo endpoint.
type Google struct {
	clientID string
	url      string
	client   *http.Client
}

func NewGoogle(cfg GoogleConfig) *Google {
	u := cfg.TokenInfoURL
	if u == "" {
		u = googleTokenInfoURL
	}
	return &Google{clientID: cfg.ClientID, url: u, client: defaultClient(cfg.HTTPClient)}
}

type googleTokenInfo struct {
	Sub           string   `json:"sub"`
	Aud           string   `json:"aud"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	GivenName     string   `json:"given_name"`
	FamilyName    string   `json:"family_name"`
	Picture       string   `json:"picture"`
	Name          string   `json:"name"`
}

func (g *Google) Verify(ctx context.Context, token string) (*lmsauth.ProviderIdentity, error) {
	var info googleTokenInfo
	if err := getJSON(ctx, g.client, "google", g.url, url.Values{"id_token": {token}}, nil, &info); err != nil {
		return nil, err
	}
	if g.clientID != "" && info.Aud != g.clientID {
		return nil, ErrAudienceMismatch
	}
	if info.Sub == "" {
		return nil, ErrMissingSubject
	}

	return &lmsauth.ProviderIdentity{
		ProviderUserID: info.Sub,
		Email:          info.Email,
		EmailVerified:  bool(info.EmailVerified),
		FirstName:      info.GivenName,
		LastName:       info.FamilyName,
		Picture:        info.Picture,
		Profile:        toProfile(info),
	}, nil
}
