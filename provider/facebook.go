package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/lmsauth"
)

const facebookGraphURL = "https://graph.facebook.com"

var ErrTokenNotValid = errors.New("token is not valid")

type FacebookConfig struct {
	AppID     string
	AppSecret string
	GraphURL  string

	HTTPClient *http.Client
}

// Facebook inspects user access tokens with debug_token and then reads the
// profile the token grants.
type Facebook struct {
	appID     string
	appSecret string
	url       string
	client    *http.Client
}

func NewFacebook(cfg FacebookConfig) *Facebook {
	u := cfg.GraphURL
	if u == "" {
		u = facebookGraphURL
	}
	return &Facebook{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		url:       strings.TrimRight(u, "/"),
		client:    defaultClient(cfg.HTTPClient),
	}
}

type facebookDebug struct {
	Data struct {
		IsValid bool   `json:"is_valid"`
		AppID   string `json:"app_id"`
		UserID  string `json:"user_id"`
	} `json:"data"`
}

type facebookProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func (f *Facebook) Verify(ctx context.Context, token string) (*lmsauth.ProviderIdentity, error) {
	var debug facebookDebug
	q := url.Values{
		"input_token":  {token},
		"access_token": {f.appID + "|" + f.appSecret},
	}
	if err := getJSON(ctx, f.client, "facebook", f.url+"/debug_token", q, nil, &debug); err != nil {
		return nil, err
	}
	if !debug.Data.IsValid {
		return nil, ErrTokenNotValid
	}
	if f.appID != "" && debug.Data.AppID != f.appID {
		return nil, ErrAudienceMismatch
	}
	if debug.Data.UserID == "" {
		return nil, ErrMissingSubject
	}

	var profile facebookProfile
	q = url.Values{
		"fields":       {"id,email,first_name,last_name,picture"},
		"access_token": {token},
	}
	if err := getJSON(ctx, f.client, "facebook", f.url+"/"+url.PathEscape(debug.Data.UserID), q, nil, &profile); err != nil {
		return nil, err
	}

	// Graph does not report email verification.
	return &lmsauth.ProviderIdentity{
		ProviderUserID: debug.Data.UserID,
		Email:          profile.Email,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		Picture:        profile.Picture.Data.URL,
		Profile:        toProfile(profile),
	}, nil
}
