package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/lmsauth"
)

const githubAPIURL = "https://api.github.com"

var ErrNoPrimaryEmail = errors.New("could not get primary email from github account")

type GitHubConfig struct {
	APIURL     string
	HTTPClient *http.Client
}

// GitHub resolves OAuth access tokens through the REST API. The identity email
// is the account's primary address.
type GitHub struct {
	url    string
	client *http.Client
}

func NewGitHub(cfg GitHubConfig) *GitHub {
	u := cfg.APIURL
	if u == "" {
		u = githubAPIURL
	}
	return &GitHub{url: strings.TrimRight(u, "/"), client: defaultClient(cfg.HTTPClient)}
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (g *GitHub) Verify(ctx context.Context, token string) (*lmsauth.ProviderIdentity, error) {
	header := http.Header{}
	header.Set("Authorization", "token "+token)
	header.Set("Accept", "application/vnd.github.v3+json")

	var user githubUser
	if err := getJSON(ctx, g.client, "github", g.url+"/user", nil, header, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, ErrMissingSubject
	}

	var emails []githubEmail
	if err := getJSON(ctx, g.client, "github", g.url+"/user/emails", nil, header, &emails); err != nil {
		return nil, err
	}
	var primary *githubEmail
	for i := range emails {
		if emails[i].Primary {
			primary = &emails[i]
			break
		}
	}
	if primary == nil {
		return nil, ErrNoPrimaryEmail
	}

	first, last := splitName(user.Name)
	profile := toProfile(user)
	if profile != nil {
		profile["email"] = primary.Email
		profile["email_verified"] = primary.Verified
	}
	return &lmsauth.ProviderIdentity{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          primary.Email,
		EmailVerified:  primary.Verified,
		FirstName:      first,
		LastName:       last,
		Picture:        user.AvatarURL,
		Profile:        profile,
	}, nil
}
