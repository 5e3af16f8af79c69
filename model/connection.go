package model

import (
	"strings"
	"time"
)

// Provider is an external OAuth2 identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
	ProviderGitHub   Provider = "github"
	ProviderApple    Provider = "apple"
)

// ParseProvider maps a case-insensitive name to a known provider.
func ParseProvider(name string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	switch p {
	case ProviderGoogle, ProviderFacebook, ProviderGitHub, ProviderApple:
		return p, true
	}
	return "", false
}

// OAuth2Connection links one user to one identity on one provider.
type OAuth2Connection struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Provider       Provider       `json:"provider"`
	ProviderUserID string         `json:"provider_user_id"`
	AccessToken    *string        `json:"-"`
	RefreshToken   *string        `json:"-"`
	TokenExpiresAt *time.Time     `json:"token_expires_at,omitempty"`
	ProfileData    map[string]any `json:"profile_data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastUsedAt     *time.Time     `json:"last_used_at,omitempty"`
}

// Clone returns a deep copy of the connection.
func (c *OAuth2Connection) Clone() *OAuth2Connection {
	if c == nil {
		return nil
	}
	out := *c
	out.AccessToken = cloneString(c.AccessToken)
	out.RefreshToken = cloneString(c.RefreshToken)
	if c.TokenExpiresAt != nil {
		t := *c.TokenExpiresAt
		out.TokenExpiresAt = &t
	}
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		out.LastUsedAt = &t
	}
	if c.ProfileData != nil {
		out.ProfileData = make(map[string]any, len(c.ProfileData))
		for k, v := range c.ProfileData {
			out.ProfileData[k] = v
		}
	}
	return &out
}
