package model

import "time"

// TokenType identifies the purpose of an issued credential.
type TokenType string

const (
	TokenAccess            TokenType = "access"
	TokenRefresh           TokenType = "refresh"
	TokenResetPassword     TokenType = "reset_password"
	TokenEmailVerification TokenType = "email_verification"
	TokenAPIKey            TokenType = "api_key"
)

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TokenAccess, TokenRefresh, TokenResetPassword, TokenEmailVerification, TokenAPIKey:
		return true
	}
	return false
}

// Persisted reports whether tokens of this type are stored. Access tokens are stateless.
func (t TokenType) Persisted() bool {
	return t.Valid() && t != TokenAccess
}

// DeviceInfo is an opaque map describing the client a token was issued to.
type DeviceInfo map[string]any

// Clone returns a shallow copy of the map.
func (d DeviceInfo) Clone() DeviceInfo {
	if d == nil {
		return nil
	}
	out := make(DeviceInfo, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Token is an issued credential record. TokenValue is the signed compact string.
type Token struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Type       TokenType      `json:"token_type"`
	Value      string         `json:"token_value"`
	ExpiresAt  time.Time      `json:"expires_at"`
	CreatedAt  time.Time      `json:"created_at"`
	Revoked    bool           `json:"revoked"`
	RevokedAt  *time.Time     `json:"revoked_at,omitempty"`
	DeviceInfo DeviceInfo     `json:"device_info,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the token is past its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Usable reports whether the record is unrevoked and unexpired at now. The type claim
// inside Value is checked by the signer, not here.
func (t *Token) Usable(now time.Time) bool {
	return t != nil && !t.Revoked && !t.Expired(now)
}

// Clone returns a deep copy of the record.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	c.DeviceInfo = t.DeviceInfo.Clone()
	if t.Metadata != nil {
		c.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	if t.RevokedAt != nil {
		r := *t.RevokedAt
		c.RevokedAt = &r
	}
	return &c
}

// TokenTypeBearer is the token kind label returned with every pair.
const TokenTypeBearer = "bearer"

// TokenPair is the emitted contract of every successful authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
