package jwt

import "github.com/golang-jwt/jwt/v5"

// Purpose is the value of the "type" claim. A token minted for one purpose never
// verifies as another.
type Purpose string

const (
	PurposeAccess       Purpose = "access"
	PurposeRefresh      Purpose = "refresh"
	PurposeReset        Purpose = "reset_password"
	PurposeVerification Purpose = "email_verification"
)

// Claims is implemented only by the purpose structs in this package.
type Claims interface {
	jwt.Claims
	purpose() Purpose
	claimedType() Purpose
	stamp()
	registered() *jwt.RegisteredClaims
}

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	OrgID    string   `json:"org_id,omitempty"`
	BranchID string   `json:"branch_id,omitempty"`
	Type     Purpose  `json:"type"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) purpose() Purpose                  { return PurposeAccess }
func (c *AccessClaims) claimedType() Purpose              { return c.Type }
func (c *AccessClaims) stamp()                            { c.Type = PurposeAccess }
func (c *AccessClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// RefreshClaims is the payload of a persisted refresh token.
type RefreshClaims struct {
	Type Purpose `json:"type"`
	jwt.RegisteredClaims
}

func (c *RefreshClaims) purpose() Purpose                  { return PurposeRefresh }
func (c *RefreshClaims) claimedType() Purpose              { return c.Type }
func (c *RefreshClaims) stamp()                            { c.Type = PurposeRefresh }
func (c *RefreshClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// ResetClaims is the payload of a single-use password reset token.
type ResetClaims struct {
	Type Purpose `json:"type"`
	jwt.RegisteredClaims
}

func (c *ResetClaims) purpose() Purpose                  { return PurposeReset }
func (c *ResetClaims) claimedType() Purpose              { return c.Type }
func (c *ResetClaims) stamp()                            { c.Type = PurposeReset }
func (c *ResetClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// VerificationClaims is the payload of a single-use email verification token.
type VerificationClaims struct {
	Email string  `json:"email,omitempty"`
	Type  Purpose `json:"type"`
	jwt.RegisteredClaims
}

func (c *VerificationClaims) purpose() Purpose                  { return PurposeVerification }
func (c *VerificationClaims) claimedType() Purpose              { return c.Type }
func (c *VerificationClaims) stamp()                            { c.Type = PurposeVerification }
func (c *VerificationClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// TokenID returns the jti claim.
func TokenID(c Claims) string {
	return c.registered().ID
}

// Subject returns the sub claim.
func Subject(c Claims) string {
	return c.registered().Subject
}
