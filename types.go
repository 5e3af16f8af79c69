package lmsauth

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/model"
)

type (
	User             = model.User
	UserStatus       = model.UserStatus
	Role             = model.Role
	Token            = model.Token
	TokenType        = model.TokenType
	TokenPair        = model.TokenPair
	DeviceInfo       = model.DeviceInfo
	Provider         = model.Provider
	OAuth2Connection = model.OAuth2Connection

	// AccessClaims is the verified payload of an access token.
	AccessClaims = jwt.AccessClaims
)

const (
	StatusPendingVerification = model.StatusPendingVerification
	StatusActive              = model.StatusActive
	StatusInactive            = model.StatusInactive
	StatusSuspended           = model.StatusSuspended
	StatusDeleted             = model.StatusDeleted

	RoleSuperAdmin        = model.RoleSuperAdmin
	RoleOrganizationAdmin = model.RoleOrganizationAdmin
	RoleBranchManager     = model.RoleBranchManager
	RoleTeacher           = model.RoleTeacher
	RoleStudent           = model.RoleStudent
	RoleParent            = model.RoleParent

	ProviderGoogle   = model.ProviderGoogle
	ProviderFacebook = model.ProviderFacebook
	ProviderGitHub   = model.ProviderGitHub
	ProviderApple    = model.ProviderApple
)

// UserStore persists user accounts. Implementations report absence with
// model.ErrNotFound and enforce unique email and username with model.ErrDuplicate.
type UserStore interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
	UpdateStatus(ctx context.Context, id string, status UserStatus) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (*User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) (*User, error)
	VerifyEmail(ctx context.Context, id string) (*User, error)
}

// TokenStore persists issued tokens.
//
// Revoke must be an atomic compare-and-update from unrevoked to revoked: of N
// concurrent calls on the same id exactly one returns a nil error, and the others
// return model.ErrAlreadyRevoked. A store that gives up under write contention
// returns model.ErrContention. RevokeAllForUser with an empty tokenType
// matches every type. CleanExpired deletes records expiring before the given time.
type TokenStore interface {
	Create(ctx context.Context, token *Token) (*Token, error)
	GetByValue(ctx context.Context, value string) (*Token, error)
	GetByID(ctx context.Context, id string) (*Token, error)
	Revoke(ctx context.Context, id string) (*Token, error)
	RevokeByValue(ctx context.Context, value string) (*Token, error)
	RevokeAllForUser(ctx context.Context, userID string, tokenType TokenType) (int64, error)
	IsValid(ctx context.Context, value string) (bool, error)
	CleanExpired(ctx context.Context, before time.Time) (int64, error)
}

// FederationStore persists OAuth2 connections. (provider, provider_user_id) and
// (user_id, provider) are unique; violations are reported as model.ErrDuplicate.
type FederationStore interface {
	Create(ctx context.Context, conn *OAuth2Connection) (*OAuth2Connection, error)
	GetByID(ctx context.Context, id string) (*OAuth2Connection, error)
	GetByUserAndProvider(ctx context.Context, userID string, provider Provider) (*OAuth2Connection, error)
	GetByProviderUserID(ctx context.Context, provider Provider, providerUserID string) (*OAuth2Connection, error)
	Update(ctx context.Context, conn *OAuth2Connection) (*OAuth2Connection, error)
	UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) (*OAuth2Connection, error)
	ListByUser(ctx context.Context, userID string) ([]*OAuth2Connection, error)
}

// NotificationPurpose names why a token is being handed to the notifier.
type NotificationPurpose string

const (
	PurposeResetPassword     NotificationPurpose = "reset_password"
	PurposeEmailVerification NotificationPurpose = "email_verification"
)

// Notification is everything that crosses the notification boundary. Delivery
// channel and templating belong to the Notifier.
type Notification struct {
	User       *User
	TokenValue string
	Purpose    NotificationPurpose
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ProviderIdentity is what a provider verifier asserts about the caller.
type ProviderIdentity struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	FirstName      string
	LastName       string
	Picture        string
	// Profile is the raw provider payload, stored on the connection.
	Profile map[string]any
	// AccessToken, RefreshToken and ExpiresAt are provider credentials to be
	// persisted on the connection. AccessToken defaults to the token that was
	// verified.
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
}

// ProviderVerifier exchanges a raw provider token for an identity. Any transport
// or validation failure is returned as an error; the FederationEngine reports
// all of them as [ErrInvalidToken].
type ProviderVerifier interface {
	Verify(ctx context.Context, accessToken string) (*ProviderIdentity, error)
}

// RegisterRequest is the input of [Engine.Register]. Optional fields are left
// empty when absent.
type RegisterRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Username        string
	OrganizationID  string
	BranchID        string
	PhoneNumber     string
}

type (
	AuditEvent     = internalaudit.Event
	AuditSink      = internalaudit.Sink
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	ZapSink        = internalaudit.ZapSink
)
