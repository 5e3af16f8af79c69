package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

// RegisterFailureKind classifies registration failures.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailurePolicy
	RegisterFailureInvalid
	RegisterFailureLookup
	RegisterFailureDuplicate
	RegisterFailureHash
	RegisterFailureCreate
	RegisterFailureIssue
)

// RegisterInput is the normalized registration request.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Username        string
	OrganizationID  string
	BranchID        string
	PhoneNumber     string
	Role            model.Role
}

type RegisterResult struct {
	Failure    RegisterFailureKind
	Err        error
	Violations []string
	Field      string
	User       *model.User
	Pair       *model.TokenPair
}

type RegisterUserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) (*model.User, error)
}

type RegisterDeps struct {
	Users        RegisterUserStore
	CheckPolicy  func(string) []string
	HashPassword func(string) (string, error)
	NewID        func() string
	Now          func() time.Time
	IssuePair    IssuePairFunc
	// IssueVerification stores and dispatches the email verification token.
	IssueVerification func(ctx context.Context, user *model.User) error
	Warn              func(string, ...any)
}

// RunRegister validates the request before touching the store, creates a
// pending user and issues provisional tokens.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) RegisterResult {
	if in.Password != in.ConfirmPassword {
		return RegisterResult{Failure: RegisterFailurePolicy, Violations: []string{"passwords do not match"}}
	}
	if violations := deps.CheckPolicy(in.Password); len(violations) > 0 {
		return RegisterResult{Failure: RegisterFailurePolicy, Violations: violations}
	}

	email := model.NormalizeEmail(in.Email)
	if email == "" {
		return RegisterResult{Failure: RegisterFailureInvalid, Field: "email", Err: errors.New("email required")}
	}
	role := in.Role
	if role == "" {
		role = model.RoleStudent
	}
	if !role.Valid() {
		return RegisterResult{Failure: RegisterFailureInvalid, Field: "role", Err: errors.New("unknown role")}
	}

	if _, err := deps.Users.GetByEmail(ctx, email); err == nil {
		return RegisterResult{Failure: RegisterFailureDuplicate, Field: "email"}
	} else if !errors.Is(err, model.ErrNotFound) {
		return RegisterResult{Failure: RegisterFailureLookup, Err: err}
	}

	username := model.NormalizeUsername(in.Username)
	if username != "" {
		if _, err := deps.Users.GetByUsername(ctx, username); err == nil {
			return RegisterResult{Failure: RegisterFailureDuplicate, Field: "username"}
		} else if !errors.Is(err, model.ErrNotFound) {
			return RegisterResult{Failure: RegisterFailureLookup, Err: err}
		}
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	now := nowOr(deps.Now)
	user := &model.User{
		ID:             deps.NewID(),
		Email:          email,
		Username:       optional(username),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		PasswordHash:   hash,
		Roles:          []model.Role{role},
		Status:         model.StatusPendingVerification,
		OrganizationID: optional(in.OrganizationID),
		BranchID:       optional(in.BranchID),
		PhoneNumber:    optional(in.PhoneNumber),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := deps.Users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Field: "email", Err: err}
		}
		return RegisterResult{Failure: RegisterFailureCreate, Err: err}
	}

	// The verification token goes out before the pair, so a user whose pair
	// could not be issued can still verify and then log in.
	if deps.IssueVerification != nil {
		if err := deps.IssueVerification(ctx, created); err != nil {
			warn(deps.Warn, "verification token issue failed", "user_id", created.ID, "error", err)
		}
	}

	pair, err := deps.IssuePair(ctx, created, model.DeviceInfo{"source": "registration"})
	if err != nil {
		return RegisterResult{Failure: RegisterFailureIssue, Err: err, User: created}
	}

	return RegisterResult{User: created, Pair: pair}
}

// ChangePasswordFailureKind classifies password change failures.
type ChangePasswordFailureKind int

const (
	ChangePasswordFailureNone ChangePasswordFailureKind = iota
	ChangePasswordFailurePolicy
	ChangePasswordFailureLookup
	ChangePasswordFailureUserNotFound
	ChangePasswordFailureInvalidCurrent
	ChangePasswordFailureHash
	ChangePasswordFailureUpdate
	ChangePasswordFailureRevoke
)

type ChangePasswordResult struct {
	Failure         ChangePasswordFailureKind
	Err             error
	Violations      []string
	RevokedSessions int64
}

type ChangePasswordUserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (*model.User, error)
}

type ChangePasswordDeps struct {
	Users          ChangePasswordUserStore
	Tokens         TokenStore
	VerifyPassword func(plain, encoded string) (bool, error)
	CheckPolicy    func(string) []string
	HashPassword   func(string) (string, error)
}

// RunChangePassword replaces the password of an authenticated user and revokes
// all of their refresh tokens.
func RunChangePassword(ctx context.Context, userID, current, next, confirm string, deps ChangePasswordDeps) ChangePasswordResult {
	if next != confirm {
		return ChangePasswordResult{Failure: ChangePasswordFailurePolicy, Violations: []string{"passwords do not match"}}
	}
	if violations := deps.CheckPolicy(next); len(violations) > 0 {
		return ChangePasswordResult{Failure: ChangePasswordFailurePolicy, Violations: violations}
	}
	if next == current {
		return ChangePasswordResult{Failure: ChangePasswordFailurePolicy, Violations: []string{"new password must be different from current password"}}
	}

	user, err := deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return ChangePasswordResult{Failure: ChangePasswordFailureUserNotFound, Err: err}
		}
		return ChangePasswordResult{Failure: ChangePasswordFailureLookup, Err: err}
	}

	ok, err := deps.VerifyPassword(current, user.PasswordHash)
	if !ok {
		return ChangePasswordResult{Failure: ChangePasswordFailureInvalidCurrent, Err: err}
	}

	hash, err := deps.HashPassword(next)
	if err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureHash, Err: err}
	}
	if _, err := deps.Users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureUpdate, Err: err}
	}

	revoked, err := deps.Tokens.RevokeAllForUser(ctx, user.ID, model.TokenRefresh)
	if err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureRevoke, Err: err}
	}
	return ChangePasswordResult{RevokedSessions: revoked}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
