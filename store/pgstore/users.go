package pgstore

import (
	"context"
	"time"

	"github.com/MrEthical07/lmsauth/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `id, email, username, first_name, last_name, password_hash, roles, status,
	organization_id, branch_id, profile_image_url, phone_number, email_verified,
	phone_verified, last_login, created_at, updated_at`

type userRow struct {
	ID              string         `db:"id"`
	Email           string         `db:"email"`
	Username        *string        `db:"username"`
	FirstName       string         `db:"first_name"`
	LastName        string         `db:"last_name"`
	PasswordHash    string         `db:"password_hash"`
	Roles           pq.StringArray `db:"roles"`
	Status          string         `db:"status"`
	OrganizationID  *string        `db:"organization_id"`
	BranchID        *string        `db:"branch_id"`
	ProfileImageURL *string        `db:"profile_image_url"`
	PhoneNumber     *string        `db:"phone_number"`
	EmailVerified   bool           `db:"email_verified"`
	PhoneVerified   bool           `db:"phone_verified"`
	LastLogin       *time.Time     `db:"last_login"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r *userRow) toModel() *model.User {
	roles := make([]model.Role, 0, len(r.Roles))
	for _, role := range r.Roles {
		roles = append(roles, model.Role(role))
	}
	return &model.User{
		ID:              r.ID,
		Email:           r.Email,
		Username:        r.Username,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		PasswordHash:    r.PasswordHash,
		Roles:           roles,
		Status:          model.UserStatus(r.Status),
		OrganizationID:  r.OrganizationID,
		BranchID:        r.BranchID,
		ProfileImageURL: r.ProfileImageURL,
		PhoneNumber:     r.PhoneNumber,
		EmailVerified:   r.EmailVerified,
		PhoneVerified:   r.PhoneVerified,
		LastLogin:       r.LastLogin,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// UserStore persists users in the users table.
type UserStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *UserStore) Create(ctx context.Context, u *model.User) (*model.User, error) {
	now := s.now()
	createdAt, updatedAt := u.CreatedAt, u.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	q := `INSERT INTO users (` + userColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING ` + userColumns
	return s.queryOne(ctx, q,
		u.ID, model.NormalizeEmail(u.Email), u.Username, u.FirstName, u.LastName, u.PasswordHash,
		pq.Array(u.RoleStrings()), string(u.Status), u.OrganizationID, u.BranchID,
		u.ProfileImageURL, u.PhoneNumber, u.EmailVerified, u.PhoneVerified, u.LastLogin,
		createdAt, updatedAt,
	)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail and GetByUsername only see users that are not DELETED, matching
// the partial unique indexes.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND status <> 'deleted'`, model.NormalizeEmail(email))
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 AND status <> 'deleted'`, username)
}

// Update replaces the mutable profile fields of an existing user.
func (s *UserStore) Update(ctx context.Context, u *model.User) (*model.User, error) {
	q := `UPDATE users SET email = $2, username = $3, first_name = $4, last_name = $5,
		password_hash = $6, roles = $7, status = $8, organization_id = $9, branch_id = $10,
		profile_image_url = $11, phone_number = $12, email_verified = $13, phone_verified = $14,
		last_login = $15, updated_at = $16
		WHERE id = $1
		RETURNING ` + userColumns
	return s.queryOne(ctx, q,
		u.ID, model.NormalizeEmail(u.Email), u.Username, u.FirstName, u.LastName, u.PasswordHash,
		pq.Array(u.RoleStrings()), string(u.Status), u.OrganizationID, u.BranchID,
		u.ProfileImageURL, u.PhoneNumber, u.EmailVerified, u.PhoneVerified, u.LastLogin,
		s.now(),
	)
}

func (s *UserStore) UpdateStatus(ctx context.Context, id string, status model.UserStatus) (*model.User, error) {
	return s.queryOne(ctx, `UPDATE users SET status = $2, updated_at = $3 WHERE id = $1 RETURNING `+userColumns,
		id, string(status), s.now())
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) (*model.User, error) {
	return s.queryOne(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 RETURNING `+userColumns,
		id, passwordHash, s.now())
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) (*model.User, error) {
	return s.queryOne(ctx, `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1 RETURNING `+userColumns,
		id, at, s.now())
}

func (s *UserStore) VerifyEmail(ctx context.Context, id string) (*model.User, error) {
	return s.queryOne(ctx, `UPDATE users SET email_verified = true, updated_at = $2 WHERE id = $1 RETURNING `+userColumns,
		id, s.now())
}

func (s *UserStore) queryOne(ctx context.Context, q string, args ...any) (*model.User, error) {
	var row userRow
	if err := s.db.QueryRowxContext(ctx, q, args...).StructScan(&row); err != nil {
		return nil, mapError(err)
	}
	return row.toModel(), nil
}
