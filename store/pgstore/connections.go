package pgstore

import (
	"context"
	"time"

	"github.com/MrEthical07/lmsauth/model"
	"github.com/jmoiron/sqlx"
)

const connectionColumns = `id, user_id, provider, provider_user_id, access_token, refresh_token,
	token_expires_at, profile_data, created_at, updated_at, last_used_at`

type connectionRow struct {
	ID             string     `db:"id"`
	UserID         string     `db:"user_id"`
	Provider       string     `db:"provider"`
	ProviderUserID string     `db:"provider_user_id"`
	AccessToken    *string    `db:"access_token"`
	RefreshToken   *string    `db:"refresh_token"`
	TokenExpiresAt *time.Time `db:"token_expires_at"`
	ProfileData    jsonMap    `db:"profile_data"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	LastUsedAt     *time.Time `db:"last_used_at"`
}

func (r *connectionRow) toModel() *model.OAuth2Connection {
	return &model.OAuth2Connection{
		ID:             r.ID,
		UserID:         r.UserID,
		Provider:       model.Provider(r.Provider),
		ProviderUserID: r.ProviderUserID,
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		TokenExpiresAt: r.TokenExpiresAt,
		ProfileData:    map[string]any(r.ProfileData),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		LastUsedAt:     r.LastUsedAt,
	}
}

// FederationStore persists OAuth2 connections in the oauth2_connections table.
type FederationStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewFederationStore(db *sqlx.DB) *FederationStore {
	return &FederationStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *FederationStore) Create(ctx context.Context, c *model.OAuth2Connection) (*model.OAuth2Connection, error) {
	now := s.now()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	q := `INSERT INTO oauth2_connections (` + connectionColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING ` + connectionColumns
	return s.queryOne(ctx, q,
		c.ID, c.UserID, string(c.Provider), c.ProviderUserID, c.AccessToken, c.RefreshToken,
		c.TokenExpiresAt, jsonMap(c.ProfileData), createdAt, now, c.LastUsedAt,
	)
}

func (s *FederationStore) GetByID(ctx context.Context, id string) (*model.OAuth2Connection, error) {
	return s.queryOne(ctx, `SELECT `+connectionColumns+` FROM oauth2_connections WHERE id = $1`, id)
}

func (s *FederationStore) GetByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.OAuth2Connection, error) {
	return s.queryOne(ctx, `SELECT `+connectionColumns+` FROM oauth2_connections WHERE user_id = $1 AND provider = $2`,
		userID, string(provider))
}

func (s *FederationStore) GetByProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.OAuth2Connection, error) {
	return s.queryOne(ctx, `SELECT `+connectionColumns+` FROM oauth2_connections WHERE provider = $1 AND provider_user_id = $2`,
		string(provider), providerUserID)
}

func (s *FederationStore) Update(ctx context.Context, c *model.OAuth2Connection) (*model.OAuth2Connection, error) {
	q := `UPDATE oauth2_connections SET user_id = $2, provider = $3, provider_user_id = $4,
		access_token = $5, refresh_token = $6, token_expires_at = $7, profile_data = $8,
		updated_at = $9, last_used_at = $10
		WHERE id = $1
		RETURNING ` + connectionColumns
	return s.queryOne(ctx, q,
		c.ID, c.UserID, string(c.Provider), c.ProviderUserID, c.AccessToken, c.RefreshToken,
		c.TokenExpiresAt, jsonMap(c.ProfileData), s.now(), c.LastUsedAt,
	)
}

// UpdateTokens stores fresh provider credentials and bumps last_used_at. A nil
// refreshToken or expiresAt keeps the stored value.
func (s *FederationStore) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) (*model.OAuth2Connection, error) {
	now := s.now()
	q := `UPDATE oauth2_connections SET access_token = $2,
		refresh_token = COALESCE($3, refresh_token),
		token_expires_at = COALESCE($4, token_expires_at),
		last_used_at = $5, updated_at = $5
		WHERE id = $1
		RETURNING ` + connectionColumns
	return s.queryOne(ctx, q, id, accessToken, refreshToken, expiresAt, now)
}

func (s *FederationStore) ListByUser(ctx context.Context, userID string) ([]*model.OAuth2Connection, error) {
	var rows []connectionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+connectionColumns+` FROM oauth2_connections WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]*model.OAuth2Connection, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *FederationStore) queryOne(ctx context.Context, q string, args ...any) (*model.OAuth2Connection, error) {
	var row connectionRow
	if err := s.db.QueryRowxContext(ctx, q, args...).StructScan(&row); err != nil {
		return nil, mapError(err)
	}
	return row.toModel(), nil
}
