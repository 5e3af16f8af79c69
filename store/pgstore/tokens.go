package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
	"github.com/jmoiron/sqlx"
)

const tokenColumns = `id, user_id, token_type, token_value, expires_at, created_at, revoked,
	revoked_at, device_info, metadata`

type tokenRow struct {
	ID         string     `db:"id"`
	UserID     string     `db:"user_id"`
	Type       string     `db:"token_type"`
	Value      string     `db:"token_value"`
	ExpiresAt  time.Time  `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
	Revoked    bool       `db:"revoked"`
	RevokedAt  *time.Time `db:"revoked_at"`
	DeviceInfo jsonMap    `db:"device_info"`
	Metadata   jsonMap    `db:"metadata"`
}

func (r *tokenRow) toModel() *model.Token {
	return &model.Token{
		ID:         r.ID,
		UserID:     r.UserID,
		Type:       model.TokenType(r.Type),
		Value:      r.Value,
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  r.CreatedAt,
		Revoked:    r.Revoked,
		RevokedAt:  r.RevokedAt,
		DeviceInfo: model.DeviceInfo(r.DeviceInfo),
		Metadata:   map[string]any(r.Metadata),
	}
}

// TokenStore persists issued tokens in the tokens table.
type TokenStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewTokenStore(db *sqlx.DB) *TokenStore {
	return &TokenStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *TokenStore) Create(ctx context.Context, t *model.Token) (*model.Token, error) {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	q := `INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING ` + tokenColumns
	return s.queryOne(ctx, q,
		t.ID, t.UserID, string(t.Type), t.Value, t.ExpiresAt, createdAt, t.Revoked, t.RevokedAt,
		jsonMap(t.DeviceInfo), jsonMap(t.Metadata),
	)
}

func (s *TokenStore) GetByValue(ctx context.Context, value string) (*model.Token, error) {
	return s.queryOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token_value = $1`, value)
}

func (s *TokenStore) GetByID(ctx context.Context, id string) (*model.Token, error) {
	return s.queryOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id)
}

// Revoke flips revoked from false to true in one conditional UPDATE. When no
// row matched, the record is re-read to tell an unknown id from one that was
// already revoked.
func (s *TokenStore) Revoke(ctx context.Context, id string) (*model.Token, error) {
	tok, err := s.queryOne(ctx,
		`UPDATE tokens SET revoked = true, revoked_at = $2 WHERE id = $1 AND revoked = false RETURNING `+tokenColumns,
		id, s.now())
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return existing, model.ErrAlreadyRevoked
}

func (s *TokenStore) RevokeByValue(ctx context.Context, value string) (*model.Token, error) {
	tok, err := s.GetByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	return s.Revoke(ctx, tok.ID)
}

// RevokeAllForUser revokes every live token of userID. An empty tokenType
// matches all types.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string, tokenType model.TokenType) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET revoked = true, revoked_at = $3
		WHERE user_id = $1 AND revoked = false AND ($2 = '' OR token_type = $2)`,
		userID, string(tokenType), s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TokenStore) IsValid(ctx context.Context, value string) (bool, error) {
	var valid bool
	err := s.db.GetContext(ctx, &valid,
		`SELECT EXISTS (SELECT 1 FROM tokens WHERE token_value = $1 AND revoked = false AND expires_at > $2)`,
		value, s.now())
	if err != nil {
		return false, err
	}
	return valid, nil
}

// CleanExpired deletes records whose expiry is before the given time.
func (s *TokenStore) CleanExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TokenStore) queryOne(ctx context.Context, q string, args ...any) (*model.Token, error) {
	var row tokenRow
	if err := s.db.QueryRowxContext(ctx, q, args...).StructScan(&row); err != nil {
		return nil, mapError(err)
	}
	return row.toModel(), nil
}
