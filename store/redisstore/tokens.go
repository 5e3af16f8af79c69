package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/lmsauth/model"
	"github.com/redis/go-redis/v9"
)

const maxRetries = 8

// TokenStore keeps token records in Redis.
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewTokenStore returns a store whose keys start with prefix ("lms" when
// empty).
func NewTokenStore(client redis.UniversalClient, prefix string) *TokenStore {
	if prefix == "" {
		prefix = "lms"
	}
	return &TokenStore{
		redis:  client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenStore) recordKey(id string) string {
	return s.prefix + ":tok:" + id
}

// Values are indexed by hash so signed tokens never appear in key space.
func (s *TokenStore) valueKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return s.prefix + ":tokv:" + hex.EncodeToString(sum[:])
}

func (s *TokenStore) userKey(userID string) string {
	return s.prefix + ":toku:" + userID
}

func (s *TokenStore) expiryKey() string {
	return s.prefix + ":tokexp"
}

func (s *TokenStore) Create(ctx context.Context, token *model.Token) (*model.Token, error) {
	t := token.Clone()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}

	recordKey, valueKey := s.recordKey(t.ID), s.valueKey(t.Value)
	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, recordKey, valueKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return model.ErrDuplicate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, recordKey, data, 0)
			pipe.Set(ctx, valueKey, t.ID, 0)
			pipe.SAdd(ctx, s.userKey(t.UserID), t.ID)
			pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(t.ExpiresAt.UnixMilli()), Member: t.ID})
			return nil
		})
		return err
	}, recordKey, valueKey)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, model.ErrDuplicate):
		return nil, err
	case errors.Is(err, redis.TxFailedErr):
		// Someone wrote one of the keys between WATCH and EXEC.
		return nil, model.ErrDuplicate
	default:
		return nil, fmt.Errorf("create token: %w", err)
	}
}

func (s *TokenStore) GetByValue(ctx context.Context, value string) (*model.Token, error) {
	id, err := s.redis.Get(ctx, s.valueKey(value)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *TokenStore) GetByID(ctx context.Context, id string) (*model.Token, error) {
	data, err := s.redis.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return decodeToken(data)
}

// Revoke flips revoked from false to true. A record that is already revoked is
// returned together with model.ErrAlreadyRevoked.
func (s *TokenStore) Revoke(ctx context.Context, id string) (*model.Token, error) {
	key := s.recordKey(id)

	for i := 0; i < maxRetries; i++ {
		var result *model.Token

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			tok, err := decodeToken(data)
			if err != nil {
				return err
			}
			if tok.Revoked {
				result = tok
				return model.ErrAlreadyRevoked
			}

			now := s.now()
			tok.Revoked = true
			tok.RevokedAt = &now
			updated, err := json.Marshal(tok)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}
			result = tok
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, model.ErrAlreadyRevoked):
			return result, err
		case errors.Is(err, redis.Nil):
			return nil, model.ErrNotFound
		default:
			return nil, fmt.Errorf("revoke token: %w", err)
		}
	}

	return nil, model.ErrContention
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
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, err
	}

	var n int64
	for _, id := range ids {
		tok, err := s.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return n, err
		}
		if tok.Revoked || (tokenType != "" && tok.Type != tokenType) {
			continue
		}
		if _, err := s.Revoke(ctx, id); err != nil {
			if errors.Is(err, model.ErrAlreadyRevoked) || errors.Is(err, model.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *TokenStore) IsValid(ctx context.Context, value string) (bool, error) {
	tok, err := s.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return tok.Usable(s.now()), nil
}

// CleanExpired deletes records whose expiry is before the given time, along
// with their index entries.
func (s *TokenStore) CleanExpired(ctx context.Context, before time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, err
	}

	var n int64
	for _, id := range ids {
		tok, err := s.GetByID(ctx, id)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return n, err
		}
		_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.recordKey(id))
			pipe.ZRem(ctx, s.expiryKey(), id)
			if tok != nil {
				pipe.Del(ctx, s.valueKey(tok.Value))
				pipe.SRem(ctx, s.userKey(tok.UserID), id)
			}
			return nil
		})
		if err != nil {
			return n, err
		}
		if tok != nil {
			n++
		}
	}
	return n, nil
}

func decodeToken(data []byte) (*model.Token, error) {
	var tok model.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}
