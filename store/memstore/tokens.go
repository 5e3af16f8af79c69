package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

type TokenStore struct {
	mu      sync.Mutex
	byID    map[string]*model.Token
	byValue map[string]string
	now     func() time.Time

	writes int
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		byID:    make(map[string]*model.Token),
		byValue: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenStore) Create(ctx context.Context, token *model.Token) (*model.Token, error) {
	t := token.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[t.ID]; ok {
		return nil, model.ErrDuplicate
	}
	if _, ok := s.byValue[t.Value]; ok {
		return nil, model.ErrDuplicate
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.byID[t.ID] = t
	s.byValue[t.Value] = t.ID
	s.writes++
	return t.Clone(), nil
}

func (s *TokenStore) GetByValue(ctx context.Context, value string) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byValue[value]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *TokenStore) GetByID(ctx context.Context, id string) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return t.Clone(), nil
}

// Revoke flips revoked from false to true. A record that is already revoked is
// returned together with model.ErrAlreadyRevoked.
func (s *TokenStore) Revoke(ctx context.Context, id string) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if t.Revoked {
		return t.Clone(), model.ErrAlreadyRevoked
	}
	s.revokeLocked(t)
	return t.Clone(), nil
}

func (s *TokenStore) RevokeByValue(ctx context.Context, value string) (*model.Token, error) {
	s.mu.Lock()
	id, ok := s.byValue[value]
	s.mu.Unlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.Revoke(ctx, id)
}

// RevokeAllForUser revokes every live token of userID. An empty tokenType
// matches all types.
func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string, tokenType model.TokenType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.byID {
		if t.UserID != userID || t.Revoked {
			continue
		}
		if tokenType != "" && t.Type != tokenType {
			continue
		}
		s.revokeLocked(t)
		n++
	}
	return n, nil
}

func (s *TokenStore) IsValid(ctx context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byValue[value]
	if !ok {
		return false, nil
	}
	return s.byID[id].Usable(s.now()), nil
}

// CleanExpired deletes records whose expiry is before the given time.
func (s *TokenStore) CleanExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.byID {
		if t.ExpiresAt.Before(before) {
			delete(s.byID, id)
			delete(s.byValue, t.Value)
			n++
		}
	}
	if n > 0 {
		s.writes++
	}
	return n, nil
}

// Writes counts mutating calls that changed state.
func (s *TokenStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *TokenStore) revokeLocked(t *model.Token) {
	now := s.now()
	t.Revoked = true
	t.RevokedAt = &now
	s.writes++
}
