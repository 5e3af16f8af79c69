package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

type connKey struct {
	provider       model.Provider
	providerUserID string
}

type userKey struct {
	userID   string
	provider model.Provider
}

// FederationStore enforces both unique keys of a connection: the provider
// identity and the (user, provider) pair.
type FederationStore struct {
	mu         sync.RWMutex
	byID       map[string]*model.OAuth2Connection
	byProvider map[connKey]string
	byUser     map[userKey]string
	now        func() time.Time
}

func NewFederationStore() *FederationStore {
	return &FederationStore{
		byID:       make(map[string]*model.OAuth2Connection),
		byProvider: make(map[connKey]string),
		byUser:     make(map[userKey]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *FederationStore) Create(ctx context.Context, conn *model.OAuth2Connection) (*model.OAuth2Connection, error) {
	c := conn.Clone()
	key := connKey{c.Provider, c.ProviderUserID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.ID]; ok {
		return nil, model.ErrDuplicate
	}
	if _, ok := s.byProvider[key]; ok {
		return nil, model.ErrDuplicate
	}
	if _, ok := s.byUser[userKey{c.UserID, c.Provider}]; ok {
		return nil, model.ErrDuplicate
	}
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.byID[c.ID] = c
	s.byProvider[key] = c.ID
	s.byUser[userKey{c.UserID, c.Provider}] = c.ID
	return c.Clone(), nil
}

func (s *FederationStore) GetByID(ctx context.Context, id string) (*model.OAuth2Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *FederationStore) GetByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.OAuth2Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userKey{userID, provider}]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *FederationStore) GetByProviderUserID(ctx context.Context, provider model.Provider, providerUserID string) (*model.OAuth2Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byProvider[connKey{provider, providerUserID}]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *FederationStore) Update(ctx context.Context, conn *model.OAuth2Connection) (*model.OAuth2Connection, error) {
	next := conn.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[next.ID]
	if !ok {
		return nil, model.ErrNotFound
	}
	key := connKey{next.Provider, next.ProviderUserID}
	if owner, ok := s.byProvider[key]; ok && owner != next.ID {
		return nil, model.ErrDuplicate
	}
	if owner, ok := s.byUser[userKey{next.UserID, next.Provider}]; ok && owner != next.ID {
		return nil, model.ErrDuplicate
	}
	delete(s.byProvider, connKey{cur.Provider, cur.ProviderUserID})
	delete(s.byUser, userKey{cur.UserID, cur.Provider})
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.now()
	s.byID[next.ID] = next
	s.byProvider[key] = next.ID
	s.byUser[userKey{next.UserID, next.Provider}] = next.ID
	return next.Clone(), nil
}

// UpdateTokens stores fresh provider credentials and bumps last_used_at.
func (s *FederationStore) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) (*model.OAuth2Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	now := s.now()
	access := accessToken
	c.AccessToken = &access
	if refreshToken != nil {
		r := *refreshToken
		c.RefreshToken = &r
	}
	if expiresAt != nil {
		e := *expiresAt
		c.TokenExpiresAt = &e
	}
	c.LastUsedAt = &now
	c.UpdatedAt = now
	return c.Clone(), nil
}

func (s *FederationStore) ListByUser(ctx context.Context, userID string) ([]*model.OAuth2Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.OAuth2Connection
	for _, c := range s.byID {
		if c.UserID == userID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Count returns the number of stored connections.
func (s *FederationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
