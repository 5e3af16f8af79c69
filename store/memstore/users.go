package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

type UserStore struct {
	mu         sync.RWMutex
	byID       map[string]*model.User
	byEmail    map[string]string
	byUsername map[string]string
	now        func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:       make(map[string]*model.User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserStore) Create(ctx context.Context, user *model.User) (*model.User, error) {
	u := user.Clone()
	u.Email = model.NormalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[u.ID]; ok {
		return nil, model.ErrDuplicate
	}
	if s.taken(u) {
		return nil, model.ErrDuplicate
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	s.byID[u.ID] = u
	s.index(u)
	return u.Clone(), nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[model.NormalizeUsername(username)]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

// Update replaces the mutable profile of an existing user, keeping the email
// and username indexes consistent.
func (s *UserStore) Update(ctx context.Context, user *model.User) (*model.User, error) {
	next := user.Clone()
	next.Email = model.NormalizeEmail(next.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[next.ID]
	if !ok {
		return nil, model.ErrNotFound
	}
	if s.taken(next) {
		return nil, model.ErrDuplicate
	}

	s.unindex(cur)
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.now()
	s.byID[next.ID] = next
	s.index(next)
	return next.Clone(), nil
}

func (s *UserStore) UpdateStatus(ctx context.Context, id string, status model.UserStatus) (*model.User, error) {
	return s.mutate(id, func(u *model.User) { u.Status = status })
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) (*model.User, error) {
	return s.mutate(id, func(u *model.User) { u.PasswordHash = passwordHash })
}

func (s *UserStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) (*model.User, error) {
	return s.mutate(id, func(u *model.User) {
		t := at
		u.LastLogin = &t
	})
}

func (s *UserStore) VerifyEmail(ctx context.Context, id string) (*model.User, error) {
	return s.mutate(id, func(u *model.User) { u.EmailVerified = true })
}

func (s *UserStore) mutate(id string, fn func(*model.User)) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	next := cur.Clone()
	fn(next)
	if s.taken(next) {
		return nil, model.ErrDuplicate
	}
	s.unindex(cur)
	next.UpdatedAt = s.now()
	s.byID[id] = next
	s.index(next)
	return next.Clone(), nil
}

// Email and username are unique among users that are not DELETED; a deleted
// user holds no index entries.

func (s *UserStore) taken(u *model.User) bool {
	if u.Status == model.StatusDeleted {
		return false
	}
	if owner, ok := s.byEmail[u.Email]; ok && owner != u.ID {
		return true
	}
	if u.Username != nil {
		if owner, ok := s.byUsername[*u.Username]; ok && owner != u.ID {
			return true
		}
	}
	return false
}

func (s *UserStore) index(u *model.User) {
	if u.Status == model.StatusDeleted {
		return
	}
	s.byEmail[u.Email] = u.ID
	if u.Username != nil {
		s.byUsername[*u.Username] = u.ID
	}
}

func (s *UserStore) unindex(u *model.User) {
	if s.byEmail[u.Email] == u.ID {
		delete(s.byEmail, u.Email)
	}
	if u.Username != nil && s.byUsername[*u.Username] == u.ID {
		delete(s.byUsername, *u.Username)
	}
}

// Count returns the number of stored users.
func (s *UserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
