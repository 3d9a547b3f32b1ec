package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryDirectory is a thread-safe in-memory Directory.
// Suitable for testing, demos, and single-process use cases.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (d *MemoryDirectory) Create(_ context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	email := NormalizeEmail(u.Email)
	if _, ok := d.byEmail[email]; ok {
		return fmt.Errorf("%s: %w", email, ErrEmailTaken)
	}
	c := clone(u)
	c.Email = email
	d.byID[c.ID] = c
	d.byEmail[email] = c.ID
	return nil
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return clone(u), nil
}

func (d *MemoryDirectory) GetByEmail(ctx context.Context, email string) (*User, error) {
	d.mu.RLock()
	id, ok := d.byEmail[NormalizeEmail(email)]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", email, ErrNotFound)
	}
	return d.Get(ctx, id)
}

func (d *MemoryDirectory) Update(_ context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.byID[u.ID]
	if !ok {
		return fmt.Errorf("%s: %w", u.ID, ErrNotFound)
	}
	email := NormalizeEmail(u.Email)
	if email != existing.Email {
		if _, taken := d.byEmail[email]; taken {
			return fmt.Errorf("%s: %w", email, ErrEmailTaken)
		}
		delete(d.byEmail, existing.Email)
		d.byEmail[email] = u.ID
	}
	c := clone(u)
	c.Email = email
	d.byID[u.ID] = c
	return nil
}

func (d *MemoryDirectory) List(_ context.Context) ([]*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, clone(u))
	}
	sortUsers(out)
	return out, nil
}

func sortUsers(us []*User) {
	sort.Slice(us, func(i, j int) bool {
		if !us[i].CreatedAt.Equal(us[j].CreatedAt) {
			return us[i].CreatedAt.Before(us[j].CreatedAt)
		}
		return us[i].Email < us[j].Email
	})
}
