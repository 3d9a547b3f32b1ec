package users

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	usersBucket   = []byte("users")
	emailsBucket  = []byte("users_by_email")
	bucketsToInit = [][]byte{usersBucket, emailsBucket}
)

// BoltDirectory implements Directory backed by a BBolt database. Records are
// JSON-encoded under their ID; a second bucket maps normalised e-mail to ID.
type BoltDirectory struct {
	db *bbolt.DB
}

var _ Directory = (*BoltDirectory)(nil)

// NewBoltDirectory returns a Directory backed by the given BBolt database.
func NewBoltDirectory(db *bbolt.DB) (*BoltDirectory, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range bucketsToInit {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialising user buckets: %w", err)
	}
	return &BoltDirectory{db: db}, nil
}

// NewBoltDirectoryFromFile opens a BBolt database at the given path and returns a new Directory.
func NewBoltDirectoryFromFile(path string, options *bbolt.Options) (*BoltDirectory, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	d, err := NewBoltDirectory(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying BBolt database.
func (d *BoltDirectory) Close() error {
	return d.db.Close()
}

func (d *BoltDirectory) Create(_ context.Context, u *User) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(emailsBucket)
		email := NormalizeEmail(u.Email)
		if emails.Get([]byte(email)) != nil {
			return fmt.Errorf("%s: %w", email, ErrEmailTaken)
		}
		c := clone(u)
		c.Email = email
		if err := putUser(tx, c); err != nil {
			return err
		}
		return emails.Put([]byte(email), []byte(c.ID))
	})
}

func (d *BoltDirectory) Get(_ context.Context, id string) (*User, error) {
	var u *User
	err := d.db.View(func(tx *bbolt.Tx) error {
		var err error
		u, err = getUser(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (d *BoltDirectory) GetByEmail(_ context.Context, email string) (*User, error) {
	var u *User
	err := d.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(emailsBucket).Get([]byte(NormalizeEmail(email)))
		if id == nil {
			return fmt.Errorf("%s: %w", email, ErrNotFound)
		}
		var err error
		u, err = getUser(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (d *BoltDirectory) Update(_ context.Context, u *User) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		existing, err := getUser(tx, u.ID)
		if err != nil {
			return err
		}
		emails := tx.Bucket(emailsBucket)
		email := NormalizeEmail(u.Email)
		if email != existing.Email {
			if emails.Get([]byte(email)) != nil {
				return fmt.Errorf("%s: %w", email, ErrEmailTaken)
			}
			if err := emails.Delete([]byte(existing.Email)); err != nil {
				return err
			}
			if err := emails.Put([]byte(email), []byte(u.ID)); err != nil {
				return err
			}
		}
		c := clone(u)
		c.Email = email
		return putUser(tx, c)
	})
}

func (d *BoltDirectory) List(_ context.Context) ([]*User, error) {
	var out []*User
	err := d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(usersBucket).ForEach(func(_, v []byte) error {
			var u User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			out = append(out, &u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortUsers(out)
	return out, nil
}

func putUser(tx *bbolt.Tx, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return tx.Bucket(usersBucket).Put([]byte(u.ID), data)
}

func getUser(tx *bbolt.Tx, id string) (*User, error) {
	data := tx.Bucket(usersBucket).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
