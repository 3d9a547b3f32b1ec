package users

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

// directoryTests runs the common suite against any Directory implementation.
func directoryTests(t *testing.T, dir Directory) {
	t.Helper()
	ctx := context.Background()

	alice, err := New("Alice", "Alice@Example.com ", "correct horse", false)
	require.NoError(t, err)
	require.NoError(t, dir.Create(ctx, alice))

	t.Run("GetByID", func(t *testing.T) {
		got, err := dir.Get(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.Equal(t, "Alice", got.Name)
		assert.False(t, got.IsAdmin)
	})

	t.Run("GetByEmailIsCaseInsensitive", func(t *testing.T) {
		got, err := dir.GetByEmail(ctx, "ALICE@example.COM")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := dir.Get(ctx, "no-such-user")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = dir.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		dup, err := New("Other", "alice@example.com", "pw", false)
		require.NoError(t, err)
		assert.ErrorIs(t, dir.Create(ctx, dup), ErrEmailTaken)
	})

	t.Run("UpdateMovesEmailIndex", func(t *testing.T) {
		u, err := dir.Get(ctx, alice.ID)
		require.NoError(t, err)
		u.Email = "alice@shop.example"
		u.Name = "Alice B"
		u.UpdatedAt = time.Now().UTC()
		require.NoError(t, dir.Update(ctx, u))

		_, err = dir.GetByEmail(ctx, "alice@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		got, err := dir.GetByEmail(ctx, "alice@shop.example")
		require.NoError(t, err)
		assert.Equal(t, "Alice B", got.Name)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		ghost, err := New("Ghost", "ghost@example.com", "pw", false)
		require.NoError(t, err)
		assert.ErrorIs(t, dir.Update(ctx, ghost), ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		admin, err := New("Admin", "admin@example.com", "pw", true)
		require.NoError(t, err)
		admin.CreatedAt = alice.CreatedAt.Add(time.Second)
		require.NoError(t, dir.Create(ctx, admin))

		list, err := dir.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, alice.ID, list[0].ID)
		assert.Equal(t, admin.ID, list[1].ID)
		assert.True(t, list[1].IsAdmin)
	})

	t.Run("Authenticate", func(t *testing.T) {
		u, err := Authenticate(ctx, dir, "alice@shop.example", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, u.ID)

		_, err = Authenticate(ctx, dir, "alice@shop.example", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = Authenticate(ctx, dir, "missing@shop.example", "correct horse")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestMemoryDirectory(t *testing.T) {
	directoryTests(t, NewMemoryDirectory())
}

func TestBoltDirectory(t *testing.T) {
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "users.db"), 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	dir, err := NewBoltDirectory(db)
	require.NoError(t, err)
	directoryTests(t, dir)
}

func TestPostgresDirectory(t *testing.T) {
	dsn := os.Getenv("STOREFRONT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STOREFRONT_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, EnsureSchema(ctx, pool))

	pool.Exec(ctx, "DELETE FROM users") //nolint:errcheck
	defer pool.Exec(ctx, "DELETE FROM users") //nolint:errcheck

	directoryTests(t, NewPostgresDirectory(pool))
}

func TestNew_Validation(t *testing.T) {
	_, err := New("x", "  ", "pw", false)
	assert.Error(t, err)
	_, err = New("x", "x@example.com", "", false)
	assert.Error(t, err)

	u, err := New(" Bob ", "Bob@Example.com", "hunter22", true)
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.Name)
	assert.NotEqual(t, "hunter22", u.PasswordHash)
	assert.True(t, u.CheckPassword("hunter22"))
	assert.False(t, u.CheckPassword("hunter23"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "shopper@example.com", NormalizeEmail("  SHOPPER@Example.com\t"))
}
