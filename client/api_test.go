package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPIClient(t *testing.T, baseURL string) *APIClient {
	t.Helper()
	c, err := NewAPIClient(baseURL)
	require.NoError(t, err)
	return c
}

func TestNewAPIClient_RequiresAbsoluteURL(t *testing.T) {
	_, err := NewAPIClient("/relative")
	assert.Error(t, err)
}

func TestAPIClient_LoginAndRefresh(t *testing.T) {
	srv := newFakeAPI(t)
	c := newTestAPIClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.Login(ctx, "shopper@example.com", "wrong", false)
	require.ErrorIs(t, err, ErrUnauthorized)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid email or password", apiErr.Message)

	s, err := c.Login(ctx, "shopper@example.com", "pw", true)
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, "Shopper", s.DisplayName)
	assert.Equal(t, time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), s.ExpiresAt.UTC())
	require.NotEmpty(t, c.Cookies())

	_, err = c.RefreshToken(ctx)
	require.NoError(t, err)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", h.Status)
}

func TestAPIClient_LogoutUnreachableIsLocalSuccess(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestAPIClient(t, url)
	assert.NoError(t, c.Logout(context.Background()))

	_, err := c.Profile(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAPIClient_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"payment gateway unavailable","retryable":true}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestAPIClient(t, srv.URL)
	_, err := c.Health(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Retryable)
}

// Three requests racing into a 401 produce one logout call, one redirect
// and one cleared session.
func TestConcurrent401_SingleForcedLogout(t *testing.T) {
	srv := newFakeAPI(t)
	c := newTestAPIClient(t, srv.URL)
	ctx := context.Background()

	rec := &recorder{}
	var clears []Reason
	var mu sync.Mutex
	m := NewManager(NewStore(NewMemoryStore()),
		WithRefresher(c),
		WithLogouter(c),
		WithNotifier(rec),
		WithNavigator(rec),
		OnCleared(func(r Reason) {
			mu.Lock()
			defer mu.Unlock()
			clears = append(clears, r)
		}),
	)
	c.SetObserver(m)

	s, err := c.Login(ctx, "shopper@example.com", "pw", false)
	require.NoError(t, err)
	require.NoError(t, m.SetSession(ctx, s, false))

	srv.profileStatus.Store(http.StatusUnauthorized)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Profile(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
	assert.Equal(t, int32(1), srv.logoutCalls.Load())
	_, redirects := rec.snapshot()
	assert.Equal(t, 1, redirects)
	assert.Equal(t, []Reason{ReasonUnauthorized}, clears)
	_, ok := m.Session()
	assert.False(t, ok)
	assert.False(t, m.Authenticated(ctx))
}
