package auth_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvigil/fieldvigil/internal/auth"
	"github.com/fieldvigil/fieldvigil/internal/store"
)

type mockRefresher struct {
	mu      sync.Mutex
	calls   int
	session auth.Session
	err     error
}

func (m *mockRefresher) RefreshSession(_ context.Context, _ string) (auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return auth.Session{}, m.err
	}
	return m.session, nil
}

func (m *mockRefresher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// unsignedJWT builds a structurally valid JWT with the given exp, without a
// real signature. ShouldRenew only inspects claims.
func unsignedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{"exp": exp.Unix(), "sub": "agent-1"})
	require.NoError(t, err)
	return fmt.Sprintf("%s.%s.sig", header, base64.RawURLEncoding.EncodeToString(payload))
}

func TestManager_Refresh_Success(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyRefreshToken, "refresh-1"))

	refresher := &mockRefresher{session: auth.Session{AccessToken: "access-2", RefreshToken: "refresh-2"}}
	mgr := auth.NewManager(auth.ManagerConfig{Store: st, Refresher: refresher, Logger: zerolog.Nop()})

	assert.True(t, mgr.Refresh(ctx))

	token, err := mgr.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)

	rotated, ok, err := st.Get(ctx, store.KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "refresh-2", rotated)
}

func TestManager_Refresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyRefreshToken, "refresh-1"))

	refresher := &mockRefresher{session: auth.Session{AccessToken: "access-2"}}
	mgr := auth.NewManager(auth.ManagerConfig{Store: st, Refresher: refresher, Logger: zerolog.Nop()})

	assert.True(t, mgr.Refresh(ctx))

	current, ok, err := st.Get(ctx, store.KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "refresh-1", current)
}

func TestManager_Refresh_NoRefreshToken(t *testing.T) {
	st := newStore(t)
	refresher := &mockRefresher{}
	mgr := auth.NewManager(auth.ManagerConfig{Store: st, Refresher: refresher, Logger: zerolog.Nop()})

	assert.False(t, mgr.Refresh(context.Background()))
	// Short-circuits before any network call.
	assert.Equal(t, 0, refresher.callCount())
}

func TestManager_Refresh_EndpointFailureKeepsCredentials(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, store.KeyAccessToken, "access-1"))
	require.NoError(t, st.Set(ctx, store.KeyRefreshToken, "refresh-1"))

	refresher := &mockRefresher{err: errors.New("endpoint down")}
	mgr := auth.NewManager(auth.ManagerConfig{Store: st, Refresher: refresher, Logger: zerolog.Nop()})

	assert.False(t, mgr.Refresh(ctx))

	token, err := mgr.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
}

func TestManager_AccessToken_Missing(t *testing.T) {
	st := newStore(t)
	mgr := auth.NewManager(auth.ManagerConfig{Store: st, Refresher: &mockRefresher{}, Logger: zerolog.Nop()})

	_, err := mgr.AccessToken(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestManager_ShouldRenew(t *testing.T) {
	st := newStore(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mgr := auth.NewManager(auth.ManagerConfig{
		Store:     st,
		Refresher: &mockRefresher{},
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})

	assert.True(t, mgr.ShouldRenew(""))
	assert.True(t, mgr.ShouldRenew("not-a-jwt"))
	assert.True(t, mgr.ShouldRenew(unsignedJWT(t, now.Add(30*time.Second))), "inside expiry skew")
	assert.True(t, mgr.ShouldRenew(unsignedJWT(t, now.Add(-time.Hour))), "already expired")
	assert.False(t, mgr.ShouldRenew(unsignedJWT(t, now.Add(time.Hour))))
}

func TestManager_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("tracking active keeps refresh token", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Set(ctx, store.KeyAccessToken, "a"))
		require.NoError(t, st.Set(ctx, store.KeyRefreshToken, "r"))
		mgr := auth.NewManager(auth.ManagerConfig{Store: st, Refresher: &mockRefresher{}, Logger: zerolog.Nop()})

		require.NoError(t, mgr.Logout(ctx, true))

		_, ok, err := st.Get(ctx, store.KeyAccessToken)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = st.Get(ctx, store.KeyRefreshToken)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("tracking inactive clears everything", func(t *testing.T) {
		st := newStore(t)
		require.NoError(t, st.Set(ctx, store.KeyAccessToken, "a"))
		require.NoError(t, st.Set(ctx, store.KeyRefreshToken, "r"))
		mgr := auth.NewManager(auth.ManagerConfig{Store: st, Refresher: &mockRefresher{}, Logger: zerolog.Nop()})

		require.NoError(t, mgr.Logout(ctx, false))

		_, ok, err := st.Get(ctx, store.KeyRefreshToken)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
