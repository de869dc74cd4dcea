package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/session"
	"github.com/fieldvigil/fieldvigil/internal/store"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingDispatcher) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingDispatcher) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	titles := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		titles = append(titles, n.Title)
	}
	return titles
}

type countingStopper struct {
	mu    sync.Mutex
	stops int
}

func (c *countingStopper) StopService() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *countingStopper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newGuard(t *testing.T, st *store.Store, dispatcher notify.Dispatcher, stopper session.ServiceStopper, clock *time.Time) *session.Guard {
	t.Helper()
	return session.NewGuard(session.GuardConfig{
		Store:       st,
		Dispatcher:  dispatcher,
		Stopper:     stopper,
		Logger:      zerolog.Nop(),
		MaxDuration: time.Hour,
		WarningLead: 10 * time.Minute,
		Now:         func() time.Time { return *clock },
	})
}

func TestNoActiveRoundIsNoop(t *testing.T) {
	st := newTestStore(t)
	dispatcher := &recordingDispatcher{}
	stopper := &countingStopper{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	guard := newGuard(t, st, dispatcher, stopper, &now)

	assert.False(t, guard.CheckMaxDuration(context.Background()))
	assert.Empty(t, dispatcher.titles())
	assert.Equal(t, 0, stopper.count())
}

func TestWarnsOnceInsideLeadWindow(t *testing.T) {
	st := newTestStore(t)
	dispatcher := &recordingDispatcher{}
	stopper := &countingStopper{}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SetInt64(context.Background(), store.KeyTrackingStartTime, start.UnixMilli()))
	now := start
	guard := newGuard(t, st, dispatcher, stopper, &now)

	now = start.Add(30 * time.Minute)
	assert.False(t, guard.CheckMaxDuration(context.Background()))
	assert.Empty(t, dispatcher.titles())

	now = start.Add(52 * time.Minute)
	assert.False(t, guard.CheckMaxDuration(context.Background()))
	now = start.Add(55 * time.Minute)
	assert.False(t, guard.CheckMaxDuration(context.Background()))

	require.Equal(t, []string{"⏳ Fin de session proche"}, dispatcher.titles())
	assert.Contains(t, dispatcher.sent[0].Body, "8 minutes")
	assert.Equal(t, 0, stopper.count())
}

func TestCutoffStopsAndClearsRoundState(t *testing.T) {
	st := newTestStore(t)
	dispatcher := &recordingDispatcher{}
	stopper := &countingStopper{}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Set(context.Background(), store.KeyTourneeType, "pieds"))
	require.NoError(t, st.SetInt64(context.Background(), store.KeyTrackingStartTime, start.UnixMilli()))
	require.NoError(t, st.SetInt64(context.Background(), store.KeyLastTaskRun, start.UnixMilli()))
	require.NoError(t, st.Set(context.Background(), store.KeyAccessToken, "token"))
	now := start.Add(61 * time.Minute)
	guard := newGuard(t, st, dispatcher, stopper, &now)

	assert.True(t, guard.CheckMaxDuration(context.Background()))

	assert.Equal(t, 1, stopper.count())
	assert.Contains(t, dispatcher.titles(), "🏁 Session terminée")

	for _, key := range store.SessionKeys {
		_, found, err := st.Get(context.Background(), key)
		require.NoError(t, err)
		assert.False(t, found, "key %s should be cleared", key)
	}

	// Credentials are not round state and survive the cutoff.
	_, found, err := st.Get(context.Background(), store.KeyAccessToken)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCutoffDoesNotRepeatOnceStateIsCleared(t *testing.T) {
	st := newTestStore(t)
	dispatcher := &recordingDispatcher{}
	stopper := &countingStopper{}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SetInt64(context.Background(), store.KeyTrackingStartTime, start.UnixMilli()))
	now := start.Add(2 * time.Hour)
	guard := newGuard(t, st, dispatcher, stopper, &now)

	assert.True(t, guard.CheckMaxDuration(context.Background()))
	assert.False(t, guard.CheckMaxDuration(context.Background()), "start time is gone, nothing left to enforce")
	assert.Equal(t, 1, stopper.count())
}
