package control_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldvigil/fieldvigil/internal/control"
	"github.com/fieldvigil/fieldvigil/internal/notify"
	"github.com/fieldvigil/fieldvigil/internal/risk"
	"github.com/fieldvigil/fieldvigil/internal/tournee"
)

type fakeEngine struct {
	active   bool
	startErr error
	started  []tournee.Mode
	stops    int
}

func (f *fakeEngine) Start(_ context.Context, mode tournee.Mode) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, mode)
	f.active = true
	return nil
}

func (f *fakeEngine) Stop(context.Context) error {
	f.stops++
	f.active = false
	return nil
}

func (f *fakeEngine) Active(context.Context) bool { return f.active }

type fakeZone struct{ stats risk.Stats }

func (f *fakeZone) Stats() risk.Stats { return f.stats }

type fakeAlerts struct{ history []notify.Dispatched }

func (f *fakeAlerts) History() []notify.Dispatched { return f.history }

func newHandler(engine *fakeEngine, zone *fakeZone, alerts *fakeAlerts) http.Handler {
	return control.NewServer(control.ServerConfig{
		Version: "test",
		Engine:  engine,
		Zone:    zone,
		Alerts:  alerts,
		Logger:  zerolog.Nop(),
	}).Handler()
}

func TestHealth(t *testing.T) {
	handler := newHandler(&fakeEngine{}, &fakeZone{}, &fakeAlerts{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestStatusReportsZoneAndAlerts(t *testing.T) {
	refreshed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	handler := newHandler(
		&fakeEngine{active: true},
		&fakeZone{stats: risk.Stats{Count: 3, LastFetchAt: refreshed, Populated: true}},
		&fakeAlerts{history: []notify.Dispatched{{ID: "n1"}}},
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Active bool       `json:"active"`
		Zone   risk.Stats `json:"zone"`
		Alerts []struct {
			ID string `json:"id"`
		} `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Active)
	assert.Equal(t, 3, body.Zone.Count)
	assert.Equal(t, refreshed, body.Zone.LastFetchAt)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, "n1", body.Alerts[0].ID)
}

func TestStartTracking(t *testing.T) {
	engine := &fakeEngine{}
	handler := newHandler(engine, &fakeZone{}, &fakeAlerts{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tracking/start", strings.NewReader(`{"mode":"velo"}`))
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []tournee.Mode{tournee.ModeVelo}, engine.started)
}

func TestStartRejectsUnknownMode(t *testing.T) {
	engine := &fakeEngine{}
	handler := newHandler(engine, &fakeZone{}, &fakeAlerts{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tracking/start", strings.NewReader(`{"mode":"fusee"}`))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engine.started)
}

func TestStartConflictsWhenActive(t *testing.T) {
	engine := &fakeEngine{active: true}
	handler := newHandler(engine, &fakeZone{}, &fakeAlerts{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tracking/start", strings.NewReader(`{"mode":"velo"}`))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, engine.started)
}

func TestStartReportsEngineFailure(t *testing.T) {
	engine := &fakeEngine{startErr: errors.New("boom")}
	handler := newHandler(engine, &fakeZone{}, &fakeAlerts{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tracking/start", strings.NewReader(`{"mode":"velo"}`))
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStopTracking(t *testing.T) {
	engine := &fakeEngine{active: true}
	handler := newHandler(engine, &fakeZone{}, &fakeAlerts{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tracking/stop", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.stops)
	assert.False(t, engine.active)
}
