package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentgate/internal/consent/state"
	"consentgate/internal/consent/store"
	"consentgate/internal/platform/health"
)

const (
	browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	crawlerUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func newServer(t *testing.T) (*httptest.Server, *state.Machine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recordStore := store.New(store.NewMemoryKV(), store.WithLogger(logger))
	machine := state.NewMachine(recordStore, state.WithLogger(logger))
	machine.Init(context.Background())

	router := NewRouter(NewHandler(machine, logger), health.New(), nil, logger)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, machine
}

func do(t *testing.T, method, url, body, userAgent string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("User-Agent", userAgent)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) snapshotResponse {
	t.Helper()
	var snap snapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestSnapshot_FreshSession(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/consent", "", browserUA)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeSnapshot(t, resp)
	assert.True(t, snap.Ready)
	assert.True(t, snap.BannerVisible)
	assert.Nil(t, snap.Record)
}

func TestAccept_SetsMirrorCookie(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/consent/accept", "", browserUA)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeSnapshot(t, resp)
	assert.False(t, snap.BannerVisible)
	require.NotNil(t, snap.Record)
	assert.True(t, snap.Record.Analytics)
	assert.True(t, snap.Record.Marketing)

	var mirror *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == store.MirrorCookieName {
			mirror = c
		}
	}
	require.NotNil(t, mirror, "record-changing intents carry the mirror cookie")
	assert.Equal(t, "/", mirror.Path)
	assert.Equal(t, store.MirrorCookieMaxAge, mirror.MaxAge)
}

func TestReject(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/consent/reject", "", browserUA)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeSnapshot(t, resp)
	require.NotNil(t, snap.Record)
	assert.True(t, snap.Record.Essential)
	assert.False(t, snap.Record.Analytics)
	assert.False(t, snap.Record.Marketing)
}

func TestSavePreferences_PartialMerge(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/consent/accept", "", browserUA)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Only marketing supplied: analytics keeps its current (granted) value.
	resp = do(t, http.MethodPost, srv.URL+"/consent/preferences", `{"marketing":false}`, browserUA)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeSnapshot(t, resp)
	require.NotNil(t, snap.Record)
	assert.True(t, snap.Record.Analytics)
	assert.False(t, snap.Record.Marketing)
}

func TestSavePreferences_InvalidPayload(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/consent/preferences", `{"analytics":"yes"}`, browserUA)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "bad_request", body["error"])
}

func TestPreferencesPanelLifecycle(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/consent/preferences/open", "", browserUA)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap := decodeSnapshot(t, do(t, http.MethodGet, srv.URL+"/consent", "", browserUA))
	assert.True(t, snap.PreferencesOpen)

	resp = do(t, http.MethodPost, srv.URL+"/consent/preferences/close", "", browserUA)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap = decodeSnapshot(t, do(t, http.MethodGet, srv.URL+"/consent", "", browserUA))
	assert.False(t, snap.PreferencesOpen)
}

func TestAnnounce(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/consent/announce", `{"message":"cookie settings saved"}`, browserUA)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap := decodeSnapshot(t, do(t, http.MethodGet, srv.URL+"/consent", "", browserUA))
	assert.Equal(t, "cookie settings saved", snap.Announcement)
}

func TestBots_CannotMintConsent(t *testing.T) {
	srv, machine := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/consent/accept", "", crawlerUA)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Cookies())

	assert.Nil(t, machine.Snapshot().Record, "crawler traffic never changes consent state")
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", browserUA)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/readyz", "", browserUA)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
