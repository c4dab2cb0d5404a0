package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/replay"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/stream"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/telemetry"
)

func newTestAPI(t *testing.T, store *replay.Store) *httptest.Server {
	t.Helper()
	settings := config.DefaultSettings()
	metrics := telemetry.NewCounters()
	world := NewWorld(stream.NewServer(nil, stream.ServerConfig{Settings: settings, Metrics: metrics}))
	ts := httptest.NewServer(NewHTTPHandler(HTTPHandlerConfig{
		World:    world,
		Settings: settings,
		Store:    store,
		Metrics:  metrics,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestRecordingsRoutes(t *testing.T) {
	store, err := replay.OpenStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	defer store.Close()
	data := replay.Encode([]replay.Entry{{Time: 0.05, Payload: []byte{1, 2, 3}}})
	rec, err := store.Save(context.Background(), "api", data)
	require.NoError(t, err)

	ts := newTestAPI(t, store)

	resp, body := do(t, http.MethodGet, ts.URL+"/recordings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []replay.Recording
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.Equal(t, 1, list[0].Entries)

	resp, body = do(t, http.MethodGet, ts.URL+"/recordings/"+rec.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, data, body)

	resp, _ = do(t, http.MethodDelete, ts.URL+"/recordings/"+rec.ID)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodDelete, ts.URL+"/recordings/"+rec.ID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/recordings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestRecordingsRoutesWithoutStore(t *testing.T) {
	ts := newTestAPI(t, nil)
	resp, _ := do(t, http.MethodGet, ts.URL+"/recordings")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndDiagnostics(t *testing.T) {
	ts := newTestAPI(t, nil)

	resp, body := do(t, http.MethodGet, ts.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/diagnostics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var diag map[string]any
	require.NoError(t, json.Unmarshal(body, &diag))
	assert.Equal(t, "ok", diag["status"])
	assert.EqualValues(t, 20, diag["packetRate"])
	assert.Contains(t, diag, "stream")

	resp, _ = do(t, http.MethodPost, ts.URL+"/health")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
