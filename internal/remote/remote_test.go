package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"signage/internal/remote"
)

const sampleJSON = `{
  "paired": true,
  "screen": {"id": "s1", "name": "Lobby", "resolution": {"width": 1920, "height": 1080}},
  "layout": {
    "design": {"width": 1920, "height": 1080, "bgColor": "#000000"},
    "regions": [{"id": "main", "x": 0, "y": 0, "w": 1920, "h": 1080, "playlistId": " P1 "}]
  },
  "playlists": [{
    "id": "P1", "name": "Main",
    "items": [
      {"asset": {"id": "a1", "url": "https://cdn/a1.png?sig=x", "title": "One", "mediaType": "image/png", "bytes": 1000, "hash": "ABCD"}, "durationSec": 5},
      {"asset": {"id": "a2", "url": "https://cdn/a2.mp4", "title": "Two"}}
    ]
  }],
  "version": "7"
}`

func TestHTTPSourceFetchesDeviceConfig(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleJSON))
	}))
	defer server.Close()

	source, err := remote.NewHTTPSource(remote.HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	cfg, err := source.Fetch(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Equal(t, "/api/device/dev-1/config", gotPath)
	require.True(t, cfg.IsPaired())
	require.Equal(t, "Lobby", cfg.Screen.Name)
	require.Equal(t, "P1", cfg.Layout.Regions[0].PlaylistID)
	require.Len(t, cfg.Playlists[0].Items, 2)

	first := cfg.Playlists[0].Items[0]
	require.Equal(t, int64(1000), first.Asset.Size())
	require.Equal(t, "abcd", first.Asset.Hash)
	require.Equal(t, 5, first.Duration(10))

	second := cfg.Playlists[0].Items[1]
	require.Zero(t, second.Asset.Size())
	require.Equal(t, 10, second.Duration(10))
}

func TestHTTPSourceWrapsFailuresAsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	source, err := remote.NewHTTPSource(remote.HTTPConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = source.Fetch(context.Background(), "dev-1")
	require.ErrorIs(t, err, remote.ErrNetwork)

	server.Close()
	_, err = source.Fetch(context.Background(), "dev-1")
	require.ErrorIs(t, err, remote.ErrNetwork)
}

func TestPairedWithoutScreenIsUnpaired(t *testing.T) {
	require.False(t, remote.Config{Paired: true}.IsPaired())
	require.False(t, remote.Config{Screen: &remote.Screen{ID: "s"}}.IsPaired())
}

func TestFileSourceReadsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "device.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
paired: true
screen:
  id: s1
  name: Kiosk
  resolution: {width: 1080, height: 1920}
layout:
  design: {width: 1080, height: 1920}
  regions:
    - {id: top, x: 0, y: 0, w: 1080, h: 960, z: 1, playlistId: P1}
playlists:
  - id: P1
    name: Promo
    items:
      - asset: {id: a1, url: "file:///srv/a1.png", title: A1, bytes: 42}
        durationSec: 3
`), 0o644))

	cfg, err := remote.NewFileSource(yamlPath).Fetch(context.Background(), "ignored")
	require.NoError(t, err)
	require.True(t, cfg.IsPaired())
	require.Equal(t, 1, cfg.Layout.Regions[0].Z)
	require.Equal(t, int64(42), cfg.Playlists[0].Items[0].Asset.Size())

	jsonPath := filepath.Join(dir, "device.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleJSON), 0o644))
	cfg, err = remote.NewFileSource(jsonPath).Fetch(context.Background(), "ignored")
	require.NoError(t, err)
	require.Equal(t, "7", cfg.Version)

	_, err = remote.NewFileSource(filepath.Join(dir, "missing.yaml")).Fetch(context.Background(), "x")
	require.ErrorIs(t, err, remote.ErrNetwork)
}
