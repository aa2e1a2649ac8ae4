package assetstore_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"signage/internal/assetstore"
	"signage/internal/catalog"
	"signage/internal/testsupport"
)

func TestGuessExt(t *testing.T) {
	cases := []struct {
		mime, url, want string
	}{
		{"video/mp4", "https://cdn/x", "mp4"},
		{"", "https://cdn/x.webm?sig=1", "webm"},
		{"image/png", "", "png"},
		{"image/jpeg", "https://cdn/x", "jpg"},
		{"", "https://cdn/x.JPG", "jpg"},
		{"image/gif", "", "gif"},
		{"", "https://cdn/clip.m4v?token=abc", "m4v"},
		{"", "https://cdn.example.com/download", "bin"},
		{"", "https://cdn/x.weird-ext", "bin"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, assetstore.GuessExt(tc.mime, tc.url), "mime=%q url=%q", tc.mime, tc.url)
	}
}

func TestCheckLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	testsupport.WriteFile(t, path, 100)

	ok, err := assetstore.CheckLocal(catalog.Asset{LocalPath: path, SizeBytes: 100})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = assetstore.CheckLocal(catalog.Asset{LocalPath: path, SizeBytes: 99})
	require.ErrorIs(t, err, assetstore.ErrStaleLocalFile)
	require.False(t, ok)

	ok, err = assetstore.CheckLocal(catalog.Asset{LocalPath: filepath.Join(dir, "gone.png")})
	require.ErrorIs(t, err, assetstore.ErrStaleLocalFile)
	require.False(t, ok)

	require.True(t, assetstore.NeedsDownload(catalog.Asset{}))
}

func TestFetchWritesThroughPartFile(t *testing.T) {
	payload := []byte(strings.Repeat("x", 100_000))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	store := assetstore.New(dir, nil)
	sum := sha256.Sum256(payload)
	asset := catalog.Asset{ID: "a1", RemoteURL: server.URL + "/a1.png?sig=1", Hash: hex.EncodeToString(sum[:])}

	var last int64
	result, err := store.Fetch(context.Background(), asset, true, func(read, _ int64) {
		require.GreaterOrEqual(t, read, last)
		last = read
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a1.png"), result.Path)
	require.EqualValues(t, len(payload), result.Written)
	require.EqualValues(t, len(payload), last)

	_, err = os.Stat(result.Path + assetstore.PartSuffix)
	require.True(t, errors.Is(err, os.ErrNotExist))
	size, ok := assetstore.FileSize(result.Path)
	require.True(t, ok)
	require.EqualValues(t, len(payload), size)
	require.NoError(t, assetstore.VerifyFile(result.Path, asset.Hash))
}

func TestFetchRejectsHashMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer server.Close()

	dir := t.TempDir()
	store := assetstore.New(dir, nil)
	asset := catalog.Asset{ID: "a1", RemoteURL: server.URL + "/a1.png", Hash: strings.Repeat("0", 40)}

	_, err := store.Fetch(context.Background(), asset, true, nil)
	require.ErrorIs(t, err, assetstore.ErrHashMismatch)

	files, err := store.List()
	require.NoError(t, err)
	require.Empty(t, files)

	_, err = store.Fetch(context.Background(), asset, false, nil)
	require.NoError(t, err)
}

func TestFetchFromFileURL(t *testing.T) {
	src := filepath.Join(t.TempDir(), "source.mp4")
	testsupport.WriteFile(t, src, 2048)

	store := assetstore.New(t.TempDir(), nil)
	result, err := store.Fetch(context.Background(), catalog.Asset{ID: "v1", RemoteURL: "file://" + src}, true, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2048, result.ContentLength)
	require.Equal(t, "mp4", strings.TrimPrefix(filepath.Ext(result.Path), "."))
}

func TestFetchFlagsUnrecognizedHash(t *testing.T) {
	src := filepath.Join(t.TempDir(), "source.png")
	testsupport.WriteFile(t, src, 64)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := assetstore.New(t.TempDir(), logger)
	_, err := store.Fetch(context.Background(), catalog.Asset{ID: "i1", RemoteURL: src, Hash: "abc123"}, true, nil)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"event_type":"hash_unrecognized"`)
	require.Contains(t, buf.String(), `"alert":"integrity_unchecked"`)
}

func TestFetchHonorsCancellation(t *testing.T) {
	src := filepath.Join(t.TempDir(), "source.bin")
	testsupport.WriteFile(t, src, 1<<20)

	store := assetstore.New(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Fetch(ctx, catalog.Asset{ID: "b", RemoteURL: src}, false, nil)
	require.ErrorIs(t, err, context.Canceled)

	files, err := store.List()
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestEnsureSpace(t *testing.T) {
	store := assetstore.New(t.TempDir(), nil, assetstore.WithFreeSpaceFunc(func(string) (uint64, error) {
		return 1000, nil
	}))
	require.NoError(t, store.EnsureSpace(400, 500))
	require.ErrorIs(t, store.EnsureSpace(600, 500), assetstore.ErrInsufficientSpace)

	failing := assetstore.New(t.TempDir(), nil, assetstore.WithFreeSpaceFunc(func(string) (uint64, error) {
		return 0, errors.New("statfs unavailable")
	}))
	require.NoError(t, failing.EnsureSpace(600, 500))
}

func TestSweepKeepsReferencedFiles(t *testing.T) {
	dir := t.TempDir()
	store := assetstore.New(dir, nil)
	keep := filepath.Join(dir, "a1.png")
	orphan := filepath.Join(dir, "old.mp4")
	part := filepath.Join(dir, "a2.mp4"+assetstore.PartSuffix)
	for _, p := range []string{keep, orphan, part} {
		testsupport.WriteFile(t, p, 10)
	}

	result := store.Sweep(context.Background(), map[string]struct{}{keep: {}})
	require.Empty(t, result.Errors)
	require.ElementsMatch(t, []string{orphan, part}, result.Removed)

	usage, err := store.Usage()
	require.NoError(t, err)
	require.EqualValues(t, 10, usage)

	result = store.Purge(context.Background())
	require.Equal(t, []string{keep}, result.Removed)
}
