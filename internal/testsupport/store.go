package testsupport

import (
	"context"
	"testing"

	"signage/internal/catalog"
	"signage/internal/config"
	"signage/internal/prefs"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenPrefs opens the device prefs store for tests and registers cleanup.
func MustOpenPrefs(t testing.TB, cfg *config.Config) *prefs.Store {
	t.Helper()

	store, err := prefs.Open(cfg.PrefsPath())
	if err != nil {
		t.Fatalf("prefs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedPlaylist stores a playlist whose items reference the given assets in order.
func SeedPlaylist(t testing.TB, store *catalog.Store, playlistID string, assets ...catalog.Asset) {
	t.Helper()

	err := store.Apply(context.Background(), func(tx *catalog.Tx) error {
		items := make([]catalog.PlaylistItem, 0, len(assets))
		for idx, asset := range assets {
			if err := tx.UpsertAssetPreservingLocal(asset); err != nil {
				return err
			}
			items = append(items, catalog.PlaylistItem{
				ID:          catalog.ItemID(playlistID, asset.ID, idx),
				AssetID:     asset.ID,
				OrderIndex:  idx,
				DurationSec: 1,
			})
		}
		return tx.ReplacePlaylist(catalog.Playlist{ID: playlistID, Name: playlistID}, items)
	})
	if err != nil {
		t.Fatalf("seed playlist %s: %v", playlistID, err)
	}
}
