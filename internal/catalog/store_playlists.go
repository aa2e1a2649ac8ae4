package catalog

import (
	"context"
	"fmt"
)

// ListPlaylists returns playlist headers with item counts.
func (s *Store) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
SELECT p.id, p.name, p.updated_at, COUNT(i.id)
FROM playlists p
LEFT JOIN playlist_items i ON i.playlist_id = p.id
GROUP BY p.id
ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		var (
			p       Playlist
			updated string
		)
		if err := rows.Scan(&p.ID, &p.Name, &updated, &p.ItemCount); err != nil {
			return nil, err
		}
		if ts, err := parseTimeString(updated); err == nil {
			p.UpdatedAt = ts
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// Entries returns a playlist's items joined with their assets in orderIndex
// order. The rows come from a single statement, so a concurrent replace is
// observed either entirely or not at all.
func (s *Store) Entries(ctx context.Context, playlistID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `
SELECT i.id, i.playlist_id, i.asset_id, i.order_index, i.duration_sec,
       a.id, a.media_type, a.remote_url, a.title, a.local_path, a.size_bytes, a.hash, a.downloaded_at, a.updated_at
FROM playlist_items i
JOIN assets a ON a.id = i.asset_id
WHERE i.playlist_id = ?
ORDER BY i.order_index`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", playlistID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var item PlaylistItem
		asset, err := scanAsset(scanFunc(func(dest ...any) error {
			head := []any{&item.ID, &item.PlaylistID, &item.AssetID, &item.OrderIndex, &item.DurationSec}
			return rows.Scan(append(head, dest...)...)
		}))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Item: item, Asset: asset})
	}
	return entries, rows.Err()
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// ReferencedAssetIDs returns the ids of assets used by at least one playlist item.
func (s *Store) ReferencedAssetIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT DISTINCT asset_id FROM playlist_items")
	if err != nil {
		return nil, fmt.Errorf("list referenced assets: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
