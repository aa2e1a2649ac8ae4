package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tx is a catalog transaction handed to Apply callbacks.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
	now time.Time
}

// UpsertAssetPreservingLocal inserts or updates an asset's identity fields.
// An existing row keeps its local path and download time unless the declared
// hash changed, in which case the cached file no longer matches and both are
// cleared.
func (t *Tx) UpsertAssetPreservingLocal(asset Asset) error {
	_, err := t.tx.ExecContext(t.ctx, `
INSERT INTO assets (id, media_type, remote_url, title, size_bytes, hash, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    media_type = excluded.media_type,
    remote_url = excluded.remote_url,
    title = excluded.title,
    size_bytes = excluded.size_bytes,
    local_path = CASE
        WHEN assets.hash IS NOT NULL AND excluded.hash IS NOT NULL AND assets.hash <> excluded.hash THEN NULL
        ELSE assets.local_path END,
    downloaded_at = CASE
        WHEN assets.hash IS NOT NULL AND excluded.hash IS NOT NULL AND assets.hash <> excluded.hash THEN NULL
        ELSE assets.downloaded_at END,
    hash = excluded.hash,
    updated_at = excluded.updated_at`,
		asset.ID,
		asset.MediaType,
		asset.RemoteURL,
		nullableString(asset.Title),
		nullableSize(asset.SizeBytes),
		nullableString(asset.Hash),
		formatTime(t.now),
	)
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", asset.ID, err)
	}
	return nil
}

// ReplacePlaylist writes the playlist header and replaces all of its items.
func (t *Tx) ReplacePlaylist(playlist Playlist, items []PlaylistItem) error {
	if _, err := t.tx.ExecContext(t.ctx, `
INSERT INTO playlists (id, name, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		playlist.ID, playlist.Name, formatTime(t.now),
	); err != nil {
		return fmt.Errorf("upsert playlist %s: %w", playlist.ID, err)
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM playlist_items WHERE playlist_id = ?", playlist.ID); err != nil {
		return fmt.Errorf("clear playlist %s items: %w", playlist.ID, err)
	}
	stmt, err := t.tx.PrepareContext(t.ctx, `
INSERT INTO playlist_items (id, playlist_id, asset_id, order_index, duration_sec) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare playlist item insert: %w", err)
	}
	defer stmt.Close()
	for _, item := range items {
		duration := item.DurationSec
		if duration <= 0 {
			duration = DefaultDurationSec
		}
		if _, err := stmt.ExecContext(t.ctx, item.ID, playlist.ID, item.AssetID, item.OrderIndex, duration); err != nil {
			return fmt.Errorf("insert playlist item %s: %w", item.ID, err)
		}
	}
	return nil
}

// DeletePlaylistsExcept removes every playlist (and its items) whose id is
// not in keep, returning the removed ids.
func (t *Tx) DeletePlaylistsExcept(keep []string) ([]string, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	rows, err := t.tx.QueryContext(t.ctx, "SELECT id FROM playlists")
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		if _, ok := keepSet[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, id := range stale {
		if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM playlist_items WHERE playlist_id = ?", id); err != nil {
			return nil, fmt.Errorf("delete playlist %s items: %w", id, err)
		}
		if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM playlists WHERE id = ?", id); err != nil {
			return nil, fmt.Errorf("delete playlist %s: %w", id, err)
		}
	}
	return stale, nil
}

// PutDevice replaces the device record.
func (t *Tx) PutDevice(device Device) error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM devices WHERE id <> ?", device.ID); err != nil {
		return fmt.Errorf("clear previous device: %w", err)
	}
	pairedAt := device.PairedAt
	if pairedAt == nil {
		now := t.now
		pairedAt = &now
	}
	_, err := t.tx.ExecContext(t.ctx, `
INSERT INTO devices (id, screen_id, screen_name, width, height, paired_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    screen_id = excluded.screen_id,
    screen_name = excluded.screen_name,
    width = excluded.width,
    height = excluded.height,
    paired_at = COALESCE(devices.paired_at, excluded.paired_at),
    updated_at = excluded.updated_at`,
		device.ID,
		nullableString(device.ScreenID),
		nullableString(device.ScreenName),
		device.Width,
		device.Height,
		nullableTime(pairedAt),
		formatTime(t.now),
	)
	if err != nil {
		return fmt.Errorf("put device %s: %w", device.ID, err)
	}
	return nil
}
