package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// AssetByID fetches a single asset.
func (s *Store) AssetByID(ctx context.Context, id string) (Asset, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Asset{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	return asset, nil
}

// ListAssets returns every stored asset ordered by id.
func (s *Store) ListAssets(ctx context.Context) ([]Asset, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+assetColumns+" FROM assets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// DeleteAssets removes the given asset rows. Callers delete files first.
func (s *Store) DeleteAssets(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := "DELETE FROM assets WHERE id IN (" + makePlaceholders(len(ids)) + ")"
	if _, err := s.execWithRetry(ctx, query, stringArgs(ids)...); err != nil {
		return fmt.Errorf("delete assets: %w", err)
	}
	return nil
}

// ClearLocalPath forgets the cached file for an asset so a later download
// pass fetches it again.
func (s *Store) ClearLocalPath(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx,
		"UPDATE assets SET local_path = NULL, downloaded_at = NULL WHERE id = ?", id); err != nil {
		return fmt.Errorf("clear local path for %s: %w", id, err)
	}
	return nil
}

// SetDownloaded records a materialized file for an asset in one statement.
func (s *Store) SetDownloaded(ctx context.Context, id, localPath string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE assets SET local_path = ?, downloaded_at = ? WHERE id = ?",
		localPath, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("set downloaded for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set downloaded for %s: %w", id, ErrNotFound)
	}
	return nil
}

// LocalPaths returns every non-empty local path recorded in the catalog.
func (s *Store) LocalPaths(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT id, local_path FROM assets WHERE local_path IS NOT NULL AND local_path <> ''")
	if err != nil {
		return nil, fmt.Errorf("list local paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]string)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		paths[path] = id
	}
	return paths, rows.Err()
}
