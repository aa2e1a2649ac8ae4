package catalog

import (
	"database/sql"
	"errors"
	"time"
)

const assetColumns = "id, media_type, remote_url, title, local_path, size_bytes, hash, downloaded_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(scanner rowScanner) (Asset, error) {
	var (
		asset        Asset
		title        sql.NullString
		localPath    sql.NullString
		sizeBytes    sql.NullInt64
		hash         sql.NullString
		downloadedAt sql.NullString
		updatedAt    sql.NullString
	)
	if err := scanner.Scan(
		&asset.ID,
		&asset.MediaType,
		&asset.RemoteURL,
		&title,
		&localPath,
		&sizeBytes,
		&hash,
		&downloadedAt,
		&updatedAt,
	); err != nil {
		return Asset{}, err
	}
	asset.Title = title.String
	asset.LocalPath = localPath.String
	asset.SizeBytes = sizeBytes.Int64
	asset.Hash = hash.String
	if downloadedAt.Valid {
		if ts, err := parseTimeString(downloadedAt.String); err == nil {
			asset.DownloadedAt = &ts
		}
	}
	if ts, err := parseTimeString(updatedAt.String); err == nil {
		asset.UpdatedAt = ts
	}
	return asset, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableSize(value int64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
