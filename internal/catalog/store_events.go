package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RecordPlayEvent stores an analytics event. A duplicate (run, kind, tick) is
// ignored so repeated ticks never double count.
func (s *Store) RecordPlayEvent(ctx context.Context, event PlayEvent) (bool, error) {
	recorded := event.RecordedAt
	if recorded.IsZero() {
		recorded = s.now()
	}
	res, err := s.execWithRetry(ctx, `
INSERT INTO play_events (run_id, kind, tick, region_id, playlist_id, asset_id, media_type, attributes_json, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, kind, tick) DO NOTHING`,
		event.RunID,
		string(event.Kind),
		event.Tick,
		event.RegionID,
		nullableString(event.PlaylistID),
		event.AssetID,
		nullableString(event.MediaType),
		nullableString(event.AttributesJSON),
		formatTime(recorded),
	)
	if err != nil {
		return false, fmt.Errorf("record play event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

// PlayEvents returns the most recent events, newest first.
func (s *Store) PlayEvents(ctx context.Context, limit int) ([]PlayEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), `
SELECT id, run_id, kind, tick, region_id, playlist_id, asset_id, media_type, attributes_json, recorded_at
FROM play_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list play events: %w", err)
	}
	defer rows.Close()

	var events []PlayEvent
	for rows.Next() {
		var (
			event      PlayEvent
			kind       string
			playlistID sql.NullString
			mediaType  sql.NullString
			attrs      sql.NullString
			recorded   string
		)
		if err := rows.Scan(&event.ID, &event.RunID, &kind, &event.Tick, &event.RegionID,
			&playlistID, &event.AssetID, &mediaType, &attrs, &recorded); err != nil {
			return nil, err
		}
		event.Kind = PlayEventKind(kind)
		event.PlaylistID = playlistID.String
		event.MediaType = mediaType.String
		event.AttributesJSON = attrs.String
		if ts, err := parseTimeString(recorded); err == nil {
			event.RecordedAt = ts
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// PrunePlayEvents deletes events recorded before cutoff.
func (s *Store) PrunePlayEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM play_events WHERE recorded_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune play events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
