package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Device returns the stored device record, or ErrNotFound when unpaired.
func (s *Store) Device(ctx context.Context) (Device, error) {
	var (
		device     Device
		screenID   sql.NullString
		screenName sql.NullString
		width      sql.NullInt64
		height     sql.NullInt64
		pairedAt   sql.NullString
		updatedAt  string
	)
	err := s.db.QueryRowContext(ensureContext(ctx), `
SELECT id, screen_id, screen_name, width, height, paired_at, updated_at FROM devices LIMIT 1`,
	).Scan(&device.ID, &screenID, &screenName, &width, &height, &pairedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("get device: %w", err)
	}
	device.ScreenID = screenID.String
	device.ScreenName = screenName.String
	device.Width = int(width.Int64)
	device.Height = int(height.Int64)
	if pairedAt.Valid {
		if ts, err := parseTimeString(pairedAt.String); err == nil {
			device.PairedAt = &ts
		}
	}
	if ts, err := parseTimeString(updatedAt); err == nil {
		device.UpdatedAt = ts
	}
	return device, nil
}
