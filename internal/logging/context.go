package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldDeviceID identifies the device whose configuration is being synced.
	FieldDeviceID = "device_id"
	// FieldRegionID identifies a layout region.
	FieldRegionID = "region_id"
	// FieldPlaylistID identifies a playlist.
	FieldPlaylistID = "playlist_id"
	// FieldAssetID identifies a media asset.
	FieldAssetID = "asset_id"
	// FieldGeneration carries the layout generation a goroutine was spawned under.
	FieldGeneration = "generation"
	// FieldEventType names the event for log searches and alerting.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey string

const (
	deviceKey     contextKey = "device_id"
	regionKey     contextKey = "region_id"
	generationKey contextKey = "generation"
)

// WithRegion tags ctx with a region id.
func WithRegion(ctx context.Context, regionID string) context.Context {
	return context.WithValue(ctx, regionKey, regionID)
}

// WithDevice tags ctx with the device id a sync runs for.
func WithDevice(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceKey, deviceID)
}

// WithGeneration tags ctx with the layout generation.
func WithGeneration(ctx context.Context, generation uint64) context.Context {
	return context.WithValue(ctx, generationKey, generation)
}

// GenerationFromContext returns the generation stored by WithGeneration.
func GenerationFromContext(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	gen, ok := ctx.Value(generationKey).(uint64)
	return gen, ok
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if v, ok := ctx.Value(regionKey).(string); ok && v != "" {
		fields = append(fields, RegionID(v))
	}
	if v, ok := ctx.Value(deviceKey).(string); ok && v != "" {
		fields = append(fields, DeviceID(v))
	}
	if gen, ok := GenerationFromContext(ctx); ok {
		fields = append(fields, Generation(gen))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
