package playback

import (
	"context"
	"log/slog"
	"time"

	"signage/internal/layout"
	"signage/internal/logging"
)

// LogRenderer stands in for a display surface: it logs what would be drawn
// and simulates video playback by waiting the item's duration.
type LogRenderer struct {
	logger    *slog.Logger
	dwellUnit time.Duration
}

// NewLogRendererFactory returns a factory producing LogRenderers.
func NewLogRendererFactory(logger *slog.Logger) RendererFactory {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(region layout.Region) Renderer {
		return &LogRenderer{
			logger: logging.NewComponentLogger(logger, "renderer").With(
				logging.RegionID(region.ID),
				logging.String("fit", region.Fit),
			),
			dwellUnit: time.Second,
		}
	}
}

func (r *LogRenderer) ShowImage(_ context.Context, item Item) error {
	r.logger.Info("show image",
		logging.AssetID(item.AssetID),
		logging.String("path", item.LocalPath),
		logging.Int("duration_sec", item.DurationSec),
	)
	return nil
}

func (r *LogRenderer) PlayVideo(ctx context.Context, item Item) error {
	r.logger.Info("play video",
		logging.AssetID(item.AssetID),
		logging.String("path", item.LocalPath),
	)
	if !sleep(ctx, dwell(item.DurationSec, r.dwellUnit)) {
		return ctx.Err()
	}
	return nil
}

func (r *LogRenderer) Idle() {
	r.logger.Debug("region idle")
}

func (r *LogRenderer) Detach() {
	r.logger.Debug("region detached")
}
