// Package download materializes the assets of a playlist into the assets
// directory and reports progress as a lazy, restartable sequence.
package download

import "math"

// Progress is one snapshot of a download pass over a playlist.
type Progress struct {
	PlaylistID      string
	CurrentAssetID  string
	FinishedCount   int
	TotalCount      int
	BytesDownloaded int64
	TotalBytes      int64
	RateBytesPerSec float64
	// ETASeconds is -1 when the rate is not known yet.
	ETASeconds float64
	Percent    float64
	Done       bool
	// Final marks the last snapshot of a pass, whether or not every asset
	// succeeded.
	Final  bool
	Failed int
	Err    error
}

// ETA returns the seconds needed to move the remaining bytes at rate, or -1
// when rate is unknown.
func ETA(totalBytes, downloaded int64, rate float64) float64 {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return -1
	}
	remaining := totalBytes - downloaded
	if remaining < 0 {
		remaining = 0
	}
	return float64(remaining) / rate
}

// Percent prefers byte progress and falls back to item counts when no size
// is known.
func Percent(downloaded, totalBytes int64, finished, total int) float64 {
	switch {
	case totalBytes > 0:
		return math.Min(100, float64(downloaded)*100/float64(totalBytes))
	case total > 0:
		return math.Min(100, float64(finished)*100/float64(total))
	default:
		return 100
	}
}

// smooth folds an instantaneous rate into an exponential moving average. The
// first sample seeds the average.
func smooth(current, instant, alpha float64) float64 {
	if current <= 0 {
		return instant
	}
	return alpha*instant + (1-alpha)*current
}
