// Package logging assembles structured slog loggers and formatting helpers used
// across the signage daemon and CLI.
//
// It owns the console/JSON handlers, per-component level overrides, and the
// attribute helpers that give warnings a consistent event_type, error_hint and
// impact shape. Download code uses ProgressSampler to keep progress logging to
// percentage buckets instead of every snapshot.
package logging
