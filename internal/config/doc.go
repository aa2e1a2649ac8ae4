// Package config loads, normalizes, and validates signage device configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SIGNAGE_SERVER_URL and SIGNAGE_DEVICE_ID. The Config type centralizes every
// knob the daemon and CLI need, from the asset cache directory to the video
// decoder budget.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
