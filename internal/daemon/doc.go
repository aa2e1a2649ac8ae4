// Package daemon coordinates the long-running signage process.
//
// It wires configuration, the asset catalog, device prefs, the sync engine,
// download pipelines, the region scheduler, analytics and the connectivity
// monitors into a single lifecycle with flock-based locking to prevent
// multiple instances. Each applied configuration starts a new generation:
// downloads and region sessions of the previous generation are cancelled and
// their late results are discarded.
//
// Keep orchestration logic here: syncing, downloading and playback live in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
