// Package catalog persists the device's content catalog in SQLite: the paired
// device record, assets, playlists with their ordered items, and play events.
//
// The Store owns the durable copies. Sync code replaces playlists through
// Apply so readers never observe a half-replaced playlist; the download
// pipeline only ever touches an asset's local path and download time through
// SetDownloaded; playback code only reads. Schema changes bump schemaVersion
// in schema.go and require deleting catalog.db, which is safe because the
// next sync rebuilds it.
package catalog
