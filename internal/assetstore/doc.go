// Package assetstore owns the assets directory: it derives file names for
// catalog assets, streams remote media into place through a ".part" file and
// an atomic rename, checks free space and content digests, and sweeps files
// that no catalog row references.
package assetstore
