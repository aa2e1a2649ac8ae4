// Package contentsync reconciles the local catalog with the remote device
// configuration.
//
// One Sync call fetches the document, short-circuits when its fingerprint
// matches the last applied one, otherwise applies every playlist in a single
// catalog transaction, removes content the document no longer references,
// and only then records the new fingerprint and layout. An unpaired device is
// wiped back to an empty catalog and an empty assets directory.
package contentsync
