// Package remote fetches the device configuration document from the content
// server.
//
// The document carries the pairing flag, the screen record, the layout and
// every playlist the layout may reference. HTTPSource reads it from
// {base}/api/device/{deviceId}/config; FileSource reads a local YAML or JSON
// fixture with the same shape, which is useful for kiosks provisioned
// offline and for tests.
package remote
