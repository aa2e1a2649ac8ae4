// Package push carries out-of-band signals into the daemon: "content changed"
// messages from the server and connectivity transitions.
//
// The Hub is a small fan-out bus with an explicit Start/Stop lifecycle. The
// Prober polls the content server and publishes Connectivity events when the
// reachability flips, and the NetlinkMonitor asks the Prober to re-check as
// soon as the kernel reports a network interface change. The push transport
// itself is not implemented here; anything that receives a server message
// hands its name to ParseMessage and publishes the result.
package push
