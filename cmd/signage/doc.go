// Package main hosts the signage CLI entrypoint and command graph.
//
// Commands translate terminal invocations into IPC calls against the running
// daemon (status, sync, push, health, test-notify), manage the daemon process
// (start, stop, restart), inspect the local catalog directly, and scaffold
// configuration. Heavy lifting stays in the internal packages; this package
// only wires flags to them and renders results.
package main
