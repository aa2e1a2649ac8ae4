// Package notifications delivers daemon events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. Device
// state transitions and sync failures are each gated by their own switch;
// routine events are accepted and dropped so callers never need to check.
package notifications
