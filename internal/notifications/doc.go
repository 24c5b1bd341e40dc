// Package notifications delivers run events via ntfy.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event type is
// gated by its notifications.* switch so operators can silence, for example,
// degraded-output alerts without losing failure alerts.
//
// Workflow code depends only on the Service interface.
package notifications
