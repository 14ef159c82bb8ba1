// Package notifier delivers operator notifications to a secondary chat.
//
// Notifications are short texts (relay outcomes, periodic reports) sent to
// the configured notify chat. Delivery is asynchronous: Notify enqueues and
// returns, a small worker pool sends with a shared rate limit and retries
// transient failures with jittered exponential backoff.
//
// # Events
//
// Lifecycle events (sent, failed, dropped) are published on the event bus so
// metrics can count them without the notifier knowing about metrics.
//
// # History
//
// The service keeps a small in-memory history of recently sent texts for
// operator visibility.
package notifier
