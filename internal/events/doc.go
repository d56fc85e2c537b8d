// Package events is the in-process signal bus of the client.
//
// Publishers and subscribers agree on a Topic. Payloads are not carried:
// a signal only says that something happened, and subscribers read the
// current state from its owner. The API client publishes TopicUnauthorized
// when the server rejects the stored token, and the session manager
// subscribes to it for its lifetime:
//
//	cancel := bus.Subscribe(events.TopicUnauthorized, func() {
//		// drop the session
//	})
//	defer cancel()
//
// Publish calls handlers synchronously, in subscription order, outside the
// bus lock, so a handler may subscribe, cancel or publish without deadlock.
package events
