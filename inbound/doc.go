// Package inbound authenticates, validates, and dispatches provider
// webhook events.
//
// Every request moves through the same lifecycle: received, authenticated,
// validated, then dispatched or rejected. Rejections are atomic; a payload
// that fails any validation rule writes nothing.
package inbound
