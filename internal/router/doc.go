// Package router normalizes and dispatches feed messages.
//
// The router normalizes raw frames from either transport into Messages,
// drops malformed frames without affecting the connection, and
// dispatches each valid message to the single registered consumer
// callback. Payload interpretation is left to the consumer, keyed on the
// type discriminator.
package router
