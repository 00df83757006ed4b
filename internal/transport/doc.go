// Package transport implements the two feed transports.
//
// Push wraps a single WebSocket connection attempt to one endpoint:
// dial, read loop, heartbeat, and a one-shot close event carrying the
// close code. Pull is the degraded substitute: a periodic one-shot HTTP
// fetch whose responses are forwarded through the same frame path as
// push messages.
//
// Neither transport knows about endpoint failover or retry policy; that
// lives in the feed package.
package transport
