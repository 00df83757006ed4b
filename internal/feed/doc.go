// Package feed keeps disaster-feed connections alive.
//
// A Manager keeps one logical feed alive across an unreliable push
// transport: it walks an ordered endpoint set under the reconnect
// policy, degrades to pull-based polling once a full failover cycle
// fails, and stops all automatic activity when the circuit breaker
// trips. Each dashboard panel owns exactly one Manager; managers share
// no endpoint or breaker state, so one stalled feed cannot disable
// another.
//
// Every pending timer and transport callback captures the manager's
// generation at schedule time and is a no-op once Connect or Disconnect
// has bumped it. This is what keeps a late transport event from
// mutating a disposed or superseded manager.
package feed
