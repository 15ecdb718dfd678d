// Package relay contains Beacon's per-user relay core: the channel registry,
// the relay actor state machine, the WebSocket gateway for desktop clients,
// and the durable session-metadata stores.
//
// Concurrency model: each actor is a single-writer state machine. Every
// mutation of its transport handle and pending-request table happens under the
// actor's own mutex. Actors for different users share no mutable state.
package relay
