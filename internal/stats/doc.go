// Package stats counts requests and per-endpoint forwarding outcomes.
//
// The forwarder emits events onto a buffered channel; a dedicated goroutine
// updates the counters and a prometheus mirror, so the request path never
// blocks on bookkeeping. The collector drains pending events on shutdown.
//
// The management layer polls Snapshot (or the JSON Handler); the weighted
// rotation strategy reads SuccessRate.
package stats
