// Package forwarder implements the forwarding engine: it derives the
// logical target of each inbound request, picks an upstream endpoint from
// the rotation, sanitizes hop-by-hop headers, issues the outbound call with
// a bounded timeout and relays the response.
//
// Failures map onto a small taxonomy (no upstream, timeout, transport,
// validation), each answered with a distinct status and a machine-readable
// JSON body; one failed request never affects another. Forwarding is
// single-shot by default; bounded cross-endpoint retry for idempotent
// methods can be enabled in configuration.
package forwarder
